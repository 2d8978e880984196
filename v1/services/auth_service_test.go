package services

import (
	"context"
	"testing"
	"time"

	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"github.com/chitbox-dev/chitfund-portal/v1/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthService(t *testing.T) (*AuthService, *utils.TokenManager) {
	db := SetupSQLiteTestDB(t)
	tokens := utils.NewTokenManager("test-secret-with-enough-entropy", "chitfund-portal", time.Hour)
	return NewAuthService(db, tokens), tokens
}

func TestAuthService_HashPassword(t *testing.T) {
	t.Run("RejectsShortPassword", func(t *testing.T) {
		_, err := HashPassword("short")
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("ProducesBcryptHash", func(t *testing.T) {
		hash, err := HashPassword("correct horse")
		require.NoError(t, err)
		assert.NotEqual(t, "correct horse", hash)
		assert.Contains(t, hash, "$2a$")
	})
}

func TestAuthService_CreateAdminAndLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("LoginWithEmail", func(t *testing.T) {
		service, tokens := newTestAuthService(t)
		admin, err := service.CreateAdmin(ctx, "Registrar", "Registrar@Example.com", "s3cret-pass")
		require.NoError(t, err)
		assert.Equal(t, "registrar@example.com", admin.Email)
		assert.True(t, admin.Active)

		resp, err := service.Login(ctx, "registrar@example.com", "s3cret-pass")
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Token)
		assert.NotNil(t, resp.User.LastLoginAt)

		claims, err := tokens.Parse(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, admin.UserID, claims.Subject)
		assert.Equal(t, []string{string(models.RoleAdmin)}, claims.Roles.ToStringSlice())
	})

	t.Run("WrongPassword", func(t *testing.T) {
		service, _ := newTestAuthService(t)
		_, err := service.CreateAdmin(ctx, "Registrar", "registrar@example.com", "s3cret-pass")
		require.NoError(t, err)

		_, err = service.Login(ctx, "registrar@example.com", "wrong-pass")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		service, _ := newTestAuthService(t)
		_, err := service.Login(ctx, "nobody@example.com", "whatever1")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("FailedLoginsAllPayBcrypt", func(t *testing.T) {
		service, _ := newTestAuthService(t)
		_, err := service.CreateAdmin(ctx, "Registrar", "registrar@example.com", "s3cret-pass")
		require.NoError(t, err)
		require.NoError(t, service.db.Create(&models.User{
			UserID: newID(prefixUser),
			Name:   "Pending",
			Email:  "pending@example.com",
			Role:   models.RoleForeman,
		}).Error)

		var hashes [][]byte
		original := comparePassword
		comparePassword = func(hash, password []byte) error {
			hashes = append(hashes, hash)
			return original(hash, password)
		}
		defer func() { comparePassword = original }()

		for _, identifier := range []string{"nobody@example.com", "pending@example.com", "registrar@example.com"} {
			_, err := service.Login(ctx, identifier, "wrong-pass")
			assert.ErrorIs(t, err, models.ErrUnauthorized, identifier)
		}

		require.Len(t, hashes, 3, "unknown, inactive and wrong-password logins each compare a hash")
		assert.Equal(t, dummyPasswordHash, hashes[0])
		assert.Equal(t, dummyPasswordHash, hashes[1])
		assert.NotEqual(t, dummyPasswordHash, hashes[2])
	})

	t.Run("InactiveAccount", func(t *testing.T) {
		service, _ := newTestAuthService(t)
		hash, err := HashPassword("s3cret-pass")
		require.NoError(t, err)
		require.NoError(t, service.db.Create(&models.User{
			UserID:       newID(prefixUser),
			Name:         "Suspended",
			Email:        "suspended@example.com",
			Role:         models.RoleForeman,
			PasswordHash: hash,
		}).Error)

		_, err = service.Login(ctx, "suspended@example.com", "s3cret-pass")
		assert.ErrorIs(t, err, models.ErrUnauthorized, "correct password on an inactive account")
	})

	t.Run("DuplicateAdmin", func(t *testing.T) {
		service, _ := newTestAuthService(t)
		_, err := service.CreateAdmin(ctx, "Registrar", "registrar@example.com", "s3cret-pass")
		require.NoError(t, err)
		_, err = service.CreateAdmin(ctx, "Registrar", "registrar@example.com", "s3cret-pass")
		assert.ErrorIs(t, err, models.ErrConflict)
	})
}

func TestAuthService_Activate(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, expiresIn time.Duration) (*AuthService, *models.User, string) {
		service, _ := newTestAuthService(t)
		token, hash, err := GenerateActivationToken()
		require.NoError(t, err)
		expires := time.Now().Add(expiresIn)
		user := &models.User{
			UserID:              newID(prefixUser),
			Name:                "Asha",
			Email:               "asha@example.com",
			UCFSIN:              ptr("UCF0000000001"),
			Role:                models.RoleSubscriber,
			ActivationTokenHash: &hash,
			ActivationExpiresAt: &expires,
		}
		require.NoError(t, service.db.Create(user).Error)
		return service, user, token
	}

	t.Run("ActivatesAndAllowsUCFSINLogin", func(t *testing.T) {
		service, user, token := setup(t, time.Hour)

		_, err := service.Login(ctx, "asha@example.com", "new-password")
		assert.ErrorIs(t, err, models.ErrUnauthorized, "inactive accounts cannot log in")

		activated, err := service.Activate(ctx, token, "new-password")
		require.NoError(t, err)
		assert.True(t, activated.Active)
		assert.Equal(t, user.UserID, activated.UserID)

		resp, err := service.Login(ctx, "ucf0000000001", "new-password")
		require.NoError(t, err)
		assert.Equal(t, user.UserID, resp.User.UserID)

		_, err = service.Activate(ctx, token, "another-password")
		assert.ErrorIs(t, err, models.ErrValidation, "token is single use")
	})

	t.Run("ConcurrentActivationAppliesOnce", func(t *testing.T) {
		service, user, token := setup(t, time.Hour)
		tokenHash := hashToken(token)

		// Both activations passed the token lookup before either updated the row
		first := *user
		second := *user
		require.NoError(t, consumeActivationToken(service.db, &first, tokenHash, "$2a$10$first"))
		err := consumeActivationToken(service.db, &second, tokenHash, "$2a$10$second")
		assert.ErrorIs(t, err, models.ErrValidation)

		var stored models.User
		require.NoError(t, service.db.First(&stored, "user_id = ?", user.UserID).Error)
		assert.Equal(t, "$2a$10$first", stored.PasswordHash)
		assert.True(t, stored.Active)
		assert.Nil(t, stored.ActivationTokenHash)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		service, _, token := setup(t, -time.Minute)
		_, err := service.Activate(ctx, token, "new-password")
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		service, _, _ := setup(t, time.Hour)
		_, err := service.Activate(ctx, "not-a-token", "new-password")
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}
