package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chitbox-dev/chitfund-portal/monitoring"
	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"github.com/chitbox-dev/chitfund-portal/v1/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthService handles login, account activation and admin bootstrap
type AuthService struct {
	db     *gorm.DB
	tokens *utils.TokenManager
}

// NewAuthService creates a new auth service
func NewAuthService(db *gorm.DB, tokens *utils.TokenManager) *AuthService {
	return &AuthService{db: db, tokens: tokens}
}

// HashPassword hashes a password with bcrypt
func HashPassword(password string) (string, error) {
	if len(password) < models.MinPasswordLength {
		return "", validationError("password must be at least %d characters", models.MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// GenerateActivationToken returns a random token and the hash stored for it
func GenerateActivationToken() (token string, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate activation token: %w", err)
	}
	token = hex.EncodeToString(buf)
	return token, hashToken(token), nil
}

// comparePassword checks a password against a bcrypt hash
var comparePassword = bcrypt.CompareHashAndPassword

// dummyPasswordHash is compared against on logins that have no usable account
// so every failed login pays the same bcrypt cost
var dummyPasswordHash = mustHashDummyPassword()

func mustHashDummyPassword() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("chitfund-portal-unused-password"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("failed to hash dummy password: %v", err))
	}
	return hash
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Login checks credentials and issues a session token. The identifier is an
// email address or a UCFSIN. Unknown, inactive and wrong-password logins all
// return models.ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*models.LoginResponse, error) {
	identifier = strings.TrimSpace(identifier)

	var user models.User
	query := s.db.WithContext(ctx)
	if strings.Contains(identifier, "@") {
		query = query.Where("email = ?", normalizeEmail(identifier))
	} else {
		query = query.Where("ucfsin = ?", strings.ToUpper(identifier))
	}
	if err := query.First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		_ = comparePassword(dummyPasswordHash, []byte(password))
		monitoring.RecordLoginAttempt("failure")
		slog.Warn("Login failed: unknown identifier")
		return nil, models.ErrUnauthorized
	}

	if !user.Active || user.PasswordHash == "" {
		_ = comparePassword(dummyPasswordHash, []byte(password))
		monitoring.RecordLoginAttempt("failure")
		slog.Warn("Login failed: account not active", "userID", user.UserID)
		return nil, models.ErrUnauthorized
	}

	if err := comparePassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		monitoring.RecordLoginAttempt("failure")
		slog.Warn("Login failed: wrong password", "userID", user.UserID)
		return nil, models.ErrUnauthorized
	}

	token, expiresAt, err := s.tokens.Issue(&user)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		slog.Warn("Failed to record last login", "userID", user.UserID, "error", err)
	}
	user.LastLoginAt = &now

	monitoring.RecordLoginAttempt("success")
	slog.Info("User logged in", "userID", user.UserID, "role", user.Role)

	return &models.LoginResponse{Token: token, ExpiresAt: expiresAt, User: &user}, nil
}

// Activate sets the password of an account created from an approved access
// request. The token is single use and expires.
func (s *AuthService) Activate(ctx context.Context, token, password string) (*models.User, error) {
	passwordHash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	tokenHash := hashToken(token)
	var user models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("activation_token_hash = ?", tokenHash).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: activation token is invalid", models.ErrValidation)
			}
			return fmt.Errorf("failed to load user: %w", err)
		}

		if user.ActivationExpiresAt == nil || time.Now().After(*user.ActivationExpiresAt) {
			return fmt.Errorf("%w: activation token has expired", models.ErrValidation)
		}

		return consumeActivationToken(tx, &user, tokenHash, passwordHash)
	})
	if err != nil {
		return nil, err
	}

	user.Active = true
	user.ActivationTokenHash = nil
	user.ActivationExpiresAt = nil
	slog.Info("Account activated", "userID", user.UserID)
	return &user, nil
}

// consumeActivationToken activates the account only while it still holds
// tokenHash, so of two activations racing on one token only the first applies
func consumeActivationToken(tx *gorm.DB, user *models.User, tokenHash, passwordHash string) error {
	result := tx.Model(user).
		Where("activation_token_hash = ?", tokenHash).
		Updates(map[string]interface{}{
			"password_hash":         passwordHash,
			"active":                true,
			"activation_token_hash": nil,
			"activation_expires_at": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to activate account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: activation token is invalid", models.ErrValidation)
	}
	return nil
}

// CreateAdmin creates an active admin account
func (s *AuthService) CreateAdmin(ctx context.Context, name, email, password string) (*models.User, error) {
	if strings.TrimSpace(name) == "" || !strings.Contains(email, "@") {
		return nil, validationError("name and a valid email are required")
	}
	passwordHash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		UserID:       newID(prefixUser),
		Name:         strings.TrimSpace(name),
		Email:        normalizeEmail(email),
		Role:         models.RoleAdmin,
		PasswordHash: passwordHash,
		Active:       true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: email %s is already registered", models.ErrConflict, user.Email)
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}
	slog.Info("Admin account created", "userID", user.UserID)
	return user, nil
}
