package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserClaims represents the JWT claims issued by the portal for a user
type UserClaims struct {
	Email  string              `json:"email"`
	Name   string              `json:"name"`
	UCFSIN string              `json:"ucfsin,omitempty"`
	Roles  FlexibleStringSlice `json:"roles"`
	jwt.RegisteredClaims
}

// AuthenticatedUser represents the authenticated user context
type AuthenticatedUser struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	UCFSIN    string    `json:"ucfsin,omitempty"`
	Roles     []Role    `json:"roles"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthContext represents the authentication context in HTTP requests
type AuthContext struct {
	User        *AuthenticatedUser `json:"user"`
	Token       string             `json:"-"` // Don't expose in JSON
	IssuedBy    string             `json:"issuedBy"`
	Permissions []Permission       `json:"permissions"`
}

// HasRole checks if the user has a specific role
func (u *AuthenticatedUser) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole checks if the user has any of the specified roles
func (u *AuthenticatedUser) HasAnyRole(roles ...Role) bool {
	for _, requiredRole := range roles {
		if u.HasRole(requiredRole) {
			return true
		}
	}
	return false
}

// HasPermission checks if the user has a specific permission based on their roles
func (u *AuthenticatedUser) HasPermission(permission Permission) bool {
	for _, role := range u.Roles {
		if role.HasPermission(permission) {
			return true
		}
	}
	return false
}

// IsAdmin checks if the user has admin role
func (u *AuthenticatedUser) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// IsForeman checks if the user has foreman role
func (u *AuthenticatedUser) IsForeman() bool {
	return u.HasRole(RoleForeman)
}

// IsSubscriber checks if the user has subscriber role
func (u *AuthenticatedUser) IsSubscriber() bool {
	return u.HasRole(RoleSubscriber)
}

// IsSystem checks if the user has system role
func (u *AuthenticatedUser) IsSystem() bool {
	return u.HasRole(RoleSystem)
}

// GetPrimaryRole returns the highest priority role (Admin > System > Foreman > Subscriber)
func (u *AuthenticatedUser) GetPrimaryRole() Role {
	for _, role := range []Role{RoleAdmin, RoleSystem, RoleForeman} {
		if u.HasRole(role) {
			return role
		}
	}
	return RoleSubscriber
}

// GetPermissions returns all permissions the user has based on their roles
func (u *AuthenticatedUser) GetPermissions() []Permission {
	permissionSet := make(map[Permission]bool)
	var permissions []Permission

	for _, role := range u.Roles {
		for _, permission := range RolePermissions[role] {
			if !permissionSet[permission] {
				permissionSet[permission] = true
				permissions = append(permissions, permission)
			}
		}
	}

	return permissions
}

// IsTokenExpired checks if the user's token is expired
func (u *AuthenticatedUser) IsTokenExpired() bool {
	return time.Now().After(u.ExpiresAt)
}

// NewAuthenticatedUser creates a new authenticated user from JWT claims.
// Unknown role names are dropped; a token without any valid role gets the
// least privileged role.
func NewAuthenticatedUser(claims *UserClaims) *AuthenticatedUser {
	var roles []Role
	for _, roleStr := range claims.Roles.ToStringSlice() {
		role := Role(roleStr)
		if role.IsValid() {
			roles = append(roles, role)
		}
	}

	if len(roles) == 0 {
		roles = []Role{RoleSubscriber}
	}

	user := &AuthenticatedUser{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   claims.Name,
		UCFSIN: claims.UCFSIN,
		Roles:  roles,
	}
	if claims.IssuedAt != nil {
		user.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		user.ExpiresAt = claims.ExpiresAt.Time
	}
	return user
}
