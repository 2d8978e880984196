package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/chitbox-dev/chitfund-portal/v1/models"
	"gorm.io/gorm"
)

// UserService handles user lookups
type UserService struct {
	db *gorm.DB
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// GetUser retrieves a user by ID
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "user_id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user", userID)
	}
	return &user, nil
}

// GetUserByUCFSIN retrieves a user by UCFSIN
func (s *UserService) GetUserByUCFSIN(ctx context.Context, ucfsin string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "ucfsin = ?", strings.ToUpper(strings.TrimSpace(ucfsin))).Error; err != nil {
		return nil, notFound(err, "user with ucfsin", ucfsin)
	}
	return &user, nil
}

// ListUsers retrieves users, optionally filtered by role, newest first
func (s *UserService) ListUsers(ctx context.Context, role string) ([]models.User, error) {
	var users []models.User
	query := s.db.WithContext(ctx)
	if role != "" {
		query = query.Where("role = ?", role)
	}
	if err := query.Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}
