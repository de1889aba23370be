package services

import (
	"fmt"
	"log/slog"

	"github.com/anhbaysgalan1/potledger/internal/auth"
	"github.com/anhbaysgalan1/potledger/internal/database"
	"github.com/anhbaysgalan1/potledger/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuthService struct {
	db         *database.DB
	jwtManager *auth.JWTManager
}

func NewAuthService(db *database.DB, jwtManager *auth.JWTManager) *AuthService {
	return &AuthService{
		db:         db,
		jwtManager: jwtManager,
	}
}

func (s *AuthService) RegisterUser(req models.CreateUserRequest) (*models.User, error) {
	// Check if user already exists
	var existingUser models.User
	if err := s.db.Where("email = ? OR username = ?", req.Email, req.Username).First(&existingUser).Error; err == nil {
		if existingUser.Email == req.Email {
			return nil, fmt.Errorf("user with email %s already exists", req.Email)
		}
		return nil, fmt.Errorf("user with username %s already exists", req.Username)
	} else if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	// Hash password
	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// Create user
	user := models.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hashedPassword,
	}

	if err := s.db.Create(&user).Error; err != nil {
		// The existence pre-check can race a concurrent registration
		if database.IsUniqueConstraintError(err) {
			return nil, fmt.Errorf("%s", database.GetErrorMessage(err))
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("User registered successfully", "user_id", user.ID, "username", user.Username)
	return &user, nil
}

func (s *AuthService) LoginUser(req models.LoginRequest) (*models.LoginResponse, error) {
	var user models.User

	// Find user by email or username
	if err := s.db.Where("email = ? OR username = ?", req.EmailOrUsername, req.EmailOrUsername).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("invalid credentials")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	// Verify password
	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	// Generate JWT token
	token, err := s.jwtManager.GenerateToken(user.ID, user.Username, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	slog.Info("User logged in successfully", "user_id", user.ID, "username", user.Username)

	return &models.LoginResponse{
		User:  user,
		Token: token,
	}, nil
}

func (s *AuthService) GetUserByID(userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
