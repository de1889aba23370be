package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Email        string         `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Username     string         `json:"username" gorm:"uniqueIndex;not null;size:50"`
	PasswordHash string         `json:"-" gorm:"not null;size:255"`
	AvatarURL    *string        `json:"avatar_url,omitempty" gorm:"size:500"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=50,username"`
	Password string `json:"password" validate:"required,min=8,strong_password"`
}

type LoginRequest struct {
	EmailOrUsername string `json:"email_or_username" validate:"required"`
	Password        string `json:"password" validate:"required"`
}

type LoginResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Identity is the acting user as seen by session operations: the fields a
// joining player is recorded with.
type Identity struct {
	UserID  uuid.UUID `json:"user_id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Picture string    `json:"picture"`
}

// IdentityFor builds the session-facing identity for an account.
func IdentityFor(u *User) Identity {
	picture := ""
	if u.AvatarURL != nil {
		picture = *u.AvatarURL
	}
	return Identity{
		UserID:  u.ID,
		Name:    u.Username,
		Email:   u.Email,
		Picture: picture,
	}
}
