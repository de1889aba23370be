package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_GenerateToken(t *testing.T) {
	jwtManager := NewJWTManager("test-secret", "test-issuer")

	userID := uuid.New()
	username := "testuser"
	email := "test@example.com"

	token, err := jwtManager.GenerateToken(userID, username, email)

	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// Parse the token to verify its contents
	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})

	require.NoError(t, err)
	assert.True(t, parsedToken.Valid)

	claims := parsedToken.Claims.(jwt.MapClaims)
	assert.Equal(t, userID.String(), claims["user_id"])
	assert.Equal(t, username, claims["username"])
	assert.Equal(t, email, claims["email"])
	assert.Equal(t, "test-issuer", claims["iss"])
}

func TestJWTManager_ValidateToken(t *testing.T) {
	jwtManager := NewJWTManager("test-secret", "test-issuer")

	userID := uuid.New()
	username := "testuser"
	email := "test@example.com"

	tests := []struct {
		name        string
		setupToken  func() string
		expectError bool
	}{
		{
			name: "Valid token",
			setupToken: func() string {
				token, _ := jwtManager.GenerateToken(userID, username, email)
				return token
			},
			expectError: false,
		},
		{
			name: "Tampered token",
			setupToken: func() string {
				token, _ := jwtManager.GenerateToken(userID, username, email)
				return token + "x"
			},
			expectError: true,
		},
		{
			name: "Token signed with a different secret",
			setupToken: func() string {
				other := NewJWTManager("other-secret", "test-issuer")
				token, _ := other.GenerateToken(userID, username, email)
				return token
			},
			expectError: true,
		},
		{
			name: "Garbage token",
			setupToken: func() string {
				return "not-a-token"
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := jwtManager.ValidateToken(tt.setupToken())
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, userID, claims.UserID)
			assert.Equal(t, username, claims.Username)
			assert.Equal(t, email, claims.Email)
		})
	}
}

func TestJWTManager_ExtractTokenFromBearer(t *testing.T) {
	jwtManager := NewJWTManager("test-secret", "test-issuer")

	assert.Equal(t, "abc123", jwtManager.ExtractTokenFromBearer("Bearer abc123"))
	assert.Equal(t, "", jwtManager.ExtractTokenFromBearer("abc123"))
	assert.Equal(t, "", jwtManager.ExtractTokenFromBearer(""))
	assert.Equal(t, "", jwtManager.ExtractTokenFromBearer("Bearer "))
}
