package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenLifetime is how long an issued token stays valid. Sessions run for
// an evening; a day of validity outlives any of them.
const tokenLifetime = 24 * time.Hour

// JWTManager issues and verifies the HS256 bearer tokens that identify
// players to the ledger API.
type JWTManager struct {
	secretKey []byte
	issuer    string
}

// Claims carries the player identity inside the token alongside the
// registered expiry and issuer claims.
type Claims struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	jwt.RegisteredClaims
}

func NewJWTManager(secretKey, issuer string) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secretKey),
		issuer:    issuer,
	}
}

// GenerateToken signs a fresh token for the user.
func (m *JWTManager) GenerateToken(userID uuid.UUID, username, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}

// ValidateToken parses and verifies a token. Anything not signed with this
// manager's key under an HMAC method is rejected; accepting the token's own
// alg header would let a forged token pick its verification scheme.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// ExtractTokenFromBearer strips the "Bearer " scheme from an Authorization
// header value, returning "" when the scheme is absent or the token empty.
func (m *JWTManager) ExtractTokenFromBearer(bearerToken string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(bearerToken, prefix) && len(bearerToken) > len(prefix) {
		return bearerToken[len(prefix):]
	}
	return ""
}
