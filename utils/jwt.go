package utils

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	secretMu  sync.RWMutex
	secretKey = []byte(os.Getenv("JWT_SECRET"))
)

// SetJWTSecret replaces the HMAC key used to sign and validate tokens.
func SetJWTSecret(secret string) {
	secretMu.Lock()
	defer secretMu.Unlock()
	secretKey = []byte(secret)
}

func currentSecret() ([]byte, error) {
	secretMu.RLock()
	defer secretMu.RUnlock()
	if len(secretKey) == 0 {
		return nil, errors.New("jwt secret is not configured")
	}
	return secretKey, nil
}

// TokenClaims is the subset of claims the API cares about.
type TokenClaims struct {
	Subject string
	Role    string
}

// GenerateToken creates a signed JWT token with the given subject (e.g. userID) and role.
// The token expires after the specified duration.
func GenerateToken(subject, role string, duration time.Duration) (string, error) {
	key, err := currentSecret()
	if err != nil {
		return "", err
	}
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(duration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// ValidateToken parses and validates a token string and returns the token if valid.
func ValidateToken(tokenString string) (*jwt.Token, error) {
	key, err := currentSecret()
	if err != nil {
		return nil, err
	}
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Ensure that the token's signing method is HMAC.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	})
}

// ExtractClaims validates the token and returns its subject and role.
func ExtractClaims(tokenString string) (TokenClaims, error) {
	token, err := ValidateToken(tokenString)
	if err != nil {
		return TokenClaims{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return TokenClaims{}, errors.New("invalid token")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return TokenClaims{}, errors.New("token does not contain a valid 'sub' claim")
	}
	role, _ := claims["role"].(string)

	return TokenClaims{Subject: sub, Role: role}, nil
}
