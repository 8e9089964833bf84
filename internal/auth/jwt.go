package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"

	"clickguard/internal/support"
)

const (
	tokenIssuer       = "clickguard"
	tokenLifetime     = 7 * 24 * time.Hour
	developmentSecret = "clickguard-development-secret"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingSecret = errors.New("JWT_SECRET must be set in production mode")

	secretMu  sync.RWMutex
	jwtSecret []byte
)

// LoadSecret reads JWT_SECRET. Outside production a missing value falls back
// to a fixed development key; in production it is an error and no key is set.
func LoadSecret(production bool) error {
	value := support.GetEnv("JWT_SECRET", "")
	if value == "" {
		if production {
			secretMu.Lock()
			jwtSecret = nil
			secretMu.Unlock()
			return ErrMissingSecret
		}
		log.Warn("JWT_SECRET is not set, using an insecure development secret")
		value = developmentSecret
	}
	SetSecret(value)
	return nil
}

// SetSecret overrides the signing key. Used by tests and by operators that
// load the secret from somewhere other than the environment.
func SetSecret(value string) {
	secretMu.Lock()
	jwtSecret = []byte(value)
	secretMu.Unlock()
}

func secret() ([]byte, error) {
	secretMu.RLock()
	defer secretMu.RUnlock()
	if len(jwtSecret) == 0 {
		return nil, ErrMissingSecret
	}
	return jwtSecret, nil
}

func GenerateJWT(userID uint, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iss":     tokenIssuer,
		"iat":     now.Unix(),
		"exp":     now.Add(tokenLifetime).Unix(),
	}

	key, err := secret()
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func ValidateJWT(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret()
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
