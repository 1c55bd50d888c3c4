package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	jwtSecret []byte
	once      sync.Once
	initErr   error
)

// Init loads the signing secret once. Unlike the teacher's lazy
// os.Getenv read, the secret is supplied explicitly by the caller
// (config.Load) so a missing JWT_SECRET fails the command's startup
// instead of silently signing tokens with a guessable fallback.
func Init(secret string) error {
	once.Do(func() {
		if secret == "" {
			initErr = errors.New("auth: JWT_SECRET must not be empty")
			return
		}
		jwtSecret = []byte(secret)
	})
	return initErr
}

// HashPassword bcrypt-hashes an operator passphrase for storage in
// OPERATOR_PASSWORD_HASH, mirroring the teacher's user_service.go
// registration path.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks a login attempt against the configured
// operator password hash.
func VerifyPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return errors.New("auth: invalid credentials")
	}
	return nil
}

// Claims defines JWT claims for backtestd's control-plane tokens.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// GenerateToken issues a short-lived bearer token identifying the
// caller allowed to start/pause/resume/cancel runs.
func GenerateToken(subject string, ttl time.Duration) (string, error) {
	if len(jwtSecret) == 0 {
		return "", errors.New("auth: not initialized, call auth.Init first")
	}

	claims := &Claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "backtestd",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ValidateToken parses and verifies a bearer token.
func ValidateToken(tokenStr string) (*Claims, error) {
	if len(jwtSecret) == 0 {
		return nil, errors.New("auth: not initialized, call auth.Init first")
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
