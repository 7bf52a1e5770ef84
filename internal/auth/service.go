package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/insurai/compliance-engine/internal/config"
)

// Role is a dashboard role
type Role string

// Roles
const (
	RoleHR       Role = "hr"
	RoleEmployee Role = "employee"
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole maps a login role onto a dashboard role. The legacy "user" role
// is an employee.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "hr":
		return RoleHR, nil
	case "employee", "user":
		return RoleEmployee, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
}

// Claims are the JWT claims issued at login
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// IsHR reports whether the token holder has the HR role
func (c *Claims) IsHR() bool {
	return c.Role == RoleHR
}

// User identifies who is signing in
type User struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name" binding:"required"`
	Role  string `json:"role" binding:"required"`
}

// Service issues and validates tokens
type Service struct {
	config config.AuthConfig
	now    func() time.Time
}

func NewService(cfg config.AuthConfig) *Service {
	return &Service{
		config: cfg,
		now:    time.Now,
	}
}

// GenerateToken signs a token for the user. The email is stored lowercased.
func (s *Service) GenerateToken(user User) (string, *Claims, error) {
	role, err := ParseRole(user.Role)
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	email := strings.ToLower(strings.TrimSpace(user.Email))
	claims := &Claims{
		Email: email,
		Name:  strings.TrimSpace(user.Name),
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
			Subject:   email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, claims, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithIssuer(s.config.Issuer), jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if _, err := ParseRole(string(claims.Role)); err != nil {
		return nil, err
	}

	return claims, nil
}
