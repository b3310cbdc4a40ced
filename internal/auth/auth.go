// Package auth checks officer credentials and issues the JWTs the API accepts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"parking-occupancy-backend/internal/model"
)

var (
	// ErrInvalidCredentials is returned for an unknown email, a wrong password or an inactive officer.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims is the JWT payload of an officer session.
type Claims struct {
	OfficerID int64             `json:"officerId"`
	Role      model.OfficerRole `json:"role"`
	jwt.RegisteredClaims
}

// Officer is the public view of a logged-in officer.
type Officer struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	BadgeNumber string            `json:"badgeNumber"`
	Email       string            `json:"email"`
	Role        model.OfficerRole `json:"role"`
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Officer   Officer   `json:"officer"`
}

// Service authenticates officers against the officers table.
type Service struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
	log    *zap.Logger
	now    func() time.Time
}

// NewService creates an auth service signing HS256 tokens with secret.
func NewService(db *gorm.DB, secret string, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{
		db:     db,
		secret: []byte(secret),
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}
}

// Login verifies an email/password pair and returns a signed session token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	var officer model.Officer
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", email).First(&officer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to look up officer: %w", err)
	}
	if !officer.IsActive {
		s.log.Info("login refused for inactive officer", zap.Int64("officer_id", officer.OfficerID))
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(officer.Password), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.Issue(officer)
	if err != nil {
		return Session{}, err
	}

	s.log.Info("officer logged in", zap.Int64("officer_id", officer.OfficerID), zap.String("role", string(officer.Role)))
	return Session{
		Token:     token,
		ExpiresAt: expiresAt,
		Officer: Officer{
			ID:          officer.OfficerID,
			Name:        officer.Name,
			BadgeNumber: officer.BadgeNumber,
			Email:       officer.Email,
			Role:        officer.Role,
		},
	}, nil
}

// Issue signs a token for officer.
func (s *Service) Issue(officer model.Officer) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		OfficerID: officer.OfficerID,
		Role:      officer.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", officer.OfficerID),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt.UTC(), nil
}

// Verify parses a bearer token and returns its claims.
func (s *Service) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
