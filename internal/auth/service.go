// Package auth registers users and turns bearer tokens into principals.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ideahub/backend/internal/database"
	"github.com/ideahub/backend/internal/models"
)

const tokenTTL = 24 * time.Hour

var (
	// ErrDuplicateEmail is returned when registering with an email that already exists.
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// UserStore is satisfied by both the Postgres and in-memory user repositories.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Service verifies credentials and issues JWTs.
type Service interface {
	Register(ctx context.Context, email, password, name string, skills []string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (models.Principal, error)
}

type service struct {
	users  UserStore
	secret []byte
	now    func() time.Time
}

// NewService returns a Service that signs tokens with secret.
func NewService(users UserStore, secret string) *service {
	return &service{users: users, secret: []byte(secret), now: time.Now}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
}

// Register creates a USER account. Administrators are provisioned out of band.
func (s *service) Register(ctx context.Context, email, password, name string, skills []string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" || name == "" || len(password) < 8 {
		return nil, fmt.Errorf("%w: email, name and a password of at least 8 characters are required", models.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		Skills:       skills,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if database.IsUniqueViolation(err, "users_email_key") {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return u, nil
}

// Login checks the password against the stored bcrypt hash and returns
// a signed token.
func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, models.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(u.ID, u.Role)
}

func (s *service) issueToken(userID uuid.UUID, role models.Role) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

// ValidateToken checks the signature and expiry and returns the principal
// the token was issued to.
func (s *service) ValidateToken(ctx context.Context, token string) (models.Principal, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return models.Principal{}, ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	if c.Role != models.RoleUser && c.Role != models.RoleAdmin {
		return models.Principal{}, fmt.Errorf("%w: unknown role", ErrInvalidToken)
	}
	return models.Principal{ID: id, Role: c.Role}, nil
}
