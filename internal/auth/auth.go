// Package auth covers password verification, JWT issuing, and user
// management.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/store"
)

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID   string
	Username string
	Role     string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == store.RoleAdmin
}

// CanEdit reports whether the identity may create and review changes.
func (i Identity) CanEdit() bool {
	return i.Role == store.RoleAdmin || i.Role == store.RoleEditor
}

type tokenClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Service authenticates users and mints HS256 tokens.
type Service struct {
	store  *store.Store
	secret []byte
	ttl    time.Duration
}

// NewService creates an auth service. ttl bounds token lifetime.
func NewService(s *store.Store, secret string, ttl time.Duration) *Service {
	return &Service{store: s, secret: []byte(secret), ttl: ttl}
}

// Login verifies credentials and returns a signed token plus the identity.
// Unknown user and wrong password return the same error so usernames cannot
// be probed.
func (s *Service) Login(ctx context.Context, username, password string) (string, Identity, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if cerrors.IsKind(err, cerrors.KindNotFound) {
			return "", Identity{}, cerrors.Unauthenticated("invalid credentials")
		}
		return "", Identity{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", Identity{}, cerrors.Unauthenticated("invalid credentials")
	}

	identity := Identity{UserID: user.ID, Username: user.Username, Role: user.Role}
	now := time.Now()
	claims := tokenClaims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", Identity{}, cerrors.Internal(err, "sign token")
	}
	return token, identity, nil
}

// Verify parses and validates a bearer token.
func (s *Service) Verify(tokenString string) (Identity, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, cerrors.Unauthenticated("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, cerrors.Unauthenticated("invalid or expired token")
	}
	return Identity{UserID: claims.Subject, Username: claims.Username, Role: claims.Role}, nil
}

// CreateUser hashes the password and stores a new user.
func (s *Service) CreateUser(ctx context.Context, username, password, role string) (*store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, cerrors.InvalidInput("username must not be empty")
	}
	if len(password) < 8 {
		return nil, cerrors.InvalidInput("password must be at least 8 characters")
	}
	switch role {
	case store.RoleAdmin, store.RoleEditor, store.RoleViewer:
	default:
		return nil, cerrors.Newf(cerrors.KindInvalidInput, "unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, cerrors.Internal(err, "hash password")
	}
	user := &store.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
