package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c-pro/geche"
	"golang.org/x/crypto/bcrypt"

	"cmc-connect/internal/models"
	"cmc-connect/internal/repositories"
)

const DefaultTokenExpiry = 8 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Session is what a live token resolves to.
type Session struct {
	UserID int
	Role   string
}

// Config for the token service.
type Config struct {
	Secret      string
	TokenExpiry time.Duration
}

// Service issues bearer tokens on login and resolves them for middleware.
// Tokens are HMAC-signed with the service secret, so forged or tampered
// tokens are rejected before the cache is consulted. Sessions live in a
// TTL cache; a restart logs everyone out, which is acceptable for this
// deployment.
type Service struct {
	users      repositories.UserRepository
	liveTokens geche.Geche[string, Session]
	secret     []byte
	expiry     time.Duration
}

// NewService constructs a Service. ctx bounds the cache janitor goroutine.
func NewService(ctx context.Context, cfg Config, users repositories.UserRepository) *Service {
	expiry := cfg.TokenExpiry
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	return &Service{
		users:      users,
		liveTokens: geche.NewMapTTLCache[string, Session](ctx, expiry, time.Minute),
		secret:     []byte(cfg.Secret),
		expiry:     expiry,
	}
}

// Login verifies the password and returns a fresh token plus the user.
func (s *Service) Login(ctx context.Context, email, password string) (string, models.User, error) {
	user, hash, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return "", models.User{}, ErrInvalidCredentials
		}
		return "", models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", models.User{}, ErrInvalidCredentials
	}

	token, err := s.generateToken()
	if err != nil {
		return "", models.User{}, err
	}

	s.liveTokens.Set(token, Session{UserID: user.ID, Role: user.Role})
	return token, user, nil
}

// Validate resolves a bearer token to a session. The signature check comes
// first: a token this service never minted fails without a cache lookup.
func (s *Service) Validate(token string) (Session, error) {
	if !s.verifyToken(token) {
		return Session{}, ErrInvalidToken
	}
	return s.liveTokens.Get(token)
}

// Logout drops the token.
func (s *Service) Logout(token string) {
	_ = s.liveTokens.Del(token)
}

// Expiry reports the configured token lifetime.
func (s *Service) Expiry() time.Duration {
	return s.expiry
}

// generateToken mints "<random>.<signature>", both parts base64url.
func (s *Service) generateToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(b)
	return raw + "." + s.sign(raw), nil
}

func (s *Service) verifyToken(token string) bool {
	raw, sig, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(s.sign(raw)))
}

func (s *Service) sign(raw string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
