package auth

import (
	"context"
	"crypto/subtle"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/prizewheel/internal/errors"
)

const (
	defaultTokenTTL = 12 * time.Hour
	issuer          = "prizewheel"
	adminRole       = "admin"
)

type Config struct {
	Username string
	Password string
	// Secret signs admin tokens (HS256).
	Secret   string
	TokenTTL time.Duration
	Now      func() time.Time
}

// Service gates the roulette editor behind a single configured admin account.
type Service struct {
	username string
	password string
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewService(c Config) (*Service, error) {
	if c.Username == "" || c.Password == "" {
		return nil, fmt.Errorf("auth: admin username and password are required")
	}
	if len(c.Secret) < 32 {
		return nil, fmt.Errorf("auth: secret must be at least 32 bytes")
	}

	s := &Service{
		username: c.Username,
		password: c.Password,
		secret:   []byte(c.Secret),
		ttl:      c.TokenTTL,
		now:      c.Now,
	}

	if s.ttl <= 0 {
		s.ttl = defaultTokenTTL
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s, nil
}

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type LoginRequest struct {
	Username string
	Password string
}

type LoginResponse struct {
	Token     string
	ExpiresAt time.Time
}

// Login checks the admin credentials and issues a signed token.
func (s *Service) Login(_ context.Context, req LoginRequest) (*LoginResponse, error) {
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.password)) == 1
	if !userOK || !passOK {
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid username or password"))
	}

	now := s.now().UTC()
	exp := now.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   req.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: adminRole,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &LoginResponse{
		Token:     signed,
		ExpiresAt: exp,
	}, nil
}

// Verify validates an admin token and returns its subject.
func (s *Service) Verify(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", unauthenticated("missing token")
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", mapJWTError(err)
	}

	if c.Role != adminRole {
		return "", unauthenticated("token does not grant admin access")
	}

	return c.Subject, nil
}

func mapJWTError(err error) error {
	switch {
	case stderrors.Is(err, jwt.ErrTokenExpired):
		return unauthenticated("token is expired")
	case stderrors.Is(err, jwt.ErrTokenSignatureInvalid):
		return unauthenticated("token signature is invalid")
	default:
		return errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("token is invalid"),
			errors.WithCause(err))
	}
}

func unauthenticated(msg string) error {
	return errors.New(errors.CodeUnauthenticated, errors.WithMessagef("%s", msg))
}
