package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/prizewheel/internal/auth"
	"github.com/victornm/prizewheel/internal/errors"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestService_LoginVerify(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s := makeService(t, func() time.Time { return now })
	ctx := context.Background()

	resp, err := s.Login(ctx, auth.LoginRequest{Username: "admin", Password: "secret-pass"})
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), resp.ExpiresAt)

	sub, err := s.Verify(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", sub)
}

func TestService_Login_InvalidCredentials(t *testing.T) {
	s := makeService(t, nil)

	for name, req := range map[string]auth.LoginRequest{
		"wrong password": {Username: "admin", Password: "nope"},
		"wrong username": {Username: "root", Password: "secret-pass"},
		"empty":          {},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Login(context.Background(), req)
			assert.Equal(t, errors.CodeUnauthenticated, errors.Convert(err).Code)
		})
	}
}

func TestService_Verify_Rejects(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	s := makeService(t, func() time.Time { return clock })
	ctx := context.Background()

	resp, err := s.Login(ctx, auth.LoginRequest{Username: "admin", Password: "secret-pass"})
	require.NoError(t, err)

	tests := map[string]struct {
		token   func() string
		advance time.Duration
		message string
	}{
		"an empty token": {
			token:   func() string { return " " },
			message: "missing token",
		},
		"an expired token": {
			token:   func() string { return resp.Token },
			advance: 2 * time.Hour,
			message: "expired",
		},
		"a tampered token": {
			token: func() string {
				parts := strings.Split(resp.Token, ".")
				return parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]
			},
			message: "signature",
		},
		"a token signed with another secret": {
			token: func() string {
				tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
					"iss":  "prizewheel",
					"sub":  "admin",
					"role": "admin",
					"exp":  now.Add(time.Hour).Unix(),
				})
				signed, err := tok.SignedString([]byte("another-secret-another-secret-xx"))
				require.NoError(t, err)
				return signed
			},
			message: "signature",
		},
		"a token without the admin role": {
			token: func() string {
				tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
					"iss": "prizewheel",
					"sub": "player",
					"exp": now.Add(time.Hour).Unix(),
				})
				signed, err := tok.SignedString([]byte(secret))
				require.NoError(t, err)
				return signed
			},
			message: "admin",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			clock = now.Add(tt.advance)

			_, err := s.Verify(ctx, tt.token())
			e := errors.Convert(err)
			assert.Equal(t, errors.CodeUnauthenticated, e.Code)
			assert.Contains(t, e.Message, tt.message)
		})
	}
}

func TestNewService_Validates(t *testing.T) {
	_, err := auth.NewService(auth.Config{Username: "admin", Password: "p", Secret: "short"})
	require.Error(t, err)

	_, err = auth.NewService(auth.Config{Secret: secret})
	require.Error(t, err)
}

func makeService(t *testing.T, now func() time.Time) *auth.Service {
	s, err := auth.NewService(auth.Config{
		Username: "admin",
		Password: "secret-pass",
		Secret:   secret,
		TokenTTL: time.Hour,
		Now:      now,
	})
	require.NoError(t, err)
	return s
}
