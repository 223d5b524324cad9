package auth_test

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/JaimeStill/curator/internal/auth"
)

const secret = "0123456789abcdef0123456789abcdef"

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTokens(t *testing.T) *auth.Tokens {
	t.Helper()
	cfg := auth.Config{Secret: secret}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return auth.NewTokens(&cfg)
}

func TestConfigFinalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := auth.Config{Secret: secret}
		if err := cfg.Finalize(nil); err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if cfg.Issuer != "curator" || cfg.TokenTTLDuration() != 12*time.Hour {
			t.Errorf("defaults = %+v", cfg)
		}
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("TEST_AUTH_SECRET", strings.Repeat("s", 40))
		t.Setenv("TEST_AUTH_TTL", "30m")

		cfg := auth.Config{}
		if err := cfg.Finalize(&auth.Env{Secret: "TEST_AUTH_SECRET", TokenTTL: "TEST_AUTH_TTL"}); err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if cfg.TokenTTLDuration() != 30*time.Minute {
			t.Errorf("ttl = %v", cfg.TokenTTLDuration())
		}
	})

	tests := []struct {
		name string
		cfg  auth.Config
	}{
		{"short secret", auth.Config{Secret: "short"}},
		{"bad ttl", auth.Config{Secret: secret, TokenTTL: "forever"}},
		{"negative ttl", auth.Config{Secret: secret, TokenTTL: "-1h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(nil); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestIssueVerify(t *testing.T) {
	tokens := newTokens(t)

	signed, err := tokens.Issue("ops@catalog", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	id, err := tokens.Verify(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.Subject != "ops@catalog" || id.Role != auth.RoleAdmin {
		t.Errorf("identity = %+v", id)
	}
}

func TestVerifyRejects(t *testing.T) {
	tokens := newTokens(t)

	sign := func(key string, method jwt.SigningMethod, c jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(method, c).SignedString([]byte(key))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"wrong secret", sign(strings.Repeat("x", 32), jwt.SigningMethodHS256, jwt.MapClaims{"sub": "a", "iss": "curator", "exp": future})},
		{"expired", sign(secret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "a", "iss": "curator", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"no expiry", sign(secret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "a", "iss": "curator"})},
		{"wrong issuer", sign(secret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "a", "iss": "other", "exp": future})},
		{"wrong algorithm", sign(secret, jwt.SigningMethodHS512, jwt.MapClaims{"sub": "a", "iss": "curator", "exp": future})},
		{"no subject", sign(secret, jwt.SigningMethodHS256, jwt.MapClaims{"iss": "curator", "exp": future})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tokens.Verify(tt.token); !errors.Is(err, auth.ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

type verifier struct {
	verify func(token string) (auth.Identity, error)
}

func (v *verifier) Verify(token string) (auth.Identity, error) {
	return v.verify(token)
}

func TestGuards(t *testing.T) {
	v := &verifier{verify: func(token string) (auth.Identity, error) {
		switch token {
		case "admin-token":
			return auth.Identity{Subject: "root", Role: auth.RoleAdmin}, nil
		case "user-token":
			return auth.Identity{Subject: "clerk", Role: auth.RoleUser}, nil
		}
		return auth.Identity{}, auth.ErrInvalidToken
	}}
	guards := auth.NewGuards(v, discard())

	var seen auth.Identity
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		guard      func(http.Handler) http.Handler
		header     string
		wantStatus int
		wantSub    string
	}{
		{"user missing header", guards.User, "", http.StatusUnauthorized, ""},
		{"user wrong scheme", guards.User, "Basic abc", http.StatusUnauthorized, ""},
		{"user invalid token", guards.User, "Bearer nope", http.StatusUnauthorized, ""},
		{"user ok", guards.User, "Bearer user-token", http.StatusOK, "clerk"},
		{"admin also passes user guard", guards.User, "Bearer admin-token", http.StatusOK, "root"},
		{"admin rejects user role", guards.Admin, "Bearer user-token", http.StatusForbidden, ""},
		{"admin ok", guards.Admin, "Bearer admin-token", http.StatusOK, "root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = auth.Identity{}
			req := httptest.NewRequest("POST", "/training/retrain", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			tt.guard(inner).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if seen.Subject != tt.wantSub {
				t.Errorf("subject = %q, want %q", seen.Subject, tt.wantSub)
			}
		})
	}
}

func TestRequireReusesOuterIdentity(t *testing.T) {
	calls := 0
	v := &verifier{verify: func(string) (auth.Identity, error) {
		calls++
		return auth.Identity{Subject: "root", Role: auth.RoleAdmin}, nil
	}}
	guards := auth.NewGuards(v, discard())

	handler := guards.User(guards.Admin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	req := httptest.NewRequest("DELETE", "/products/1", nil)
	req.Header.Set("Authorization", "Bearer t")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if calls != 1 {
		t.Errorf("token verified %d times, want 1", calls)
	}
}
