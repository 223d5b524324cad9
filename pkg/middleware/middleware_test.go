package middleware_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/curator/pkg/middleware"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestApplyOrder(t *testing.T) {
	var order []string
	mw := middleware.New()

	for _, name := range []string{"first", "second"} {
		mw.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		})
	}

	handler := mw.Apply(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "handler" {
		t.Errorf("order: got %v, want [first second handler]", order)
	}
}

func TestCORS(t *testing.T) {
	enabled := &middleware.CORSConfig{
		Enabled:          true,
		Origins:          []string{"http://catalog.local"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           600,
	}

	tests := []struct {
		name       string
		cfg        *middleware.CORSConfig
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{"disabled", &middleware.CORSConfig{}, "GET", "http://catalog.local", "", http.StatusOK},
		{"allowed", enabled, "GET", "http://catalog.local", "http://catalog.local", http.StatusOK},
		{"disallowed", enabled, "GET", "http://elsewhere", "", http.StatusOK},
		{"preflight", enabled, "OPTIONS", "http://catalog.local", "http://catalog.local", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			handler := middleware.CORS(tt.cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("allow-origin = %q, want %q", got, tt.wantOrigin)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.method == "OPTIONS" && tt.cfg.Enabled && called {
				t.Error("preflight should not reach the handler")
			}
			if tt.wantOrigin != "" {
				if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
					t.Errorf("allow-credentials = %q", got)
				}
				if got := rec.Header().Get("Access-Control-Max-Age"); got != "600" {
					t.Errorf("max-age = %q", got)
				}
			}
		})
	}
}

func TestCORSConfigFinalize(t *testing.T) {
	t.Setenv("TEST_CORS_ENABLED", "true")
	t.Setenv("TEST_CORS_ORIGINS", "http://a.local, ,http://b.local")

	cfg := middleware.CORSConfig{}
	if err := cfg.Finalize(&middleware.CORSEnv{
		Enabled: "TEST_CORS_ENABLED",
		Origins: "TEST_CORS_ORIGINS",
	}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if !cfg.Enabled {
		t.Error("enabled should be true")
	}
	if len(cfg.Origins) != 2 || cfg.Origins[1] != "http://b.local" {
		t.Errorf("origins = %v", cfg.Origins)
	}
	if len(cfg.AllowedMethods) != 4 || cfg.MaxAge != 3600 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestCORSConfigMerge(t *testing.T) {
	base := middleware.CORSConfig{Origins: []string{"http://base"}, MaxAge: 3600}
	base.Merge(&middleware.CORSConfig{Enabled: true})

	if !base.Enabled {
		t.Error("enabled should apply from overlay")
	}
	if len(base.Origins) != 1 || base.MaxAge != 3600 {
		t.Errorf("unset overlay fields should not overwrite: %+v", base)
	}
}

func TestLoggerCapturesStatus(t *testing.T) {
	handler := middleware.Logger(discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/products", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}

func TestRecover(t *testing.T) {
	handler := middleware.Recover(discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}

	okRec := httptest.NewRecorder()
	middleware.Recover(discard())(okHandler()).ServeHTTP(okRec, httptest.NewRequest("GET", "/", nil))
	if okRec.Code != http.StatusOK {
		t.Errorf("passthrough status = %d", okRec.Code)
	}
}
