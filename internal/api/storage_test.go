package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/curator/internal/auth"
	"github.com/JaimeStill/curator/pkg/routes"
	"github.com/JaimeStill/curator/pkg/storage"
)

type blobs map[string][]byte

func (b blobs) Download(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := b[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestImageHandler(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	store := blobs{"products/abc/photo.png": png}
	pass := func(next http.Handler) http.Handler { return next }

	h := newImageHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)), auth.Guards{User: pass, Admin: pass})
	mux := http.NewServeMux()
	routes.Register(mux, h.routes())

	tests := []struct {
		name        string
		path        string
		status      int
		contentType string
	}{
		{"found", "/images/products/abc/photo.png", http.StatusOK, "image/png"},
		{"missing", "/images/products/abc/other.png", http.StatusNotFound, "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := rec.Header().Get("Content-Type"); got != tt.contentType {
				t.Errorf("content type = %q, want %q", got, tt.contentType)
			}
			if tt.status == http.StatusOK && !bytes.Equal(rec.Body.Bytes(), png) {
				t.Error("body does not match stored image")
			}
		})
	}
}
