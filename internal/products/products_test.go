package products_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/curator/internal/auth"
	"github.com/JaimeStill/curator/internal/products"
	"github.com/JaimeStill/curator/pkg/pagination"
	"github.com/JaimeStill/curator/pkg/routes"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockSystem struct {
	listFn   func(ctx context.Context, page pagination.PageRequest, filters products.Filters) (*pagination.PageResult[products.Product], error)
	findFn   func(ctx context.Context, id uuid.UUID) (*products.Product, error)
	createFn func(ctx context.Context, cmd products.CreateCommand) (*products.Product, error)
	deleteFn func(ctx context.Context, id uuid.UUID) error
}

func (m *mockSystem) Handler(int64, auth.Guards) *products.Handler { return nil }

func (m *mockSystem) List(ctx context.Context, page pagination.PageRequest, filters products.Filters) (*pagination.PageResult[products.Product], error) {
	return m.listFn(ctx, page, filters)
}

func (m *mockSystem) Find(ctx context.Context, id uuid.UUID) (*products.Product, error) {
	return m.findFn(ctx, id)
}

func (m *mockSystem) Create(ctx context.Context, cmd products.CreateCommand) (*products.Product, error) {
	return m.createFn(ctx, cmd)
}

func (m *mockSystem) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFn(ctx, id)
}

func (m *mockSystem) Untrained(context.Context) ([]products.Product, error) { return nil, nil }

func (m *mockSystem) Claim(context.Context, func([]products.Product) error) error { return nil }

func (m *mockSystem) MarkTrained(context.Context, []uuid.UUID) error { return nil }

func (m *mockSystem) Counts(context.Context) (products.Counts, error) {
	return products.Counts{}, nil
}

func pass(next http.Handler) http.Handler { return next }

func adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Role") != auth.RoleAdmin {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var pageConfig = pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}

func newMux(sys products.System, maxUpload int64) *http.ServeMux {
	h := products.NewHandler(sys, discard(), pageConfig, maxUpload, auth.Guards{User: pass, Admin: adminOnly})
	mux := http.NewServeMux()
	routes.Register(mux, h.Routes())
	return mux
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func multipartBody(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if image != nil {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="image"; filename="photo.png"`)
		hdr.Set("Content-Type", "application/octet-stream")
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(image)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestStateTransition(t *testing.T) {
	tests := []struct {
		from, to products.State
		ok       bool
	}{
		{products.StateUntrained, products.StateTrained, true},
		{products.StateTrained, products.StateUntrained, false},
		{products.StateTrained, products.StateTrained, false},
		{products.StateUntrained, products.StateUntrained, false},
		{products.State("archived"), products.StateTrained, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_to_%s", tt.from, tt.to), func(t *testing.T) {
			err := tt.from.Transition(tt.to)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, products.ErrInvalidTransition) {
				t.Errorf("err = %v, want ErrInvalidTransition", err)
			}
		})
	}
}

func TestProductText(t *testing.T) {
	p := products.Product{Designation: "Red mug", Description: "ceramic 300ml"}
	if got := p.Text(); got != "Red mug ceramic 300ml" {
		t.Errorf("Text() = %q", got)
	}
}

func TestFiltersFromQuery(t *testing.T) {
	f := products.FiltersFromQuery(url.Values{
		"state":       {"trained"},
		"category":    {"3"},
		"designation": {"mug"},
	})
	if f.State == nil || *f.State != products.StateTrained {
		t.Errorf("state = %v, want trained", f.State)
	}
	if f.Category == nil || *f.Category != 3 {
		t.Errorf("category = %v, want 3", f.Category)
	}
	if f.Designation == nil || *f.Designation != "mug" {
		t.Errorf("designation = %v, want mug", f.Designation)
	}

	ignored := products.FiltersFromQuery(url.Values{
		"state":    {"archived"},
		"category": {"-1"},
	})
	if ignored.State != nil || ignored.Category != nil {
		t.Errorf("invalid values should be ignored: %+v", ignored)
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{products.ErrNotFound, http.StatusNotFound},
		{products.ErrDuplicate, http.StatusConflict},
		{fmt.Errorf("wrap: %w", products.ErrClaimConflict), http.StatusConflict},
		{products.ErrInvalidTransition, http.StatusConflict},
		{products.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{products.ErrInvalidProduct, http.StatusBadRequest},
		{errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := products.MapHTTPStatus(tt.err); got != tt.want {
			t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestDetectContentType(t *testing.T) {
	if got := products.DetectContentType("image/jpeg", pngHeader); got != "image/jpeg" {
		t.Errorf("declared type should win, got %q", got)
	}
	if got := products.DetectContentType("application/octet-stream", pngHeader); got != "image/png" {
		t.Errorf("sniffed type = %q, want image/png", got)
	}
	if got := products.DetectContentType("", []byte("hello")); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("sniffed type = %q, want text/plain", got)
	}
}

func TestHandlerList(t *testing.T) {
	var gotPage pagination.PageRequest
	var gotFilters products.Filters
	sys := &mockSystem{
		listFn: func(_ context.Context, page pagination.PageRequest, filters products.Filters) (*pagination.PageResult[products.Product], error) {
			gotPage, gotFilters = page, filters
			result := pagination.NewPageResult([]products.Product{{Designation: "mug"}}, 1, page.Page, page.PageSize)
			return &result, nil
		},
	}

	rec := httptest.NewRecorder()
	newMux(sys, 1<<20).ServeHTTP(rec, httptest.NewRequest("GET", "/products?page=2&state=untrained", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if gotPage.Page != 2 || gotPage.PageSize != 20 {
		t.Errorf("page = %+v", gotPage)
	}
	if gotFilters.State == nil || *gotFilters.State != products.StateUntrained {
		t.Errorf("filters = %+v", gotFilters)
	}
}

func TestHandlerSearch(t *testing.T) {
	var got products.Filters
	sys := &mockSystem{
		listFn: func(_ context.Context, page pagination.PageRequest, filters products.Filters) (*pagination.PageResult[products.Product], error) {
			got = filters
			result := pagination.NewPageResult([]products.Product{}, 0, page.Page, page.PageSize)
			return &result, nil
		},
	}
	mux := newMux(sys, 1<<20)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/products/search", strings.NewReader(`{"page":1,"category":4}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if got.Category == nil || *got.Category != 4 {
		t.Errorf("category filter = %v, want 4", got.Category)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/products/search", strings.NewReader(`{"state":"archived"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid state status = %d, want 400", rec.Code)
	}
}

func TestHandlerFind(t *testing.T) {
	id := uuid.New()
	sys := &mockSystem{
		findFn: func(_ context.Context, got uuid.UUID) (*products.Product, error) {
			if got != id {
				return nil, products.ErrNotFound
			}
			return &products.Product{ID: id, State: products.StateUntrained}, nil
		},
	}
	mux := newMux(sys, 1<<20)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/products/" + id.String(), http.StatusOK},
		{"missing", "/products/" + uuid.NewString(), http.StatusNotFound},
		{"malformed", "/products/not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandlerCreate(t *testing.T) {
	var got products.CreateCommand
	sys := &mockSystem{
		createFn: func(_ context.Context, cmd products.CreateCommand) (*products.Product, error) {
			got = cmd
			return &products.Product{ID: uuid.New(), Category: cmd.Category, State: products.StateUntrained}, nil
		},
	}
	mux := newMux(sys, 1<<20)

	body, contentType := multipartBody(t, map[string]string{
		"designation": " Red mug ",
		"description": "ceramic",
		"category":    "2",
	}, pngHeader)

	req := httptest.NewRequest("POST", "/products", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Role", auth.RoleAdmin)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if got.Designation != "Red mug" || got.Category != 2 || got.Filename != "photo.png" {
		t.Errorf("command = %+v", got)
	}
	if got.ContentType != "image/png" {
		t.Errorf("content type = %q, want sniffed image/png", got.ContentType)
	}

	var p products.Product
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.State != products.StateUntrained {
		t.Errorf("state = %q, want untrained", p.State)
	}
}

func TestHandlerCreateRejections(t *testing.T) {
	sys := &mockSystem{
		createFn: func(context.Context, products.CreateCommand) (*products.Product, error) {
			return nil, fmt.Errorf("%w: category outside range", products.ErrInvalidProduct)
		},
	}

	tests := []struct {
		name      string
		fields    map[string]string
		image     []byte
		maxUpload int64
		role      string
		want      int
	}{
		{"requires admin", map[string]string{"category": "1"}, pngHeader, 1 << 20, auth.RoleUser, http.StatusForbidden},
		{"non integer category", map[string]string{"category": "mugs"}, pngHeader, 1 << 20, auth.RoleAdmin, http.StatusBadRequest},
		{"missing image", map[string]string{"category": "1"}, nil, 1 << 20, auth.RoleAdmin, http.StatusBadRequest},
		{"too large", map[string]string{"category": "1"}, bytes.Repeat([]byte{0xff}, 4096), 512, auth.RoleAdmin, http.StatusRequestEntityTooLarge},
		{"rejected by ledger", map[string]string{"category": "99", "designation": "x"}, pngHeader, 1 << 20, auth.RoleAdmin, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.fields, tt.image)
			req := httptest.NewRequest("POST", "/products", body)
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("X-Role", tt.role)

			rec := httptest.NewRecorder()
			newMux(sys, tt.maxUpload).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestHandlerDelete(t *testing.T) {
	deleted := uuid.Nil
	sys := &mockSystem{
		deleteFn: func(_ context.Context, id uuid.UUID) error {
			deleted = id
			return nil
		},
	}
	id := uuid.New()

	req := httptest.NewRequest("DELETE", "/products/"+id.String(), nil)
	req.Header.Set("X-Role", auth.RoleAdmin)
	rec := httptest.NewRecorder()
	newMux(sys, 1<<20).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if deleted != id {
		t.Errorf("deleted %s, want %s", deleted, id)
	}
}
