package pagination_test

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/JaimeStill/curator/pkg/pagination"
	"github.com/JaimeStill/curator/pkg/query"
)

func defaults() pagination.Config {
	return pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}
}

func TestConfigFinalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := pagination.Config{}
		if err := cfg.Finalize(nil); err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if cfg != defaults() {
			t.Errorf("got %+v, want %+v", cfg, defaults())
		}
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("TEST_PAGE_DEFAULT", "5")
		t.Setenv("TEST_PAGE_MAX", "50")

		cfg := pagination.Config{}
		if err := cfg.Finalize(&pagination.Env{
			DefaultPageSize: "TEST_PAGE_DEFAULT",
			MaxPageSize:     "TEST_PAGE_MAX",
		}); err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if cfg.DefaultPageSize != 5 || cfg.MaxPageSize != 50 {
			t.Errorf("got %+v", cfg)
		}
	})

	t.Run("default above max rejected", func(t *testing.T) {
		cfg := pagination.Config{DefaultPageSize: 200, MaxPageSize: 100}
		if err := cfg.Finalize(nil); err == nil {
			t.Error("expected validation error")
		}
	})
}

func TestPageRequestFromQuery(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		wantPage     int
		wantSize     int
		wantSearch   string
		wantSortSize int
	}{
		{"empty uses defaults", "", 1, 20, "", 0},
		{"explicit", "page=3&page_size=10&search=lamp&sort=-CreatedAt", 3, 10, "lamp", 1},
		{"clamped to max", "page=0&page_size=500", 1, 100, "", 0},
		{"garbage ignored", "page=x&page_size=y", 1, 20, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, _ := url.ParseQuery(tt.query)
			req := pagination.PageRequestFromQuery(values, defaults())

			if req.Page != tt.wantPage || req.PageSize != tt.wantSize {
				t.Errorf("page/size = %d/%d, want %d/%d", req.Page, req.PageSize, tt.wantPage, tt.wantSize)
			}
			if tt.wantSearch == "" && req.Search != nil {
				t.Errorf("search = %q, want nil", *req.Search)
			}
			if tt.wantSearch != "" && (req.Search == nil || *req.Search != tt.wantSearch) {
				t.Errorf("search = %v, want %q", req.Search, tt.wantSearch)
			}
			if len(req.Sort) != tt.wantSortSize {
				t.Errorf("sort = %v", req.Sort)
			}
		})
	}
}

func TestPageRequestOffset(t *testing.T) {
	req := pagination.PageRequest{Page: 4, PageSize: 25}
	if got := req.Offset(); got != 75 {
		t.Errorf("Offset() = %d, want 75", got)
	}
}

func TestNewPageResult(t *testing.T) {
	tests := []struct {
		total, size, wantPages int
	}{
		{0, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{95, 10, 10},
	}

	for _, tt := range tests {
		got := pagination.NewPageResult[int](nil, tt.total, 1, tt.size)
		if got.TotalPages != tt.wantPages {
			t.Errorf("total %d size %d: pages = %d, want %d", tt.total, tt.size, got.TotalPages, tt.wantPages)
		}
		if got.Data == nil {
			t.Error("nil data should become an empty slice")
		}
	}
}

func TestSortFieldsUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		json string
		want []query.SortField
	}{
		{"string", `"Designation,-CreatedAt"`, []query.SortField{
			{Field: "Designation"},
			{Field: "CreatedAt", Descending: true},
		}},
		{"array", `[{"Field": "Category", "Descending": true}]`, []query.SortField{
			{Field: "Category", Descending: true},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got pagination.SortFields
			if err := json.Unmarshal([]byte(tt.json), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
