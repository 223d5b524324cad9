//go:build integration

package products_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/golang-migrate/migrate/v4"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/JaimeStill/curator/internal/migrations"
	"github.com/JaimeStill/curator/internal/products"
	"github.com/JaimeStill/curator/pkg/pagination"
)

type memoryBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (m *memoryBlobs) Upload(_ context.Context, key string, body io.Reader, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return nil
}

func (m *memoryBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *memoryBlobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "curator",
				"POSTGRES_PASSWORD": "curator",
				"POSTGRES_DB":       "curator",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://curator:curator@%s:%s/curator?sslmode=disable", host, port.Port())

	m, err := migrations.New(dsn)
	if err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate up: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, sys products.System, n int) []products.Product {
	t.Helper()
	out := make([]products.Product, 0, n)
	for i := range n {
		p, err := sys.Create(context.Background(), products.CreateCommand{
			Image:       pngHeader,
			Filename:    fmt.Sprintf("item-%d.png", i),
			ContentType: "image/png",
			Designation: fmt.Sprintf("item %d", i),
			Category:    i % 3,
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		out = append(out, *p)
	}
	return out
}

func TestLedgerIntegration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	blobs := &memoryBlobs{blobs: map[string][]byte{}}
	sys := products.New(db, blobs, discard(), pageConfig, 3)

	created := seed(t, sys, 4)
	if blobs.count() != 4 {
		t.Fatalf("blob count = %d, want 4", blobs.count())
	}

	t.Run("create rejects category outside model width", func(t *testing.T) {
		_, err := sys.Create(ctx, products.CreateCommand{
			Image: pngHeader, ContentType: "image/png", Designation: "x", Category: 3,
		})
		if !errors.Is(err, products.ErrInvalidProduct) {
			t.Errorf("err = %v, want ErrInvalidProduct", err)
		}
	})

	t.Run("list filters by category", func(t *testing.T) {
		cat := 0
		result, err := sys.List(ctx, pagination.PageRequest{Page: 1, PageSize: 10}, products.Filters{Category: &cat})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if result.Total != 2 {
			t.Errorf("total = %d, want 2", result.Total)
		}
	})

	t.Run("failed claim leaves everything untrained", func(t *testing.T) {
		boom := errors.New("fit failed")
		err := sys.Claim(ctx, func(batch []products.Product) error {
			if len(batch) != 4 {
				t.Errorf("batch = %d, want 4", len(batch))
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want %v", err, boom)
		}
		counts, err := sys.Counts(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if counts.Untrained != 4 || counts.Trained != 0 {
			t.Errorf("counts = %+v, want 4 untrained", counts)
		}
	})

	t.Run("successful claim flips exactly the batch", func(t *testing.T) {
		var late *products.Product
		err := sys.Claim(ctx, func(batch []products.Product) error {
			if batch[0].ID != created[0].ID {
				t.Errorf("batch should be oldest first")
			}
			var err error
			late, err = sys.Create(ctx, products.CreateCommand{
				Image: pngHeader, ContentType: "image/png", Designation: "late", Category: 1,
			})
			return err
		})
		if err != nil {
			t.Fatalf("claim: %v", err)
		}

		counts, _ := sys.Counts(ctx)
		if counts.Trained != 4 || counts.Untrained != 1 || counts.Total != 5 {
			t.Errorf("counts = %+v, want 4 trained and 1 untrained", counts)
		}

		p, err := sys.Find(ctx, late.ID)
		if err != nil {
			t.Fatal(err)
		}
		if p.State != products.StateUntrained || p.TrainedAt != nil {
			t.Errorf("late product = %+v, want untrained", p)
		}

		trained, _ := sys.Find(ctx, created[0].ID)
		if trained.State != products.StateTrained || trained.TrainedAt == nil {
			t.Errorf("claimed product = %+v, want trained", trained)
		}
	})

	t.Run("mark trained is all or nothing", func(t *testing.T) {
		pending, err := sys.Untrained(ctx)
		if err != nil || len(pending) != 1 {
			t.Fatalf("untrained = %v (%v)", len(pending), err)
		}

		err = sys.MarkTrained(ctx, []uuid.UUID{pending[0].ID, created[1].ID})
		if !errors.Is(err, products.ErrClaimConflict) {
			t.Fatalf("err = %v, want ErrClaimConflict", err)
		}
		p, _ := sys.Find(ctx, pending[0].ID)
		if p.State != products.StateUntrained {
			t.Error("partial mark should have rolled back")
		}

		if err := sys.MarkTrained(ctx, []uuid.UUID{pending[0].ID}); err != nil {
			t.Fatalf("mark trained: %v", err)
		}
	})

	t.Run("empty claim does not call fn", func(t *testing.T) {
		called := false
		err := sys.Claim(ctx, func([]products.Product) error {
			called = true
			return nil
		})
		if !errors.Is(err, products.ErrNothingToClaim) || called {
			t.Errorf("err = %v called = %v, want ErrNothingToClaim without call", err, called)
		}
	})

	t.Run("delete removes row and blob", func(t *testing.T) {
		before := blobs.count()
		if err := sys.Delete(ctx, created[3].ID); err != nil {
			t.Fatal(err)
		}
		if _, err := sys.Find(ctx, created[3].ID); !errors.Is(err, products.ErrNotFound) {
			t.Errorf("find after delete = %v, want ErrNotFound", err)
		}
		if blobs.count() != before-1 {
			t.Errorf("blob count = %d, want %d", blobs.count(), before-1)
		}
		if err := sys.Delete(ctx, created[3].ID); !errors.Is(err, products.ErrNotFound) {
			t.Errorf("second delete = %v, want ErrNotFound", err)
		}
	})
}
