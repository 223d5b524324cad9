package products

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/JaimeStill/curator/internal/auth"
	"github.com/JaimeStill/curator/pkg/handlers"
	"github.com/JaimeStill/curator/pkg/pagination"
	"github.com/JaimeStill/curator/pkg/query"
	"github.com/JaimeStill/curator/pkg/repository"
)

type repo struct {
	db         *sql.DB
	blobs      Blobs
	logger     *slog.Logger
	pagination pagination.Config
	classes    int
}

// New creates a product ledger implementing the System interface.
// classes bounds the category labels Create accepts.
func New(
	db *sql.DB,
	blobs Blobs,
	logger *slog.Logger,
	pagination pagination.Config,
	classes int,
) System {
	return &repo{
		db:         db,
		blobs:      blobs,
		logger:     logger.With("system", "products"),
		pagination: pagination,
		classes:    classes,
	}
}

func (r *repo) Handler(maxUploadSize int64, guards auth.Guards) *Handler {
	return NewHandler(r, r.logger, r.pagination, maxUploadSize, guards)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Product], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Designation", "Description")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Product, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	p, err := repository.QueryOne(ctx, r.db, q, args, scanProduct)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &p, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Product, error) {
	if err := handlers.Validate(cmd); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProduct, err)
	}
	if cmd.Category >= r.classes {
		return nil, fmt.Errorf("%w: category %d outside [0, %d)", ErrInvalidProduct, cmd.Category, r.classes)
	}

	id := uuid.New()
	key := imageKey(id, cmd.Filename)

	if err := r.blobs.Upload(ctx, key, bytes.NewReader(cmd.Image), cmd.ContentType); err != nil {
		return nil, fmt.Errorf("upload product image: %w", err)
	}

	q := `
		INSERT INTO products(id, image_key, designation, description, category)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + columns

	args := []any{id, key, cmd.Designation, cmd.Description, cmd.Category}

	p, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Product, error) {
		return repository.QueryOne(ctx, tx, q, args, scanProduct)
	})
	if err != nil {
		if delErr := r.blobs.Delete(ctx, key); delErr != nil {
			r.logger.Warn("compensating blob delete failed", "key", key, "error", delErr)
		}
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("product created", "id", p.ID, "category", p.Category)
	return &p, nil
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := r.Find(ctx, id)
	if err != nil {
		return err
	}

	_, err = repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, repository.ExecExpectOne(ctx, tx, "DELETE FROM products WHERE id = $1", id)
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	if delErr := r.blobs.Delete(ctx, p.ImageKey); delErr != nil {
		r.logger.Warn("blob delete failed after DB delete", "key", p.ImageKey, "error", delErr)
	}

	r.logger.Info("product deleted", "id", id)
	return nil
}

func (r *repo) Untrained(ctx context.Context) ([]Product, error) {
	q, args := query.
		NewBuilder(projection, oldestFirst).
		WhereEquals("State", StateUntrained).
		Build()

	items, err := repository.QueryMany(ctx, r.db, q, args, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("query untrained products: %w", err)
	}
	return items, nil
}

func (r *repo) Claim(ctx context.Context, fn func(batch []Product) error) error {
	q, args := query.
		NewBuilder(projection, oldestFirst).
		WhereEquals("State", StateUntrained).
		BuildLocked()

	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		batch, err := repository.QueryMany(ctx, tx, q, args, scanProduct)
		if err != nil {
			return struct{}{}, fmt.Errorf("lock untrained products: %w", err)
		}
		if len(batch) == 0 {
			return struct{}{}, ErrNothingToClaim
		}

		r.logger.Info("claimed untrained products", "count", len(batch))

		if err := fn(batch); err != nil {
			return struct{}{}, err
		}

		ids := make([]uuid.UUID, len(batch))
		for i, p := range batch {
			ids[i] = p.ID
		}
		return struct{}{}, markTrained(ctx, tx, ids)
	})
	return err
}

func (r *repo) MarkTrained(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, markTrained(ctx, tx, ids)
	})
	return err
}

func (r *repo) Counts(ctx context.Context) (Counts, error) {
	const q = `
		SELECT
			COUNT(*) FILTER (WHERE state = 'untrained'),
			COUNT(*) FILTER (WHERE state = 'trained')
		FROM products`

	var c Counts
	if err := r.db.QueryRowContext(ctx, q).Scan(&c.Untrained, &c.Trained); err != nil {
		return Counts{}, fmt.Errorf("count products by state: %w", err)
	}
	c.Total = c.Untrained + c.Trained
	return c, nil
}

// markTrained flips exactly ids from untrained to trained within tx.
func markTrained(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) error {
	from, to := StateUntrained, StateTrained
	if err := from.Transition(to); err != nil {
		return err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	err := repository.ExecExpectN(
		ctx, tx, int64(len(ids)),
		`UPDATE products SET state = $2, trained_at = NOW()
		 WHERE id = ANY($1::uuid[]) AND state = $3`,
		keys, string(to), string(from),
	)
	if errors.Is(err, repository.ErrRowCount) {
		return fmt.Errorf("%w: %w", ErrClaimConflict, err)
	}
	if err != nil {
		return fmt.Errorf("mark products trained: %w", err)
	}
	return nil
}

func imageKey(id uuid.UUID, filename string) string {
	name := filepath.Base(filename)
	if name == "." || name == "/" || name == "" {
		name = "image"
	}
	return fmt.Sprintf("products/%s/%s", id, url.PathEscape(name))
}
