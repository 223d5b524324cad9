package products

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/JaimeStill/curator/internal/auth"
	"github.com/JaimeStill/curator/pkg/pagination"
)

// System defines the public contract for the product ledger.
type System interface {
	Handler(maxUploadSize int64, guards auth.Guards) *Handler

	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Product], error)
	Find(ctx context.Context, id uuid.UUID) (*Product, error)
	Create(ctx context.Context, cmd CreateCommand) (*Product, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Untrained returns every untrained product, oldest first, without locking.
	Untrained(ctx context.Context) ([]Product, error)

	// Claim locks every untrained product, oldest first, and passes them to fn
	// inside one transaction. When fn succeeds exactly those products are
	// marked trained and the transaction commits; any error from fn or from
	// the update rolls back and leaves every product untrained. Products
	// created while fn runs are not part of the batch. Returns
	// ErrNothingToClaim without calling fn when there is nothing to train.
	Claim(ctx context.Context, fn func(batch []Product) error) error

	// MarkTrained atomically moves the given untrained products to trained.
	// If any id is unknown or already trained, none are changed.
	MarkTrained(ctx context.Context, ids []uuid.UUID) error

	Counts(ctx context.Context) (Counts, error)
}

// Blobs is the subset of blob storage the ledger uses for product images.
type Blobs interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
}
