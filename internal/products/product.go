// Package products is the ledger of classification examples: each product
// pairs an image and text with a category label and a training state.
package products

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State tracks whether a product has been consumed by a training run.
type State string

const (
	StateUntrained State = "untrained"
	StateTrained   State = "trained"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s == StateUntrained || s == StateTrained
}

// Transition checks that moving from s to next is permitted.
// The only legal move is untrained to trained; trained is terminal.
func (s State) Transition(next State) error {
	if s == StateUntrained && next == StateTrained {
		return nil
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s, next)
}

// Product is one labeled classification example.
type Product struct {
	ID          uuid.UUID  `json:"id"`
	ImageKey    string     `json:"image_key"`
	Designation string     `json:"designation"`
	Description string     `json:"description"`
	Category    int        `json:"category"`
	State       State      `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	TrainedAt   *time.Time `json:"trained_at,omitempty"`
}

// Text is the combined text the classifier reads.
func (p Product) Text() string {
	return p.Designation + " " + p.Description
}

// CreateCommand carries a new product and its image bytes.
type CreateCommand struct {
	Image       []byte `validate:"required"`
	Filename    string
	ContentType string `validate:"startswith=image/"`
	Designation string `validate:"required,max=512"`
	Description string `validate:"max=8192"`
	Category    int    `validate:"gte=0"`
}

// Counts summarizes the ledger by state.
type Counts struct {
	Untrained int `json:"untrained"`
	Trained   int `json:"trained"`
	Total     int `json:"total"`
}
