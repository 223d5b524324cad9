package products

import (
	"net/url"
	"strconv"

	"github.com/JaimeStill/curator/pkg/query"
	"github.com/JaimeStill/curator/pkg/repository"
)

const columns = "id, image_key, designation, description, category, state, created_at, trained_at"

var projection = query.
	NewProjectionMap("public", "products", "p").
	Project("id", "ID").
	Project("image_key", "ImageKey").
	Project("designation", "Designation").
	Project("description", "Description").
	Project("category", "Category").
	Project("state", "State").
	Project("created_at", "CreatedAt").
	Project("trained_at", "TrainedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// oldestFirst orders training batches by insertion so the validation
// hold-out drawn from the tail is the most recent data.
var oldestFirst = query.SortField{Field: "CreatedAt"}

// Filters narrows product queries. Nil fields are ignored.
type Filters struct {
	State       *State  `json:"state,omitempty" validate:"omitempty,oneof=untrained trained"`
	Category    *int    `json:"category,omitempty" validate:"omitempty,gte=0"`
	Designation *string `json:"designation,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("State", f.State).
		WhereEquals("Category", f.Category).
		WhereContains("Designation", f.Designation)
}

// FiltersFromQuery extracts filter values from URL query parameters.
// Unparseable values are ignored.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := State(values.Get("state")); s.Valid() {
		f.State = &s
	}
	if c := values.Get("category"); c != "" {
		if v, err := strconv.Atoi(c); err == nil && v >= 0 {
			f.Category = &v
		}
	}
	if d := values.Get("designation"); d != "" {
		f.Designation = &d
	}

	return f
}

func scanProduct(s repository.Scanner) (Product, error) {
	var p Product
	err := s.Scan(
		&p.ID,
		&p.ImageKey,
		&p.Designation,
		&p.Description,
		&p.Category,
		&p.State,
		&p.CreatedAt,
		&p.TrainedAt,
	)
	return p, err
}
