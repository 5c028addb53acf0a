// Package catalog reads the remote book catalog and shapes it for the screens
// that show it.
package catalog

import (
	"context"

	"github.com/datallboy/optolib/internal/domain"
)

// Backend table names.
const (
	TableCategories = "categories"
	TableBooks      = "books"
	TableFeatured   = "home_layouts"
)

// Gateway is the contract any catalog source (PostgREST, Postgres) must fulfill.
// Each call returns every row of its table.
type Gateway interface {
	Name() string
	Categories(ctx context.Context) ([]domain.Category, error)
	Books(ctx context.Context) ([]domain.Book, error)
	Featured(ctx context.Context) ([]domain.FeaturedEntry, error)
}
