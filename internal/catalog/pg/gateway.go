// Package pg reads catalog tables straight from the backend's Postgres database.
package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datallboy/optolib/internal/domain"
)

type Gateway struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Gateway, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &Gateway{pool: pool}, nil
}

func (g *Gateway) Name() string { return "postgres" }

func (g *Gateway) Close() {
	g.pool.Close()
}

type categoryRow struct {
	ID    string  `db:"id"`
	Title *string `db:"title"`
}

type bookRow struct {
	ID          string  `db:"id"`
	CategoryID  *string `db:"category_id"`
	Title       *string `db:"title"`
	Author      *string `db:"author"`
	Description *string `db:"description"`
	Image       *string `db:"image"`
	BookPDF     *string `db:"book_pdf"`
}

type featuredRow struct {
	ID          string  `db:"id"`
	LayoutType  *int32  `db:"layout_type"`
	Title       *string `db:"title"`
	Author      *string `db:"author"`
	Description *string `db:"description"`
	Image       *string `db:"image"`
	BookPDF     *string `db:"book_pdf"`
}

func (g *Gateway) Categories(ctx context.Context) ([]domain.Category, error) {
	rows, err := g.pool.Query(ctx, `SELECT id::text AS id, title FROM categories`)
	if err != nil {
		return nil, fmt.Errorf("categories query failed: %w", err)
	}

	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[categoryRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan categories: %w", err)
	}

	out := make([]domain.Category, 0, len(found))
	for _, r := range found {
		out = append(out, domain.Category{ID: r.ID, Title: str(r.Title)})
	}
	return out, nil
}

func (g *Gateway) Books(ctx context.Context) ([]domain.Book, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT id::text AS id, category_id::text AS category_id, title, author, description, image, book_pdf
		FROM books`)
	if err != nil {
		return nil, fmt.Errorf("books query failed: %w", err)
	}

	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[bookRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan books: %w", err)
	}

	out := make([]domain.Book, 0, len(found))
	for _, r := range found {
		out = append(out, domain.Book{
			ID:          r.ID,
			CategoryID:  str(r.CategoryID),
			Title:       str(r.Title),
			Author:      str(r.Author),
			Description: str(r.Description),
			Image:       str(r.Image),
			PDFURL:      str(r.BookPDF),
		})
	}
	return out, nil
}

func (g *Gateway) Featured(ctx context.Context) ([]domain.FeaturedEntry, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT id::text AS id, layout_type, title, author, description, image, book_pdf
		FROM home_layouts`)
	if err != nil {
		return nil, fmt.Errorf("home_layouts query failed: %w", err)
	}

	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[featuredRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan home_layouts: %w", err)
	}

	out := make([]domain.FeaturedEntry, 0, len(found))
	for _, r := range found {
		entry := domain.FeaturedEntry{
			ID:          r.ID,
			Title:       str(r.Title),
			Author:      str(r.Author),
			Description: str(r.Description),
			Image:       str(r.Image),
			PDFURL:      str(r.BookPDF),
		}
		if r.LayoutType != nil {
			entry.LayoutType = int(*r.LayoutType)
		}
		out = append(out, entry)
	}
	return out, nil
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
