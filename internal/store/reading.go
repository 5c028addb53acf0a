package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/datallboy/optolib/internal/domain"
)

// SavePage stores the last page read for a book.
func (s *PersistentStore) SavePage(ctx context.Context, key domain.BookKey, page int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reading_progress (book_key, page, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(book_key) DO UPDATE SET page = excluded.page, updated_at = excluded.updated_at`,
		string(key), page, time.Now().Unix(),
	)
	return err
}

// GetPage returns 0 for a book that was never opened.
func (s *PersistentStore) GetPage(ctx context.Context, key domain.BookKey) (int, error) {
	var page int
	err := s.db.QueryRowContext(ctx, "SELECT page FROM reading_progress WHERE book_key = ?", string(key)).Scan(&page)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch page for %s: %w", key, err)
	}
	return page, nil
}

// SaveBookmark keeps the first bookmark for a page; repeats are ignored.
func (s *PersistentStore) SaveBookmark(ctx context.Context, b domain.Bookmark) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO bookmarks (id, book_key, title, page, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, string(b.Key), b.Title, b.Page, b.Label, b.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save bookmark %s: %w", b.ID, err)
	}
	return nil
}

// GetBookmarks lists bookmarks for one book, or for every book when key is empty.
func (s *PersistentStore) GetBookmarks(ctx context.Context, key domain.BookKey) ([]domain.Bookmark, error) {
	query := "SELECT id, book_key, title, page, label, created_at FROM bookmarks"
	var args []any
	if key != "" {
		query += " WHERE book_key = ?"
		args = append(args, string(key))
	}
	query += " ORDER BY book_key ASC, page ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookmarks: %w", err)
	}
	defer rows.Close()

	var out []domain.Bookmark
	for rows.Next() {
		var dbo bookmarkDBO
		if err := rows.Scan(&dbo.ID, &dbo.BookKey, &dbo.Title, &dbo.Page, &dbo.Label, &dbo.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, dbo.ToDomain())
	}
	return out, rows.Err()
}

func (s *PersistentStore) DeleteBookmark(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM bookmarks WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PersistentStore) SaveNote(ctx context.Context, n domain.Note) error {
	var dbo noteDBO
	dbo.FromDomain(n)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, book_key, page, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			page = excluded.page,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		dbo.ID, dbo.BookKey, dbo.Page, dbo.Body, dbo.CreatedAt, dbo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save note %s: %w", n.ID, err)
	}
	return nil
}

func (s *PersistentStore) GetNote(ctx context.Context, id string) (domain.Note, error) {
	var dbo noteDBO
	err := s.db.QueryRowContext(ctx, `
		SELECT id, book_key, page, body, created_at, updated_at
		FROM notes WHERE id = ? LIMIT 1`, id,
	).Scan(&dbo.ID, &dbo.BookKey, &dbo.Page, &dbo.Body, &dbo.CreatedAt, &dbo.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Note{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Note{}, err
	}
	return dbo.ToDomain(), nil
}

// GetNotes lists notes newest first. KSUID ids sort chronologically, so the id breaks ties.
func (s *PersistentStore) GetNotes(ctx context.Context, key domain.BookKey) ([]domain.Note, error) {
	query := "SELECT id, book_key, page, body, created_at, updated_at FROM notes"
	var args []any
	if key != "" {
		query += " WHERE book_key = ?"
		args = append(args, string(key))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var out []domain.Note
	for rows.Next() {
		var dbo noteDBO
		if err := rows.Scan(&dbo.ID, &dbo.BookKey, &dbo.Page, &dbo.Body, &dbo.CreatedAt, &dbo.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, dbo.ToDomain())
	}
	return out, rows.Err()
}

func (s *PersistentStore) DeleteNote(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
