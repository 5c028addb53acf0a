// Package reader is the boundary to the external PDF renderer. It hands out
// a local file and a start page, and records where the user stopped along
// with their bookmarks and notes. Pages are zero-based, as the renderer
// reports them.
package reader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/datallboy/optolib/internal/domain"
	"github.com/datallboy/optolib/internal/infra/logger"
	"github.com/datallboy/optolib/internal/library"
)

type Store interface {
	SavePage(ctx context.Context, key domain.BookKey, page int) error
	GetPage(ctx context.Context, key domain.BookKey) (int, error)

	SaveBookmark(ctx context.Context, b domain.Bookmark) error
	GetBookmarks(ctx context.Context, key domain.BookKey) ([]domain.Bookmark, error)
	DeleteBookmark(ctx context.Context, id string) error

	SaveNote(ctx context.Context, n domain.Note) error
	GetNote(ctx context.Context, id string) (domain.Note, error)
	GetNotes(ctx context.Context, key domain.BookKey) ([]domain.Note, error)
	DeleteNote(ctx context.Context, id string) error
}

type Library interface {
	DownloadedFile(key domain.BookKey) (*library.File, bool)
}

type Reader struct {
	store Store
	lib   Library
	log   *logger.Logger
}

func New(store Store, lib Library, log *logger.Logger) *Reader {
	return &Reader{store: store, lib: lib, log: log}
}

// Session is one open book.
type Session struct {
	Key       domain.BookKey `json:"key"`
	Title     string         `json:"title"`
	Path      string         `json:"path"`
	Size      int64          `json:"size"`
	StartPage int            `json:"start_page"`

	r    *Reader
	mu   sync.Mutex
	page int
}

// Open returns a session for a downloaded book, positioned at the last page read.
func (r *Reader) Open(ctx context.Context, key domain.BookKey) (*Session, error) {
	f, ok := r.lib.DownloadedFile(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotDownloaded, key)
	}

	page, err := r.store.GetPage(ctx, key)
	if err != nil {
		r.log.Warn("Could not load last page for %s, starting at 0: %v", key, err)
		page = 0
	}

	r.log.Debug("Opening %s at page %d", f.Path, page)

	return &Session{
		Key:       key,
		Title:     f.Title,
		Path:      f.Path,
		Size:      f.Size,
		StartPage: page,
		r:         r,
		page:      page,
	}, nil
}

// PageChanged persists the page the renderer now shows.
func (s *Session) PageChanged(ctx context.Context, page int) error {
	if page < 0 {
		return fmt.Errorf("%w: negative page %d", domain.ErrInvalidInput, page)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if page == s.page {
		return nil
	}
	if err := s.r.store.SavePage(ctx, s.Key, page); err != nil {
		return fmt.Errorf("failed to save page for %s: %w", s.Key, err)
	}
	s.page = page
	return nil
}

func (s *Session) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// SetPage records the last page without an open session.
func (r *Reader) SetPage(ctx context.Context, key domain.BookKey, page int) error {
	if strings.TrimSpace(string(key)) == "" || page < 0 {
		return fmt.Errorf("%w: key %q page %d", domain.ErrInvalidInput, key, page)
	}
	return r.store.SavePage(ctx, key, page)
}

func (r *Reader) LastPage(ctx context.Context, key domain.BookKey) (int, error) {
	return r.store.GetPage(ctx, key)
}

// AddBookmark bookmarks a page. Bookmarking the same page again keeps the first one.
func (r *Reader) AddBookmark(ctx context.Context, key domain.BookKey, title string, page int) (domain.Bookmark, error) {
	title = strings.TrimSpace(title)
	if strings.TrimSpace(string(key)) == "" || page < 0 {
		return domain.Bookmark{}, fmt.Errorf("%w: key %q page %d", domain.ErrInvalidInput, key, page)
	}
	if title == "" {
		title = string(key)
	}

	b := domain.Bookmark{
		ID:        domain.BookmarkID(key, page),
		Key:       key,
		Title:     title,
		Page:      page,
		Label:     domain.BookmarkLabel(title, page),
		CreatedAt: time.Now(),
	}
	if err := r.store.SaveBookmark(ctx, b); err != nil {
		return domain.Bookmark{}, err
	}

	r.log.Info("Bookmarked %s", b.Label)
	return b, nil
}

// Bookmarks lists the bookmarks of key, or of every book when key is empty.
func (r *Reader) Bookmarks(ctx context.Context, key domain.BookKey) ([]domain.Bookmark, error) {
	return r.store.GetBookmarks(ctx, key)
}

func (r *Reader) RemoveBookmark(ctx context.Context, id string) error {
	return r.store.DeleteBookmark(ctx, id)
}

// AddNote attaches a note to a book, optionally pinned to a page.
func (r *Reader) AddNote(ctx context.Context, key domain.BookKey, page *int, body string) (domain.Note, error) {
	body = strings.TrimSpace(body)
	if strings.TrimSpace(string(key)) == "" || body == "" {
		return domain.Note{}, fmt.Errorf("%w: note needs a book and a body", domain.ErrInvalidInput)
	}
	if page != nil && *page < 0 {
		return domain.Note{}, fmt.Errorf("%w: negative page %d", domain.ErrInvalidInput, *page)
	}

	now := time.Now()
	n := domain.Note{
		ID:        ksuid.New().String(),
		Key:       key,
		Page:      page,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.SaveNote(ctx, n); err != nil {
		return domain.Note{}, err
	}
	return n, nil
}

func (r *Reader) UpdateNote(ctx context.Context, id, body string) (domain.Note, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Note{}, fmt.Errorf("%w: blank note body", domain.ErrInvalidInput)
	}

	n, err := r.store.GetNote(ctx, id)
	if err != nil {
		return domain.Note{}, err
	}

	n.Body = body
	n.UpdatedAt = time.Now()
	if err := r.store.SaveNote(ctx, n); err != nil {
		return domain.Note{}, err
	}
	return n, nil
}

// Notes lists notes newest first, for one book or all when key is empty.
func (r *Reader) Notes(ctx context.Context, key domain.BookKey) ([]domain.Note, error) {
	return r.store.GetNotes(ctx, key)
}

func (r *Reader) RemoveNote(ctx context.Context, id string) error {
	return r.store.DeleteNote(ctx, id)
}
