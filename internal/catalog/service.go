package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/datallboy/optolib/internal/domain"
	"github.com/datallboy/optolib/internal/infra/logger"
)

// HomeFeed is the home screen: an optional highlighted book followed by one
// section per category that has at least one valid book.
type HomeFeed struct {
	BookOfTheDay *domain.Book `json:"book_of_the_day,omitempty"`
	Sections     []Section    `json:"sections"`
}

type Section struct {
	Category domain.Category `json:"category"`
	Books    []domain.Book   `json:"books"`
}

// BackendInfo describes where catalog rows come from.
type BackendInfo struct {
	Backend string `json:"backend"`
	// Snapshots is nil when offline caching is off
	Snapshots map[string]bool `json:"snapshots,omitempty"`
}

type Service struct {
	gw  Gateway
	log *logger.Logger
}

func NewService(gw Gateway, log *logger.Logger) *Service {
	return &Service{gw: gw, log: log}
}

// Backend reports the gateway in use and, when it caches, which tables have
// an offline snapshot.
func (s *Service) Backend() BackendInfo {
	info := BackendInfo{Backend: s.gw.Name()}
	if c, ok := s.gw.(interface{ Snapshots() map[string]bool }); ok {
		info.Snapshots = c.Snapshots()
	}
	return info
}

// Home fetches all three tables concurrently. A table that fails is treated
// as empty; only when every table fails is the feed an error.
func (s *Service) Home(ctx context.Context) (HomeFeed, error) {
	var (
		featured   []domain.FeaturedEntry
		categories []domain.Category
		books      []domain.Book
		errs       [3]error
	)

	var g errgroup.Group
	g.Go(func() error {
		featured, errs[0] = s.gw.Featured(ctx)
		return nil
	})
	g.Go(func() error {
		categories, errs[1] = s.gw.Categories(ctx)
		return nil
	})
	g.Go(func() error {
		books, errs[2] = s.gw.Books(ctx)
		return nil
	})
	_ = g.Wait()

	for i, table := range []string{TableFeatured, TableCategories, TableBooks} {
		if errs[i] != nil {
			s.log.Error("Error fetching %s: %v", table, errs[i])
		}
	}
	if errs[0] != nil && errs[1] != nil && errs[2] != nil {
		return HomeFeed{}, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, errors.Join(errs[:]...))
	}

	feed := HomeFeed{
		BookOfTheDay: bookOfTheDay(featured, books),
		Sections:     make([]Section, 0, len(categories)),
	}

	for _, cat := range categories {
		catBooks := booksIn(books, cat.ID)
		if len(catBooks) == 0 {
			s.log.Debug("Category %q has no valid books, skipping", cat.Title)
			continue
		}
		feed.Sections = append(feed.Sections, Section{Category: cat, Books: catBooks})
	}

	s.log.Debug("Home feed: %d featured, %d categories, %d books, %d sections",
		len(featured), len(categories), len(books), len(feed.Sections))
	return feed, nil
}

func (s *Service) Categories(ctx context.Context) ([]domain.Category, error) {
	return s.gw.Categories(ctx)
}

// BooksByCategory returns the valid books whose category_id is id.
func (s *Service) BooksByCategory(ctx context.Context, id string) ([]domain.Book, error) {
	books, err := s.gw.Books(ctx)
	if err != nil {
		return nil, err
	}
	return booksIn(books, id), nil
}

// Featured returns the book of the day, or ErrNotFound when there is none.
func (s *Service) Featured(ctx context.Context) (domain.Book, error) {
	entries, err := s.gw.Featured(ctx)
	if err != nil {
		return domain.Book{}, err
	}
	books, err := s.gw.Books(ctx)
	if err != nil {
		s.log.Warn("Could not match the featured book against the catalog: %v", err)
	}
	if b := bookOfTheDay(entries, books); b != nil {
		return *b, nil
	}
	return domain.Book{}, domain.ErrNotFound
}

// Book resolves a key against the books table, then the featured entries. A
// featured key resolves to the catalog book it features, so the returned
// book's Key may differ from key.
func (s *Service) Book(ctx context.Context, key domain.BookKey) (domain.Book, error) {
	books, err := s.gw.Books(ctx)
	if err != nil {
		return domain.Book{}, err
	}
	for _, b := range books {
		if b.Key() == key && b.Downloadable() {
			return b.WithDefaults(), nil
		}
	}

	entries, err := s.gw.Featured(ctx)
	if err != nil {
		s.log.Warn("Could not consult featured entries for %s: %v", key, err)
		return domain.Book{}, domain.ErrNotFound
	}
	for _, f := range entries {
		if b := f.AsBook(); b.Key() == key && b.Downloadable() {
			return resolveFeatured(f, books).WithDefaults(), nil
		}
	}

	return domain.Book{}, domain.ErrNotFound
}

// Search matches query case-insensitively against title, author and
// description. A blank query matches nothing.
func (s *Service) Search(ctx context.Context, query string) ([]domain.Book, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Book{}, nil
	}

	books, err := s.gw.Books(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Book, 0)
	for _, b := range books {
		if !b.Downloadable() || !b.Matches(query) {
			continue
		}
		out = append(out, b.WithDefaults())
	}
	return out, nil
}

func bookOfTheDay(entries []domain.FeaturedEntry, books []domain.Book) *domain.Book {
	for _, f := range entries {
		if f.LayoutType != domain.LayoutBookOfTheDay || !f.AsBook().Downloadable() {
			continue
		}
		b := resolveFeatured(f, books).WithDefaults()
		return &b
	}
	return nil
}

// resolveFeatured maps a featured entry onto the catalog book with the same
// PDF URL, or failing that the same title, so one asset has one BookKey.
// Entries with no catalog counterpart stand on their own.
func resolveFeatured(f domain.FeaturedEntry, books []domain.Book) domain.Book {
	fb := f.AsBook()

	url := strings.TrimSpace(fb.PDFURL)
	for _, b := range books {
		if b.Downloadable() && strings.TrimSpace(b.PDFURL) == url {
			return b
		}
	}

	title := strings.TrimSpace(fb.Title)
	if title == "" {
		return fb
	}
	for _, b := range books {
		if b.Downloadable() && strings.EqualFold(strings.TrimSpace(b.Title), title) {
			return b
		}
	}

	return fb
}

func booksIn(books []domain.Book, categoryID string) []domain.Book {
	out := make([]domain.Book, 0)
	for _, b := range books {
		if b.CategoryID != categoryID || !b.Downloadable() {
			continue
		}
		out = append(out, b.WithDefaults())
	}
	return out
}
