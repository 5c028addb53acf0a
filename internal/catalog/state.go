package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/datallboy/optolib/internal/domain"
)

type Status string

const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// State is what a screen renders: a spinner, the data, or a message.
type State[T any] struct {
	Status  Status `json:"status"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

// Watcher holds the latest State and pushes every change to its subscribers.
// A slow subscriber only ever sees the newest state.
type Watcher[T any] struct {
	mu   sync.Mutex
	cur  State[T]
	subs map[int]chan State[T]
	next int
}

func NewWatcher[T any]() *Watcher[T] {
	return &Watcher[T]{
		cur:  State[T]{Status: StatusLoading},
		subs: make(map[int]chan State[T]),
	}
}

func (w *Watcher[T]) Get() State[T] {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur
}

func (w *Watcher[T]) Set(s State[T]) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cur = s
	for _, ch := range w.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Watch returns a channel primed with the current state and a cancel func.
func (w *Watcher[T]) Watch() (<-chan State[T], func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.next
	w.next++
	ch := make(chan State[T], 1)
	ch <- w.cur
	w.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, id)
			close(ch)
			w.mu.Unlock()
		})
	}
}

// Load moves w through loading into success or error and returns the final state.
func Load[T any](ctx context.Context, w *Watcher[T], fetch func(context.Context) (T, error)) State[T] {
	prev := w.Get()
	w.Set(State[T]{Status: StatusLoading, Data: prev.Data})

	data, err := fetch(ctx)
	var next State[T]
	if err != nil {
		next = State[T]{Status: StatusError, Data: prev.Data, Message: err.Error()}
	} else {
		next = State[T]{Status: StatusSuccess, Data: data}
	}
	w.Set(next)
	return next
}

const recentLimit = 5

// Recent keeps the last distinct search queries, newest first.
type Recent struct {
	mu      sync.Mutex
	queries []string
}

func (r *Recent) Add(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]string, 0, recentLimit)
	next = append(next, query)
	for _, q := range r.queries {
		if strings.EqualFold(q, query) {
			continue
		}
		if len(next) == recentLimit {
			break
		}
		next = append(next, q)
	}
	r.queries = next
}

func (r *Recent) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

func (r *Recent) Clear() {
	r.mu.Lock()
	r.queries = nil
	r.mu.Unlock()
}

// Feeds holds one watcher per screen, all fed by the same service.
type Feeds struct {
	svc *Service

	Home       *Watcher[HomeFeed]
	Categories *Watcher[[]domain.Category]
	Category   *Watcher[[]domain.Book]
	Results    *Watcher[[]domain.Book]
	Recent     *Recent
}

func NewFeeds(svc *Service) *Feeds {
	return &Feeds{
		svc:        svc,
		Home:       NewWatcher[HomeFeed](),
		Categories: NewWatcher[[]domain.Category](),
		Category:   NewWatcher[[]domain.Book](),
		Results:    NewWatcher[[]domain.Book](),
		Recent:     &Recent{},
	}
}

func (f *Feeds) Service() *Service { return f.svc }

func (f *Feeds) RefreshHome(ctx context.Context) State[HomeFeed] {
	return Load(ctx, f.Home, f.svc.Home)
}

func (f *Feeds) RefreshCategories(ctx context.Context) State[[]domain.Category] {
	return Load(ctx, f.Categories, f.svc.Categories)
}

func (f *Feeds) OpenCategory(ctx context.Context, id string) State[[]domain.Book] {
	return Load(ctx, f.Category, func(ctx context.Context) ([]domain.Book, error) {
		return f.svc.BooksByCategory(ctx, id)
	})
}

// Search runs query and remembers it when it is not blank.
func (f *Feeds) Search(ctx context.Context, query string) State[[]domain.Book] {
	f.Recent.Add(query)
	return Load(ctx, f.Results, func(ctx context.Context) ([]domain.Book, error) {
		return f.svc.Search(ctx, query)
	})
}
