package library

import (
	"sort"

	"github.com/datallboy/optolib/internal/domain"
)

// Snapshot is an immutable view of the library. Every write publishes a new
// one; holders may read the maps freely but must never modify them.
type Snapshot struct {
	Downloaded  map[domain.BookKey]domain.DownloadRecord
	Downloading map[domain.BookKey]struct{}
	Progress    map[domain.BookKey]int
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Downloaded:  make(map[domain.BookKey]domain.DownloadRecord),
		Downloading: make(map[domain.BookKey]struct{}),
		Progress:    make(map[domain.BookKey]int),
	}
}

func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		Downloaded:  make(map[domain.BookKey]domain.DownloadRecord, len(s.Downloaded)),
		Downloading: make(map[domain.BookKey]struct{}, len(s.Downloading)),
		Progress:    make(map[domain.BookKey]int, len(s.Progress)),
	}
	for k, v := range s.Downloaded {
		next.Downloaded[k] = v
	}
	for k := range s.Downloading {
		next.Downloading[k] = struct{}{}
	}
	for k, v := range s.Progress {
		next.Progress[k] = v
	}
	return next
}

func (s *Snapshot) State(key domain.BookKey) domain.DownloadState {
	_, downloaded := s.Downloaded[key]
	_, downloading := s.Downloading[key]
	return domain.DownloadState{
		Key:        key,
		Downloaded: downloaded,
		InProgress: downloading,
		Progress:   s.Progress[key],
	}
}

// States lists every key the snapshot knows about, ordered by key.
func (s *Snapshot) States() []domain.DownloadState {
	seen := make(map[domain.BookKey]struct{}, len(s.Downloaded)+len(s.Downloading))
	for k := range s.Downloaded {
		seen[k] = struct{}{}
	}
	for k := range s.Downloading {
		seen[k] = struct{}{}
	}

	out := make([]domain.DownloadState, 0, len(seen))
	for k := range seen {
		out = append(out, s.State(k))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Subscribe delivers snapshots with latest-value-wins semantics: a slow
// reader skips intermediate states but always sees the newest one. The
// current snapshot is delivered first. Call the returned func to unsubscribe.
func (l *Library) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)

	l.subsMu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	ch <- l.snap.Load()
	l.subsMu.Unlock()

	return ch, func() {
		l.subsMu.Lock()
		defer l.subsMu.Unlock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(ch)
		}
	}
}

// publish must be called with l.mu held.
func (l *Library) publish(next *Snapshot) {
	l.snap.Store(next)

	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	for _, ch := range l.subs {
		select {
		case ch <- next:
		default:
			// Replace the stale value nobody has read yet
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- next:
			default:
			}
		}
	}
}
