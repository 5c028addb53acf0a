// Package library is the local download store: the single writer of which
// books have a complete file on disk, plus the in-memory view of transfers
// that are still running.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/datallboy/optolib/internal/domain"
	"github.com/datallboy/optolib/internal/infra/logger"
)

// Store is the durable half of the library.
type Store interface {
	SaveDownload(ctx context.Context, rec domain.DownloadRecord) error
	GetDownloads(ctx context.Context) ([]domain.DownloadRecord, error)
	DeleteDownload(ctx context.Context, key domain.BookKey) error
	ClearDownloads(ctx context.Context) error
}

// File is a handle to a complete local PDF.
type File struct {
	Key   domain.BookKey
	Title string
	Path  string
	Size  int64
}

type Library struct {
	dir   string
	store Store
	log   *logger.Logger

	// mu serialises writers. Readers only load snap.
	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]

	// displaced holds records hidden while the same key is re-downloading
	displaced map[domain.BookKey]domain.DownloadRecord
	// parts are the partial file names of running transfers
	parts map[string]struct{}

	subsMu  sync.Mutex
	subs    map[int]chan *Snapshot
	nextSub int
}

// Open loads the persisted downloaded set. Nothing is in progress after a restart.
func Open(ctx context.Context, dir string, store Store, log *logger.Logger) (*Library, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create library dir: %w", err)
	}

	records, err := store.GetDownloads(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load downloads: %w", err)
	}

	s := emptySnapshot()
	for _, rec := range records {
		s.Downloaded[rec.Key] = rec
	}

	l := &Library{
		dir:       dir,
		store:     store,
		log:       log,
		displaced: make(map[domain.BookKey]domain.DownloadRecord),
		parts:     make(map[string]struct{}),
		subs:      make(map[int]chan *Snapshot),
	}
	l.snap.Store(s)

	log.Info("Library opened at %s with %d downloaded book(s)", dir, len(records))
	return l, nil
}

// Dir is the storage area every library file lives in.
func (l *Library) Dir() string { return l.dir }

func (l *Library) Snapshot() *Snapshot { return l.snap.Load() }

func (l *Library) IsDownloaded(key domain.BookKey) bool {
	_, ok := l.snap.Load().Downloaded[key]
	return ok
}

func (l *Library) IsDownloading(key domain.BookKey) bool {
	_, ok := l.snap.Load().Downloading[key]
	return ok
}

// Progress is the last percent reported for an active transfer, 0 if none.
func (l *Library) Progress(key domain.BookKey) int {
	return l.snap.Load().Progress[key]
}

func (l *Library) State(key domain.BookKey) domain.DownloadState {
	return l.snap.Load().State(key)
}

// List returns the persisted records ordered by title.
func (l *Library) List() []domain.DownloadRecord {
	s := l.snap.Load()
	out := make([]domain.DownloadRecord, 0, len(s.Downloaded))
	for _, rec := range s.Downloaded {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title == out[j].Title {
			return out[i].Key < out[j].Key
		}
		return out[i].Title < out[j].Title
	})
	return out
}

// Path is where the file for key/title lives once downloaded.
func (l *Library) Path(key domain.BookKey, title string) string {
	return filepath.Join(l.dir, domain.FileName(key, title))
}

// DownloadedFile returns the local file iff the book is downloaded. A record
// whose file vanished or is empty is dropped on the spot.
func (l *Library) DownloadedFile(key domain.BookKey) (*File, bool) {
	rec, ok := l.snap.Load().Downloaded[key]
	if !ok {
		return nil, false
	}

	path := filepath.Join(l.dir, rec.FileName)
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		l.log.Warn("Stale download for %s (%s), dropping record", key, rec.FileName)
		l.forget(context.Background(), rec, false)
		return nil, false
	}

	return &File{Key: key, Title: rec.Title, Path: path, Size: info.Size()}, true
}

// Remove deletes the book's file and record. Removing a book that is not downloaded is a no-op.
func (l *Library) Remove(ctx context.Context, key domain.BookKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.snap.Load()
	rec, ok := cur.Downloaded[key]
	if !ok {
		rec, ok = l.displaced[key]
	}
	if !ok {
		return nil
	}

	path := filepath.Join(l.dir, rec.FileName)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}

	if err := l.store.DeleteDownload(ctx, key); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", key, err)
	}

	delete(l.displaced, key)
	next := cur.clone()
	delete(next.Downloaded, key)
	l.publish(next)

	l.log.Info("Removed download: %s", rec.Title)
	return nil
}

// ClearAll deletes every library file and empties all three sets.
func (l *Library) ClearAll(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("failed to list library dir: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() || !isLibraryFile(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	if err := l.store.ClearDownloads(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear records: %w", err))
	}

	l.displaced = make(map[domain.BookKey]domain.DownloadRecord)
	l.parts = make(map[string]struct{})
	l.publish(emptySnapshot())

	l.log.Info("Cleared all downloads")
	return errors.Join(errs...)
}

// Reconcile drops every record whose file is missing or empty and deletes
// partial files left behind by a crash. It returns the dropped keys.
func (l *Library) Reconcile(ctx context.Context) ([]domain.BookKey, error) {
	var dropped []domain.BookKey
	for _, rec := range l.List() {
		info, err := os.Stat(filepath.Join(l.dir, rec.FileName))
		if err == nil && info.Size() > 0 {
			continue
		}
		ok, err := l.forget(ctx, rec, false)
		if err != nil {
			return dropped, err
		}
		if ok {
			dropped = append(dropped, rec.Key)
		}
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return dropped, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		if filepath.Ext(e.Name()) != PartSuffix {
			continue
		}
		if _, ok := l.parts[e.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, e.Name())); err == nil {
			l.log.Info("Removed orphaned partial file %s", e.Name())
		}
	}

	return dropped, nil
}

// VerifyHashes re-hashes every downloaded file and drops the books whose
// content no longer matches the recorded SHA-256. Records without a hash and
// books being re-downloaded are skipped.
func (l *Library) VerifyHashes(ctx context.Context) ([]domain.BookKey, error) {
	var corrupt []domain.BookKey
	for _, rec := range l.List() {
		if err := ctx.Err(); err != nil {
			return corrupt, err
		}
		if rec.SHA256 == "" || l.IsDownloading(rec.Key) {
			continue
		}

		path := filepath.Join(l.dir, rec.FileName)
		sum, err := domain.HashFile(path)
		if err == nil && sum == rec.SHA256 {
			continue
		}

		ok, err := l.forget(ctx, rec, true)
		if err != nil {
			return corrupt, err
		}
		if ok {
			l.log.Warn("Checksum mismatch for %s (%s), dropped record and file", rec.Key, rec.FileName)
			corrupt = append(corrupt, rec.Key)
		}
	}
	return corrupt, nil
}

// forget drops a record whose file can no longer be trusted, and with
// removeFile also deletes the file. It only acts while rec is still the
// current record for its key: a record committed since rec was read (a
// finished re-download) is left alone. Reports whether anything was dropped.
func (l *Library) forget(ctx context.Context, rec domain.DownloadRecord, removeFile bool) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.snap.Load()
	if got, ok := cur.Downloaded[rec.Key]; !ok || !sameRecord(got, rec) {
		return false, nil
	}

	if err := l.store.DeleteDownload(ctx, rec.Key); err != nil {
		l.log.Error("Failed to drop stale record %s: %v", rec.Key, err)
		return false, err
	}

	if removeFile {
		path := filepath.Join(l.dir, rec.FileName)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.log.Warn("Could not delete %s: %v", path, err)
		}
	}

	next := cur.clone()
	delete(next.Downloaded, rec.Key)
	l.publish(next)
	return true, nil
}

func sameRecord(a, b domain.DownloadRecord) bool {
	return a.FileName == b.FileName &&
		a.SHA256 == b.SHA256 &&
		a.Size == b.Size &&
		a.DownloadedAt.Equal(b.DownloadedAt)
}

// PartSuffix marks a transfer that has not completed yet.
const PartSuffix = ".part"

func isLibraryFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".pdf" || ext == PartSuffix
}
