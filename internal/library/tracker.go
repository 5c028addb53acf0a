package library

import (
	"context"
	"fmt"

	"github.com/datallboy/optolib/internal/domain"
)

// The methods below are the write side used by the download engine. Nothing
// else should call them.

// Begin marks key as in progress with 0%. A previously downloaded record is
// hidden until the transfer ends so downloaded and in-progress never overlap.
// Returns false if key is already in progress.
func (l *Library) Begin(key domain.BookKey, fileName string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.snap.Load()
	if _, busy := cur.Downloading[key]; busy {
		return false
	}

	next := cur.clone()
	if rec, ok := next.Downloaded[key]; ok {
		l.displaced[key] = rec
		delete(next.Downloaded, key)
	}
	next.Downloading[key] = struct{}{}
	next.Progress[key] = 0
	l.parts[fileName+PartSuffix] = struct{}{}

	l.publish(next)
	return true
}

// SetProgress records percent for an active transfer. Values are clamped to
// [0,100] and only published when they increase.
func (l *Library) SetProgress(key domain.BookKey, percent int) {
	percent = min(max(percent, 0), 100)

	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.snap.Load()
	if _, busy := cur.Downloading[key]; !busy {
		return
	}
	if percent <= cur.Progress[key] {
		return
	}

	next := cur.clone()
	next.Progress[key] = percent
	l.publish(next)
}

// Commit persists a completed download and clears the in-progress markers.
func (l *Library) Commit(ctx context.Context, rec domain.DownloadRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.SaveDownload(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist %s: %w", rec.Key, err)
	}

	next := l.snap.Load().clone()
	next.Downloaded[rec.Key] = rec
	delete(next.Downloading, rec.Key)
	delete(next.Progress, rec.Key)
	delete(l.displaced, rec.Key)
	delete(l.parts, rec.FileName+PartSuffix)

	l.publish(next)
	return nil
}

// End clears the in-progress markers on every exit path. After a failed
// re-download the earlier record becomes visible again.
func (l *Library) End(key domain.BookKey, fileName string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.parts, fileName+PartSuffix)

	cur := l.snap.Load()
	_, busy := cur.Downloading[key]
	prev, hidden := l.displaced[key]
	if !busy && !hidden {
		return
	}

	next := cur.clone()
	delete(next.Downloading, key)
	delete(next.Progress, key)
	if hidden {
		if _, ok := next.Downloaded[key]; !ok {
			next.Downloaded[key] = prev
		}
		delete(l.displaced, key)
	}

	l.publish(next)
}
