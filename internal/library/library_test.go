package library

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/optolib/internal/domain"
	"github.com/datallboy/optolib/internal/infra/logger"
	"github.com/datallboy/optolib/internal/store"
)

func newTestLibrary(t *testing.T) (*Library, *store.PersistentStore) {
	t.Helper()
	root := t.TempDir()

	s, err := store.NewPersistentStore(filepath.Join(root, "optolib.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	l, err := Open(context.Background(), filepath.Join(root, "library"), s, logger.Discard())
	require.NoError(t, err)
	return l, s
}

// completeDownload drives the write side the way the engine does.
func completeDownload(t *testing.T, l *Library, key domain.BookKey, title string, body []byte) domain.DownloadRecord {
	t.Helper()
	name := domain.FileName(key, title)

	require.True(t, l.Begin(key, name))
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), name), body, 0644))

	rec := domain.DownloadRecord{Key: key, Title: title, FileName: name, Size: int64(len(body)), DownloadedAt: time.Now()}
	require.NoError(t, l.Commit(context.Background(), rec))
	l.End(key, name)
	return rec
}

// commitWithHash completes a download whose record carries sum, which need
// not match body.
func commitWithHash(t *testing.T, l *Library, key domain.BookKey, title string, body []byte, sum string) domain.DownloadRecord {
	t.Helper()
	name := domain.FileName(key, title)

	require.True(t, l.Begin(key, name))
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), name), body, 0644))

	rec := domain.DownloadRecord{Key: key, Title: title, FileName: name, Size: int64(len(body)), SHA256: sum, DownloadedAt: time.Now()}
	require.NoError(t, l.Commit(context.Background(), rec))
	l.End(key, name)
	return rec
}

func hashOf(t *testing.T, body []byte) string {
	t.Helper()
	sum, err := domain.CalculateFileHash(bytes.NewReader(body))
	require.NoError(t, err)
	return sum
}

func isStored(t *testing.T, s Store, key domain.BookKey) bool {
	t.Helper()
	recs, err := s.GetDownloads(context.Background())
	require.NoError(t, err)
	for _, r := range recs {
		if r.Key == key {
			return true
		}
	}
	return false
}

// hookStore runs afterDelete once a record has been deleted.
type hookStore struct {
	Store
	afterDelete func(key domain.BookKey)
}

func (h *hookStore) DeleteDownload(ctx context.Context, key domain.BookKey) error {
	if err := h.Store.DeleteDownload(ctx, key); err != nil {
		return err
	}
	if h.afterDelete != nil {
		h.afterDelete(key)
	}
	return nil
}

func TestFreshLibraryIsEmpty(t *testing.T) {
	l, _ := newTestLibrary(t)

	assert.False(t, l.IsDownloaded("b1"))
	assert.False(t, l.IsDownloading("b1"))
	assert.Equal(t, 0, l.Progress("b1"))

	f, ok := l.DownloadedFile("b1")
	assert.False(t, ok)
	assert.Nil(t, f)
}

func TestSuccessfulTransferLifecycle(t *testing.T) {
	l, _ := newTestLibrary(t)
	key := domain.BookKey("b1")
	name := domain.FileName(key, "Clinical Optics")

	require.True(t, l.Begin(key, name))
	assert.True(t, l.IsDownloading(key))
	assert.False(t, l.IsDownloaded(key))
	assert.False(t, l.Begin(key, name), "second begin for the same key must be refused")

	l.SetProgress(key, 40)
	l.SetProgress(key, 20)
	assert.Equal(t, 40, l.Progress(key), "progress never goes backwards")
	l.SetProgress(key, 250)
	assert.Equal(t, 100, l.Progress(key))

	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), name), []byte("%PDF-1.7"), 0644))
	require.NoError(t, l.Commit(context.Background(), domain.DownloadRecord{Key: key, Title: "Clinical Optics", FileName: name, Size: 8}))
	l.End(key, name)

	assert.True(t, l.IsDownloaded(key))
	assert.False(t, l.IsDownloading(key))
	assert.Equal(t, 0, l.Progress(key))

	f, ok := l.DownloadedFile(key)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(l.Dir(), "Clinical_Optics (b1).pdf"), f.Path)
	assert.Equal(t, int64(8), f.Size)
}

func TestFailedTransferClearsMarkers(t *testing.T) {
	l, _ := newTestLibrary(t)
	key := domain.BookKey("b1")

	require.True(t, l.Begin(key, "x.pdf"))
	l.SetProgress(key, 55)
	l.End(key, "x.pdf")

	assert.False(t, l.IsDownloaded(key))
	assert.False(t, l.IsDownloading(key))
	assert.Equal(t, 0, l.Progress(key))
	assert.Empty(t, l.Snapshot().States())
}

func TestFailedRedownloadRestoresRecord(t *testing.T) {
	l, _ := newTestLibrary(t)
	rec := completeDownload(t, l, "b1", "Optics", []byte("data"))

	require.True(t, l.Begin("b1", rec.FileName))
	assert.False(t, l.IsDownloaded("b1"), "downloaded and in progress are exclusive")
	assert.True(t, l.IsDownloading("b1"))

	l.End("b1", rec.FileName)
	assert.True(t, l.IsDownloaded("b1"))
	assert.False(t, l.IsDownloading("b1"))
}

func TestDownloadedSetSurvivesRestart(t *testing.T) {
	l, s := newTestLibrary(t)
	completeDownload(t, l, "b1", "Optics", []byte("data"))
	require.True(t, l.Begin("b2", "other.pdf"))

	reopened, err := Open(context.Background(), l.Dir(), s, logger.Discard())
	require.NoError(t, err)

	assert.True(t, reopened.IsDownloaded("b1"))
	assert.False(t, reopened.IsDownloading("b2"), "in-progress state is not durable")
}

func TestRemove(t *testing.T) {
	l, s := newTestLibrary(t)
	rec := completeDownload(t, l, "b1", "Optics", []byte("data"))
	path := filepath.Join(l.Dir(), rec.FileName)

	require.NoError(t, l.Remove(context.Background(), "b1"))
	assert.False(t, l.IsDownloaded("b1"))
	assert.NoFileExists(t, path)

	assert.False(t, isStored(t, s, "b1"))

	// Not downloaded: no-op
	assert.NoError(t, l.Remove(context.Background(), "b1"))
	assert.NoError(t, l.Remove(context.Background(), "never"))
}

func TestClearAll(t *testing.T) {
	l, s := newTestLibrary(t)
	completeDownload(t, l, "b1", "Optics", []byte("one"))
	completeDownload(t, l, "b2", "Anatomy", []byte("two"))
	require.True(t, l.Begin("b3", "Partial-b3.pdf"))
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), "Partial-b3.pdf.part"), []byte("half"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), "keep.txt"), []byte("x"), 0644))

	require.NoError(t, l.ClearAll(context.Background()))

	assert.Empty(t, l.List())
	assert.False(t, l.IsDownloading("b3"))

	entries, err := os.ReadDir(l.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".pdf", filepath.Ext(e.Name()))
		assert.NotEqual(t, ".part", filepath.Ext(e.Name()))
	}
	assert.FileExists(t, filepath.Join(l.Dir(), "keep.txt"))

	recs, err := s.GetDownloads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDownloadedFileSelfHeals(t *testing.T) {
	l, s := newTestLibrary(t)
	rec := completeDownload(t, l, "b1", "Optics", []byte("data"))

	require.NoError(t, os.Remove(filepath.Join(l.Dir(), rec.FileName)))

	_, ok := l.DownloadedFile("b1")
	assert.False(t, ok)
	assert.False(t, l.IsDownloaded("b1"))

	assert.False(t, isStored(t, s, "b1"))
}

func TestReconcile(t *testing.T) {
	l, _ := newTestLibrary(t)
	kept := completeDownload(t, l, "b1", "Optics", []byte("data"))
	gone := completeDownload(t, l, "b2", "Anatomy", []byte("data"))
	empty := completeDownload(t, l, "b3", "Pathology", []byte("data"))

	require.NoError(t, os.Remove(filepath.Join(l.Dir(), gone.FileName)))
	require.NoError(t, os.Truncate(filepath.Join(l.Dir(), empty.FileName), 0))

	orphan := filepath.Join(l.Dir(), "Crashed-b9.pdf.part")
	require.NoError(t, os.WriteFile(orphan, []byte("half"), 0644))

	require.True(t, l.Begin("b4", "Active-b4.pdf"))
	active := filepath.Join(l.Dir(), "Active-b4.pdf.part")
	require.NoError(t, os.WriteFile(active, []byte("half"), 0644))

	dropped, err := l.Reconcile(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []domain.BookKey{"b2", "b3"}, dropped)
	assert.True(t, l.IsDownloaded(kept.Key))
	assert.NoFileExists(t, orphan)
	assert.FileExists(t, active)
}

func TestSubscribeLatestValueWins(t *testing.T) {
	l, _ := newTestLibrary(t)

	ch, cancel := l.Subscribe()
	defer cancel()

	first := <-ch
	assert.Empty(t, first.Downloading)

	require.True(t, l.Begin("b1", "a.pdf"))
	for p := 1; p <= 100; p++ {
		l.SetProgress("b1", p)
	}

	// The reader was idle for all 101 publishes; only the newest is buffered.
	latest := <-ch
	assert.Equal(t, 100, latest.Progress["b1"])

	select {
	case s := <-ch:
		t.Fatalf("unexpected extra snapshot with progress %d", s.Progress["b1"])
	default:
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestSnapshotsAreImmutable(t *testing.T) {
	l, _ := newTestLibrary(t)

	before := l.Snapshot()
	require.True(t, l.Begin("b1", "a.pdf"))

	assert.Empty(t, before.Downloading)
	assert.Contains(t, l.Snapshot().Downloading, domain.BookKey("b1"))
}

func TestVerifyHashes(t *testing.T) {
	l, s := newTestLibrary(t)
	ctx := context.Background()

	body := []byte("%PDF-1.7 intact")
	sum, err := domain.CalculateFileHash(bytes.NewReader(body))
	require.NoError(t, err)

	name := domain.FileName("good", "Good")
	require.True(t, l.Begin("good", name))
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), name), body, 0644))
	require.NoError(t, l.Commit(ctx, domain.DownloadRecord{Key: "good", Title: "Good", FileName: name, Size: int64(len(body)), SHA256: sum}))
	l.End("good", name)

	bad := domain.FileName("bad", "Bad")
	require.True(t, l.Begin("bad", bad))
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), bad), []byte("%PDF-1.7 flipped"), 0644))
	require.NoError(t, l.Commit(ctx, domain.DownloadRecord{Key: "bad", Title: "Bad", FileName: bad, Size: 16, SHA256: sum}))
	l.End("bad", bad)

	completeDownload(t, l, "unhashed", "Unhashed", []byte("%PDF"))

	corrupt, err := l.VerifyHashes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.BookKey{"bad"}, corrupt)

	assert.True(t, l.IsDownloaded("good"))
	assert.True(t, l.IsDownloaded("unhashed"))
	assert.False(t, l.IsDownloaded("bad"))
	assert.NoFileExists(t, filepath.Join(l.Dir(), bad))

	assert.False(t, isStored(t, s, "bad"))
}

func TestForgetSparesNewerRecord(t *testing.T) {
	l, s := newTestLibrary(t)
	ctx := context.Background()

	old := commitWithHash(t, l, "b1", "Optics", []byte("%PDF old"), "stale-sum")

	fresh := []byte("%PDF fresh copy")
	commitWithHash(t, l, "b1", "Optics", fresh, hashOf(t, fresh))

	dropped, err := l.forget(ctx, old, true)
	require.NoError(t, err)
	assert.False(t, dropped)

	assert.True(t, l.IsDownloaded("b1"))
	assert.True(t, isStored(t, s, "b1"))
	got, err := os.ReadFile(filepath.Join(l.Dir(), old.FileName))
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
}

func TestVerifyHashesKeepsRedownloadFinishedMidway(t *testing.T) {
	root := t.TempDir()
	s, err := store.NewPersistentStore(filepath.Join(root, "optolib.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	hs := &hookStore{Store: s}
	l, err := Open(context.Background(), filepath.Join(root, "library"), hs, logger.Discard())
	require.NoError(t, err)

	commitWithHash(t, l, "a", "A book", []byte("%PDF tampered"), "not-the-sum")
	oldB := []byte("%PDF b v1")
	commitWithHash(t, l, "b", "B book", oldB, hashOf(t, oldB))

	// While "a" is being dropped, "b" is downloaded again with new content.
	newB := []byte("%PDF b v2, revised edition")
	newSum := hashOf(t, newB)
	done := make(chan struct{})
	hs.afterDelete = func(key domain.BookKey) {
		if key != "a" {
			return
		}
		hs.afterDelete = nil
		go func() {
			defer close(done)
			name := domain.FileName("b", "B book")
			if !assert.True(t, l.Begin("b", name)) {
				return
			}
			defer l.End("b", name)
			assert.NoError(t, os.WriteFile(filepath.Join(l.Dir(), name), newB, 0644))
			assert.NoError(t, l.Commit(context.Background(), domain.DownloadRecord{
				Key: "b", Title: "B book", FileName: name, Size: int64(len(newB)), SHA256: newSum, DownloadedAt: time.Now(),
			}))
		}()
	}

	corrupt, err := l.VerifyHashes(context.Background())
	require.NoError(t, err)
	<-done

	assert.Equal(t, []domain.BookKey{"a"}, corrupt)
	assert.False(t, l.IsDownloaded("a"))

	assert.True(t, l.IsDownloaded("b"))
	assert.True(t, isStored(t, s, "b"))
	f, ok := l.DownloadedFile("b")
	require.True(t, ok)
	got, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, newB, got)
}
