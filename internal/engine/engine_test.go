package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/optolib/internal/domain"
	"github.com/datallboy/optolib/internal/infra/logger"
	"github.com/datallboy/optolib/internal/library"
	"github.com/datallboy/optolib/internal/store"
)

func newTestEngine(t *testing.T, opts Options) (*Engine, *library.Library) {
	t.Helper()
	root := t.TempDir()

	s, err := store.NewPersistentStore(filepath.Join(root, "optolib.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	lib, err := library.Open(context.Background(), filepath.Join(root, "library"), s, logger.Discard())
	require.NoError(t, err)

	e := New(lib, logger.Discard(), opts)
	t.Cleanup(e.Close)
	return e, lib
}

func servePDF(body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}
}

func partFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*"+library.PartSuffix))
	require.NoError(t, err)
	return matches
}

func TestDownloadBookSuccess(t *testing.T) {
	body := bytes.Repeat([]byte("0123456789abcdef"), 10*1024*1024/16)

	var userAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.UserAgent())
		servePDF(body)(w, r)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var seen []int
	e, lib := newTestEngine(t, Options{
		UserAgent: "optolib-test/1.0",
		OnProgress: func(key domain.BookKey, pct int) {
			mu.Lock()
			seen = append(seen, pct)
			mu.Unlock()
		},
	})

	ok := e.DownloadBook(context.Background(), "b1", "Clinical Optics", srv.URL+"/clinical-optics.pdf")
	require.True(t, ok)

	assert.True(t, lib.IsDownloaded("b1"))
	assert.False(t, lib.IsDownloading("b1"))
	assert.Equal(t, "optolib-test/1.0", userAgent.Load())

	f, found := lib.DownloadedFile("b1")
	require.True(t, found)
	assert.Equal(t, int64(len(body)), f.Size)
	assert.Equal(t, "Clinical_Optics (b1).pdf", filepath.Base(f.Path))

	onDisk, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(body, onDisk))
	assert.Empty(t, partFiles(t, lib.Dir()))

	sum := sha256.Sum256(body)
	assert.Equal(t, hex.EncodeToString(sum[:]), lib.Snapshot().Downloaded["b1"].SHA256)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, 100, seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1], "progress must increase")
	}
}

func TestDownloadBookHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	e, lib := newTestEngine(t, Options{})

	assert.False(t, e.DownloadBook(context.Background(), "b1", "Missing", srv.URL+"/missing.pdf"))
	assert.False(t, lib.IsDownloaded("b1"))
	assert.False(t, lib.IsDownloading("b1"))
	assert.Equal(t, 0, lib.Progress("b1"))
	assert.Empty(t, partFiles(t, lib.Dir()))
}

func TestDownloadBookRejectsInvalidInput(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		servePDF([]byte("%PDF"))(w, r)
	}))
	defer srv.Close()

	e, lib := newTestEngine(t, Options{})

	cases := []struct {
		name  string
		key   domain.BookKey
		title string
		url   string
	}{
		{"blank url", "b1", "Optics", ""},
		{"whitespace url", "b1", "Optics", "   "},
		{"malformed url", "b1", "Optics", "not a url"},
		{"relative url", "b1", "Optics", "/books/optics.pdf"},
		{"unsupported scheme", "b1", "Optics", "ftp://example.com/optics.pdf"},
		{"blank title", "b1", "  ", srv.URL + "/optics.pdf"},
		{"blank key", "", "Optics", srv.URL + "/optics.pdf"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, e.DownloadBook(context.Background(), tc.key, tc.title, tc.url))
			assert.False(t, lib.IsDownloading(tc.key))
			assert.False(t, lib.IsDownloaded(tc.key))
		})
	}

	assert.Equal(t, int32(0), hits.Load())
}

func TestDownloadBookUnknownLength(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Flushing before the body forces chunked encoding
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		w.Write(body)
	}))
	defer srv.Close()

	var reports atomic.Int32
	e, lib := newTestEngine(t, Options{
		OnProgress: func(domain.BookKey, int) { reports.Add(1) },
	})

	require.True(t, e.DownloadBook(context.Background(), "b1", "Stream", srv.URL))
	assert.True(t, lib.IsDownloaded("b1"))
	assert.Equal(t, int32(0), reports.Load())
}

func TestDownloadBookEmptyBody(t *testing.T) {
	srv := httptest.NewServer(servePDF(nil))
	defer srv.Close()

	e, lib := newTestEngine(t, Options{})

	assert.False(t, e.DownloadBook(context.Background(), "b1", "Empty", srv.URL))
	assert.False(t, lib.IsDownloaded("b1"))
	assert.NoFileExists(t, lib.Path("b1", "Empty"))
}

func TestDownloadBookTruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		w.Write(bytes.Repeat([]byte("y"), 40000))
	}))
	defer srv.Close()

	e, lib := newTestEngine(t, Options{})

	assert.False(t, e.DownloadBook(context.Background(), "b1", "Truncated", srv.URL))
	assert.False(t, lib.IsDownloaded("b1"))
	assert.False(t, lib.IsDownloading("b1"))
	assert.NoFileExists(t, lib.Path("b1", "Truncated"))
	assert.Empty(t, partFiles(t, lib.Dir()))
}

func TestDownloadBookReadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		w.Write([]byte("%PDF-1.7"))
		w.(http.Flusher).Flush()

		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	e, lib := newTestEngine(t, Options{ReadTimeout: 150 * time.Millisecond})

	start := time.Now()
	assert.False(t, e.DownloadBook(context.Background(), "b1", "Stalled", srv.URL))
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.False(t, lib.IsDownloading("b1"))
	assert.Empty(t, partFiles(t, lib.Dir()))
}

func TestConcurrentDistinctBooks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		servePDF([]byte("%PDF " + r.URL.Path))(w, r)
	}))
	defer srv.Close()

	e, lib := newTestEngine(t, Options{})

	titles := []string{"Clinical Optics", "Ocular Anatomy", "Binocular Vision", "Contact Lenses"}
	results := make([]bool, len(titles))

	var wg sync.WaitGroup
	for i, title := range titles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := domain.BookKey(fmt.Sprintf("b%d", i))
			results[i] = e.DownloadBook(context.Background(), key, title, fmt.Sprintf("%s/%d.pdf", srv.URL, i))
		}()
	}
	wg.Wait()

	for i := range titles {
		assert.True(t, results[i])
		assert.True(t, lib.IsDownloaded(domain.BookKey(fmt.Sprintf("b%d", i))))
	}
	assert.Len(t, lib.List(), len(titles))
}

func TestSameKeyJoinsInFlightTransfer(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		servePDF([]byte("%PDF-1.7 joined"))(w, r)
	}))
	defer srv.Close()

	e, lib := newTestEngine(t, Options{})

	first := e.Start("b1", "Optics", srv.URL)
	second := e.Start("b1", "Optics", srv.URL)

	require.Eventually(t, func() bool { return lib.IsDownloading("b1") }, 2*time.Second, 10*time.Millisecond)
	close(release)

	assert.True(t, <-first)
	assert.True(t, <-second)
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, lib.IsDownloaded("b1"))
}

func TestCallerGivingUpDoesNotCancelTransfer(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		servePDF([]byte("%PDF-1.7 late"))(w, r)
	}))
	defer srv.Close()

	e, lib := newTestEngine(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- e.DownloadBook(ctx, "b1", "Optics", srv.URL) }()

	require.Eventually(t, func() bool { return lib.IsDownloading("b1") }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.False(t, <-done)

	close(release)
	assert.Eventually(t, func() bool { return lib.IsDownloaded("b1") }, 2*time.Second, 10*time.Millisecond)
}

func TestRedownloadOverwrites(t *testing.T) {
	var version atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		servePDF([]byte(fmt.Sprintf("%%PDF edition %d", version.Load())))(w, r)
	}))
	defer srv.Close()

	e, lib := newTestEngine(t, Options{})

	require.True(t, e.DownloadBook(context.Background(), "b1", "Optics", srv.URL))
	version.Store(2)
	require.True(t, e.DownloadBook(context.Background(), "b1", "Optics", srv.URL))

	f, ok := lib.DownloadedFile("b1")
	require.True(t, ok)
	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF edition 2", string(data))
	assert.Len(t, lib.List(), 1)
}

func TestFailedRedownloadKeepsPreviousFile(t *testing.T) {
	var broken atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if broken.Load() {
			http.Error(w, "gone", http.StatusInternalServerError)
			return
		}
		servePDF([]byte("%PDF original"))(w, r)
	}))
	defer srv.Close()

	e, lib := newTestEngine(t, Options{})

	require.True(t, e.DownloadBook(context.Background(), "b1", "Optics", srv.URL))
	broken.Store(true)
	assert.False(t, e.DownloadBook(context.Background(), "b1", "Optics", srv.URL))

	f, ok := lib.DownloadedFile("b1")
	require.True(t, ok)
	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF original", string(data))
}

func TestStartRacingClose(t *testing.T) {
	srv := httptest.NewServer(servePDF([]byte("%PDF-1.7 racing")))
	defer srv.Close()

	e, lib := newTestEngine(t, Options{})

	const n = 32
	results := make(chan (<-chan bool), n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := domain.BookKey(fmt.Sprintf("b%d", i))
			results <- e.Start(key, "Racing "+string(key), srv.URL)
		}()
	}

	e.Close()
	wg.Wait()
	close(results)

	for ch := range results {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatal("a transfer started around Close never reported")
		}
	}

	assert.False(t, <-e.Start("late", "Late", srv.URL), "no transfer starts after Close")
	assert.False(t, lib.IsDownloading("late"))
	assert.Empty(t, partFiles(t, lib.Dir()))
}

func TestJobManager(t *testing.T) {
	srv := httptest.NewServer(servePDF([]byte("%PDF job")))
	defer srv.Close()

	e, lib := newTestEngine(t, Options{})
	jobs := NewJobManager(e, lib)

	ok := jobs.Submit("b1", "Optics", srv.URL)
	bad := jobs.Submit("b2", "Broken", "")

	assert.NotEmpty(t, ok.ID)
	assert.NotEqual(t, ok.ID, bad.ID)

	require.Eventually(t, func() bool {
		j, found := jobs.Get(ok.ID)
		return found && j.Status.Finished()
	}, 2*time.Second, 10*time.Millisecond)

	j, _ := jobs.Get(ok.ID)
	assert.Equal(t, domain.StatusCompleted, j.Status)
	assert.Equal(t, 100, j.Progress)
	assert.False(t, j.FinishedAt.IsZero())

	require.Eventually(t, func() bool {
		j, _ := jobs.Get(bad.ID)
		return j.Status == domain.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	assert.Len(t, jobs.All(), 2)
	_, found := jobs.Get("nope")
	assert.False(t, found)
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, "Optics")

	bar.Render(50)
	assert.Contains(t, buf.String(), "[==========>         ]  50%")

	bar.Finish(2048, "/tmp/Optics.pdf")
	assert.Contains(t, buf.String(), "2.0 kB")
	assert.Contains(t, buf.String(), "/tmp/Optics.pdf")
}
