package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/datallboy/optolib/internal/domain"
	"github.com/datallboy/optolib/internal/infra/config"
	"github.com/datallboy/optolib/internal/infra/logger"
)

var (
	ErrBadStatus   = errors.New("unexpected HTTP status")
	ErrShortBody   = errors.New("response body shorter than content length")
	ErrEmptyBody   = errors.New("response body is empty")
	ErrReadTimeout = errors.New("read timeout")
	ErrClosed      = errors.New("engine closed")
)

// Tracker is the write side of the local library.
type Tracker interface {
	Dir() string
	Begin(key domain.BookKey, fileName string) bool
	SetProgress(key domain.BookKey, percent int)
	Commit(ctx context.Context, rec domain.DownloadRecord) error
	End(key domain.BookKey, fileName string)
}

type Options struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	ChunkSize      int

	// OnProgress sees every increase of a transfer's percent, in order.
	OnProgress func(key domain.BookKey, percent int)
}

func OptionsFromConfig(cfg config.DownloadConfig) Options {
	return Options{
		UserAgent:      cfg.UserAgent,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		ChunkSize:      cfg.ChunkSize,
	}
}

// Engine transfers remote PDFs into the library, one transfer per book key.
type Engine struct {
	base context.Context
	stop context.CancelFunc

	// mu makes the closed check and wg.Add atomic with Close
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	tracker Tracker
	log     *logger.Logger
	client  *http.Client
	opts    Options
	writer  *FileWriter
	flights singleflight.Group
}

func New(tracker Tracker, log *logger.Logger, opts Options) *Engine {
	if opts.UserAgent == "" {
		opts.UserAgent = "optolib/1.0"
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 8 * 1024
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = opts.ConnectTimeout
	transport.ResponseHeaderTimeout = opts.ConnectTimeout

	base, stop := context.WithCancel(context.Background())

	return &Engine{
		base:    base,
		stop:    stop,
		tracker: tracker,
		log:     log,
		client:  &http.Client{Transport: transport},
		opts:    opts,
		writer:  NewFileWriter(),
	}
}

// DownloadBook blocks until the transfer for key finishes and reports whether
// the book is now complete on disk. It never returns an error: every failure
// is logged and reported as false. If a transfer for key is already running
// the call joins it. Giving up via ctx stops the wait, not the transfer.
func (e *Engine) DownloadBook(ctx context.Context, key domain.BookKey, title, sourceURL string) bool {
	select {
	case ok := <-e.Start(key, title, sourceURL):
		return ok
	case <-ctx.Done():
		return false
	}
}

// Start begins (or joins) the transfer for key and returns a channel that
// receives the result once.
func (e *Engine) Start(key domain.BookKey, title, sourceURL string) <-chan bool {
	out := make(chan bool, 1)

	u, err := validate(key, title, sourceURL)
	if err != nil {
		e.log.Error("Rejected download for %q: %v", title, err)
		out <- false
		return out
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.log.Warn("Rejected download for %q: %v", title, ErrClosed)
		out <- false
		return out
	}
	e.wg.Add(1)
	e.mu.Unlock()

	res := e.flights.DoChan(string(key), func() (any, error) {
		return e.transfer(key, title, u), nil
	})

	go func() {
		defer e.wg.Done()
		r := <-res
		ok, _ := r.Val.(bool)
		if r.Shared {
			e.log.Debug("Joined in-flight download for %s", key)
		}
		out <- ok
	}()

	return out
}

// Close aborts running transfers and waits for them to unwind. Used at process shutdown only.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.stop()
	e.wg.Wait()
	e.writer.CloseAll()
}

func validate(key domain.BookKey, title, sourceURL string) (*url.URL, error) {
	if strings.TrimSpace(string(key)) == "" || strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: blank key or title", domain.ErrInvalidInput)
	}

	raw := strings.TrimSpace(sourceURL)
	if raw == "" {
		return nil, fmt.Errorf("%w: blank source URL", domain.ErrInvalidInput)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: not an absolute http(s) URL: %s", domain.ErrInvalidInput, raw)
	}

	return u, nil
}

// transfer runs once per flight. Markers are set before any network I/O and
// cleared on every exit path.
func (e *Engine) transfer(key domain.BookKey, title string, u *url.URL) bool {
	name := domain.FileName(key, title)
	final := filepath.Join(e.tracker.Dir(), name)

	if !e.tracker.Begin(key, name) {
		e.log.Warn("Download for %s is already tracked as in progress", key)
		return false
	}
	defer e.tracker.End(key, name)

	e.log.Info("Starting download for: %s", title)
	started := time.Now()

	rec, err := e.fetch(key, u, final)
	if err != nil {
		e.log.Error("Download failed for %s: %v", title, err)
		return false
	}

	rec.Key = key
	rec.Title = title
	rec.FileName = name

	if err := e.tracker.Commit(e.base, rec); err != nil {
		e.log.Error("Download of %s finished but could not be recorded: %v", title, err)
		return false
	}

	e.log.Info("Completed: %s (%d bytes in %s)", title, rec.Size, time.Since(started).Truncate(time.Millisecond))
	return true
}

// fetch performs the GET and streams the body into final via a partial file.
func (e *Engine) fetch(key domain.BookKey, u *url.URL, final string) (domain.DownloadRecord, error) {
	ctx, cancel := context.WithCancelCause(e.base)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return domain.DownloadRecord{}, err
	}
	req.Header.Set("User-Agent", e.opts.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return domain.DownloadRecord{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	e.log.Debug("Response code %d for %s", resp.StatusCode, u.Redacted())

	if resp.StatusCode != http.StatusOK {
		return domain.DownloadRecord{}, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	part, err := e.writer.Create(final)
	if err != nil {
		return domain.DownloadRecord{}, err
	}

	body := newIdleTimeoutReader(resp.Body, e.opts.ReadTimeout, cancel)
	defer body.Stop()

	written, sum, err := e.copyBody(ctx, key, part, body, resp.ContentLength)
	if err != nil {
		e.writer.Discard(part)
		return domain.DownloadRecord{}, err
	}

	if err := e.writer.Finalize(part, final); err != nil {
		e.writer.Discard(part)
		return domain.DownloadRecord{}, err
	}

	return domain.DownloadRecord{Size: written, SHA256: sum, DownloadedAt: time.Now()}, nil
}

// copyBody moves the body in fixed-size chunks, reporting progress after each
// chunk when the total is known.
func (e *Engine) copyBody(ctx context.Context, key domain.BookKey, part string, body io.Reader, total int64) (int64, string, error) {
	h := sha256.New()
	buf := make([]byte, e.opts.ChunkSize)

	var read int64
	last := 0

	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if err := e.writer.Write(part, buf[:n]); err != nil {
				return read, "", err
			}
			h.Write(buf[:n])
			read += int64(n)

			if total > 0 {
				pct := min(int(read*100/total), 100)
				if pct > last {
					last = pct
					e.report(key, pct)
				}
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if cause := context.Cause(ctx); errors.Is(cause, ErrReadTimeout) {
				return read, "", fmt.Errorf("%w after %d bytes", ErrReadTimeout, read)
			}
			if total > 0 && errors.Is(rerr, io.ErrUnexpectedEOF) {
				return read, "", fmt.Errorf("%w: got %d of %d bytes", ErrShortBody, read, total)
			}
			return read, "", fmt.Errorf("read failed after %d bytes: %w", read, rerr)
		}
	}

	if total > 0 && read != total {
		return read, "", fmt.Errorf("%w: got %d of %d bytes", ErrShortBody, read, total)
	}
	if read == 0 {
		return read, "", ErrEmptyBody
	}

	e.log.Debug("Downloaded %d bytes for %s", read, key)
	return read, hex.EncodeToString(h.Sum(nil)), nil
}

func (e *Engine) report(key domain.BookKey, pct int) {
	e.tracker.SetProgress(key, pct)
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(key, pct)
	}
}
