package engine

import (
	"context"
	"io"
	"time"
)

// idleTimeoutReader cancels the request when no Read returns for d. The
// timer restarts after every Read, so only gaps are bounded.
type idleTimeoutReader struct {
	r     io.Reader
	d     time.Duration
	timer *time.Timer
}

func newIdleTimeoutReader(r io.Reader, d time.Duration, cancel context.CancelCauseFunc) *idleTimeoutReader {
	return &idleTimeoutReader{
		r: r,
		d: d,
		timer: time.AfterFunc(d, func() {
			cancel(ErrReadTimeout)
		}),
	}
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.timer.Reset(r.d)
	return n, err
}

func (r *idleTimeoutReader) Stop() {
	r.timer.Stop()
}
