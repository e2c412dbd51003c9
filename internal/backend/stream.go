package backend

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	apperr "github.com/sentrygate/gateway/pkg/errors"
)

var errIdleTimeout = errors.New("backend: stream read idle timeout")

// timedReader applies a per-Read deadline to an underlying reader, so a
// backend that stops sending bytes mid-stream is detected instead of
// hanging the consumer forever.
type timedReader struct {
	r       io.Reader
	timeout time.Duration
}

func (t *timedReader) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := t.r.Read(p)
		ch <- result{n, err}
	}()

	select {
	case res := <-ch:
		return res.n, res.err
	case <-time.After(t.timeout):
		return 0, errIdleTimeout
	}
}

func isIdleTimeoutErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), errIdleTimeout.Error())
}

// StreamHandle is a single-consumer, finite, line-oriented view over a
// streaming backend response. Both Ollama's newline-delimited JSON and
// OpenAI-compatible SSE ("data: {...}\n\n") are line-oriented, so one
// reader shape serves both; wire-format-specific parsing happens above
// this layer.
type StreamHandle struct {
	resp      *http.Response
	scanner   *bufio.Scanner
	closeOnce sync.Once
	closed    chan struct{}
}

// NewStreamHandle wraps an already-received response as a StreamHandle.
// Exported for tests and for callers that obtain a response outside of
// Client.Stream (e.g. a pass-through proxy reusing the same line reader).
func NewStreamHandle(resp *http.Response, idleTimeout time.Duration) *StreamHandle {
	return newStreamHandle(resp, idleTimeout)
}

func newStreamHandle(resp *http.Response, idleTimeout time.Duration) *StreamHandle {
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}
	tr := &timedReader{r: resp.Body, timeout: idleTimeout}
	scanner := bufio.NewScanner(tr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &StreamHandle{resp: resp, scanner: scanner, closed: make(chan struct{})}
}

// Next returns the next line. It returns io.EOF at natural end-of-stream
// (including after Close has been called), or a classified *apperr.AppError
// for a stalled or broken connection.
func (h *StreamHandle) Next() (string, error) {
	select {
	case <-h.closed:
		return "", io.EOF
	default:
	}

	if h.scanner.Scan() {
		return h.scanner.Text(), nil
	}
	if err := h.scanner.Err(); err != nil {
		if isIdleTimeoutErr(err) {
			return "", apperr.New(apperr.KindRequestTimeout, fmt.Sprintf("backend stream stalled: %v", err))
		}
		return "", apperr.Wrap(apperr.KindUpstreamError, "backend stream read failed", err)
	}
	return "", io.EOF
}

// Close aborts the underlying connection promptly so the backend's
// resources are freed even if the client gave up mid-stream. Safe to call
// more than once and safe to call while Next is blocked in another
// goroutine waiting on a Read.
func (h *StreamHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.closed)
		err = h.resp.Body.Close()
	})
	return err
}
