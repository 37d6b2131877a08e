package session

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/quillworks/quill"
	"github.com/quillworks/quill/sse"
)

// readBufferSize is the chunk size for draining the response body.
const readBufferSize = 4096

// Session owns at most one in-flight stream. Start stops any prior
// stream before the new one's first state mutation, so two pipelines
// never interleave and no locking is needed around the accumulated
// state beyond the session's own mutex.
//
// Hooks run on the pipeline goroutine while the session mutex is held;
// they must not call back into the Session.
type Session struct {
	client *Client
	logger quill.Logger

	mu     sync.Mutex
	acc    *quill.Accumulator
	cancel context.CancelFunc
	gen    uint64 // bumped on every Start/Stop; stale pipelines go silent
	id     string
}

// SessionOption configures a [Session].
type SessionOption func(*Session)

// WithHooks sets per-kind callbacks invoked as frames are folded in.
func WithHooks(h quill.Hooks) SessionOption {
	return func(s *Session) { s.acc = quill.NewAccumulator(h) }
}

// NewSession creates a Session that opens connections through client.
func NewSession(client *Client, opts ...SessionOption) *Session {
	s := &Session{
		client: client,
		logger: client.logger,
		acc:    quill.NewAccumulator(quill.Hooks{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start begins a new stream. Any prior in-flight stream is stopped
// first, synchronously; the new session's state starts fresh and
// active. Failures surface through the observable state as a terminal
// error, never as a return value, so the caller has exactly one place
// to watch.
func (s *Session) Start(ctx context.Context, req Request) {
	s.mu.Lock()
	s.stopLocked()
	s.gen++
	gen := s.gen
	s.id = uuid.NewString()
	id := s.id
	s.acc.Apply(quill.FrameStart{})

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Debug("starting stream", "session", id)
	go s.run(ctx, gen, id, req)
}

// Stop cancels the in-flight stream, if any, and synchronously marks
// the state inactive with no terminal error. Cancellation is not a
// failure. Stop on an idle session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Reset stops the in-flight stream and clears all state to zero.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.acc.Reset()
	s.id = ""
}

// Snapshot returns a copy of the current observable state.
func (s *Session) Snapshot() quill.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Snapshot()
}

// ID returns the identifier of the current session, or "" before the
// first Start (and after Reset).
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// stopLocked cancels the transport and silences the pipeline. The
// transport teardown completes asynchronously; the generation bump
// guarantees no observable change lands after this returns.
func (s *Session) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.gen++
	s.acc.Deactivate()
}

// run is the pipeline goroutine for one session generation.
func (s *Session) run(ctx context.Context, gen uint64, id string, req Request) {
	body, err := s.client.open(ctx, req)
	if err != nil {
		s.fail(gen, id, err)
		return
	}
	defer body.Close()

	dec := sse.NewDecoder(sse.WithLogger(s.logger))
	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if !s.apply(gen, dec.Feed(buf[:n])) {
				return // superseded
			}
		}
		if err == io.EOF {
			if !s.apply(gen, dec.Flush()) {
				return
			}
			s.finish(gen, id)
			return
		}
		if err != nil {
			s.fail(gen, id, err)
			return
		}
	}
}

// apply folds decoded frames into the state. It reports false when this
// pipeline has been superseded by Stop or a newer Start.
func (s *Session) apply(gen uint64, frames []quill.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	for _, f := range frames {
		s.acc.Apply(f)
	}
	return true
}

// fail records a transport failure as the session's terminal error.
// Cancellation is not a failure: Stop already deactivated the state, and
// a caller-cancelled context deactivates it here without a message.
func (s *Session) fail(gen uint64, id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	if errors.Is(err, context.Canceled) {
		s.acc.Deactivate()
		return
	}
	s.logger.Warn("stream failed", "session", id, "error", err)
	s.acc.Apply(quill.FrameError{Message: err.Error()})
}

// finish handles end of stream. A server that closes the connection
// without a complete or error frame ended the stream unexpectedly.
func (s *Session) finish(gen uint64, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	if s.acc.Active() {
		s.logger.Warn("stream ended without terminal frame", "session", id)
		s.acc.Apply(quill.FrameError{Message: "unexpected end of stream"})
	}
}
