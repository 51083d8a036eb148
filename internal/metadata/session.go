package metadata

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Session serializes blocking metadata work per completion request. At most
// one resolution chain is in flight: beginning a new request cancels the
// previous one, and results delivered for a superseded request are dropped
// instead of arriving out of order.
type Session struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	current string
	log     *slog.Logger
}

// NewSession creates a session. A nil logger discards.
func NewSession(log *slog.Logger) *Session {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Session{log: log}
}

// Begin starts a new request derived from parent, superseding and
// cancelling any request still in flight. Returns the request context and
// its id.
func (s *Session) Begin(parent context.Context) (context.Context, string) {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.current = id
	s.mu.Unlock()

	s.log.Debug("metadata request started", slog.String("request_id", id))
	return ctx, id
}

// Deliver runs fn only when id is still the current request. Late results
// from superseded requests are dropped.
func (s *Session) Deliver(id string, fn func()) bool {
	s.mu.Lock()
	current := s.current == id
	s.mu.Unlock()

	if !current {
		s.log.Debug("dropping superseded result", slog.String("request_id", id))
		return false
	}
	fn()
	return true
}

// Close cancels any in-flight request.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.current = ""
}

// Lookup runs fn on its own goroutine under a fresh request context and
// delivers its result through the session. The continuation checks
// cancellation before delivery, so a superseded request never reaches
// deliver. Returns the request id.
func Lookup[T any](s *Session, parent context.Context, fn func(context.Context) (T, error), deliver func(T, error)) string {
	ctx, id := s.Begin(parent)
	go func() {
		v, err := fn(ctx)
		if ctx.Err() != nil {
			return
		}
		s.Deliver(id, func() { deliver(v, err) })
	}()
	return id
}
