package orchestrator

import (
	"time"

	"github.com/pario-ai/orchestra/pkg/logging"
)

// Event describes the outcome of one public operation. It is delivered to
// every subscriber after the operation returns.
type Event struct {
	RequestID     string
	Operation     string
	CallerPrefix  string
	Provider      string
	Model         string
	CacheHit      bool
	Attempts      int
	Latency       time.Duration
	CorrelationID string
	Err           error
	Time          time.Time
}

// Subscribe registers fn for every Event and returns a function that removes
// it. Subscribers run synchronously on the calling goroutine and must not
// block; a panicking subscriber is logged and skipped.
func (s *Service) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Service) emit(ev Event) {
	s.subMu.RLock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		s.deliver(fn, ev)
	}
}

func (s *Service) deliver(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Log(logging.LevelError, "event subscriber panicked", logging.Fields{
				"operation": ev.Operation, "panic": r,
			})
		}
	}()
	fn(ev)
}
