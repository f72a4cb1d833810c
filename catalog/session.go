package catalog

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
)

// Session keys read or written by the catalog.
const (
	LogIDKey      = "log_identifier"
	AuthorizedKey = "authorized"
)

const (
	minLogID = 1000
	maxLogID = 9999
)

// Session is the caller's per-user key/value store, e.g. a web session.
type Session interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapSession is an in-memory Session safe for concurrent use.
type MapSession struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMapSession returns a session holding a copy of values.
func NewMapSession(values map[string]any) *MapSession {
	s := &MapSession{values: make(map[string]any, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

func (s *MapSession) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MapSession) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[key] = value
}

// LogID returns the session's log correlation id, creating and storing one
// on first use. Without a session (scheduled jobs, scripts) every call gets
// a fresh id that is not kept anywhere. Ids are for log correlation only.
func LogID(s Session) int {
	if s == nil {
		return newLogID()
	}
	if v, ok := s.Get(LogIDKey); ok {
		if id, ok := parseLogID(v); ok {
			return id
		}
	}
	id := newLogID()
	s.Set(LogIDKey, id)
	return id
}

func newLogID() int {
	return minLogID + rand.IntN(maxLogID-minLogID+1)
}

// parseLogID accepts the shapes a stored id comes back as: an int, a JSON
// number, or the numeric string older sessions hold.
func parseLogID(v any) (int, bool) {
	switch id := v.(type) {
	case int:
		return id, true
	case int64:
		return int(id), true
	case float64:
		if id != math.Trunc(id) {
			return 0, false
		}
		return int(id), true
	case string:
		n, err := strconv.Atoi(id)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

type logIDContextKey struct{}

// WithLogID attaches a log correlation id to ctx.
func WithLogID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, logIDContextKey{}, id)
}

// LogIDFromContext returns the id set by WithLogID.
func LogIDFromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(logIDContextKey{}).(int)
	return id, ok
}

func logIDAttr(ctx context.Context) slog.Attr {
	id, _ := LogIDFromContext(ctx)
	return slog.Int("log_id", id)
}
