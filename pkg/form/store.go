package form

import (
	"sync"

	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

// ChangeFunc is called after every successful Set.
type ChangeFunc func(key string, value any)

// Store is the input value store of one workflow instance. A key is present
// only once something set it; absence is distinct from "" or 0.
type Store struct {
	mu       sync.RWMutex
	values   map[string]any
	onChange []ChangeFunc
}

func NewStore() *Store {
	return &Store{values: map[string]any{}}
}

// OnChange registers a listener. Listeners run outside the store lock.
func (s *Store) OnChange(fn ChangeFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Set is the only mutator.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	listeners := append([]ChangeFunc(nil), s.onChange...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(key, value)
	}
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a deep copy safe to hand to a job run.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = deepCopy(v)
	}
	return out
}

// Seed writes a handed-off reference into the first image field, if any.
// It reports whether a field was seeded.
func (s *Store) Seed(fields []domain.FieldDescriptor, imageURL string) (string, bool) {
	if imageURL == "" {
		return "", false
	}
	for _, f := range fields {
		if f.Type == domain.FieldImage {
			s.Set(f.Key, imageURL)
			return f.Key, true
		}
	}
	return "", false
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = deepCopy(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = deepCopy(vv)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []byte:
		return append([]byte(nil), t...)
	case *domain.LocalFile:
		if t == nil {
			return t
		}
		cp := *t
		return &cp
	default:
		return v
	}
}
