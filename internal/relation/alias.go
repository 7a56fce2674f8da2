package relation

import (
	"fmt"
	"sync"
)

const (
	defaultAliasPrefix   = "__hierarchy_self"
	defaultAliasAttempts = 64
)

// AliasScope hands out self-join aliases for one compound query. Aliases are
// derived from a monotonic counter, so the sequence is deterministic and no
// alias is returned twice.
type AliasScope struct {
	mu          sync.Mutex
	prefix      string
	next        int
	maxAttempts int
	reserved    map[string]struct{}
}

// NewAliasScope creates a scope. Reserved names are never handed out.
func NewAliasScope(reserved ...string) *AliasScope {
	s := &AliasScope{
		prefix:      defaultAliasPrefix,
		maxAttempts: defaultAliasAttempts,
		reserved:    make(map[string]struct{}),
	}
	s.Reserve(reserved...)
	return s
}

// Reserve marks identifiers already used by the surrounding query.
func (s *AliasScope) Reserve(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		s.reserved[name] = struct{}{}
	}
}

// Next returns a fresh alias. The alias and its "_link" companion are reserved.
func (s *AliasScope) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		candidate := fmt.Sprintf("%s_%d", s.prefix, s.next)
		s.next++
		if s.taken(candidate) || s.taken(candidate+"_link") {
			continue
		}
		s.reserved[candidate] = struct{}{}
		s.reserved[candidate+"_link"] = struct{}{}
		return candidate, nil
	}
	return "", fmt.Errorf("%w: %d candidates after %s_%d already in use", ErrAliasCollision, s.maxAttempts, s.prefix, s.next-s.maxAttempts)
}

func (s *AliasScope) taken(name string) bool {
	_, ok := s.reserved[name]
	return ok
}
