package rules

import (
	"errors"
	"sync/atomic"
)

// ErrNoRuleSet is returned when a Store has not been loaded yet
var ErrNoRuleSet = errors.New("no rule set loaded")

// Store holds the active RuleSet. Callers take one Current() snapshot per
// validation so a reload never changes rules under an in-flight invoice.
type Store struct {
	current atomic.Pointer[RuleSet]
	path    atomic.Pointer[string]
}

// NewStore creates a store seeded with rs (which may be nil)
func NewStore(rs *RuleSet) *Store {
	s := &Store{}
	if rs != nil {
		s.current.Store(rs)
	}
	return s
}

// OpenStore loads path and remembers it for ReloadFile
func OpenStore(path string) (*Store, error) {
	rs, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s := NewStore(rs)
	s.path.Store(&path)
	return s, nil
}

// Current returns the active rule set
func (s *Store) Current() (*RuleSet, error) {
	rs := s.current.Load()
	if rs == nil {
		return nil, ErrNoRuleSet
	}
	return rs, nil
}

// Swap installs rs and returns the previous rule set
func (s *Store) Swap(rs *RuleSet) *RuleSet {
	return s.current.Swap(rs)
}

// Path returns the file the store was opened from, if any
func (s *Store) Path() string {
	if p := s.path.Load(); p != nil {
		return *p
	}
	return ""
}

// ReloadFile re-reads the rule file. On error the active rule set is kept.
// An empty path reuses the one the store was opened from.
func (s *Store) ReloadFile(path string) (*RuleSet, error) {
	if path == "" {
		path = s.Path()
	}
	if path == "" {
		return nil, errors.New("no rule file to reload")
	}
	rs, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s.current.Store(rs)
	s.path.Store(&path)
	return rs, nil
}
