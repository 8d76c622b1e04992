// Package presence tracks which users of a chat room are composing a message.
package presence

import (
	"sort"
	"sync"
)

// TypingSet is the set of users currently typing. Entries never expire; a
// user stays in the set until Stop or Clear.
type TypingSet struct {
	mu    sync.Mutex
	users map[string]struct{}
}

func NewTypingSet() *TypingSet {
	return &TypingSet{users: make(map[string]struct{})}
}

// Start marks userID as typing. Repeated starts are no-ops. It reports whether
// the set changed.
func (s *TypingSet) Start(userID string) bool {
	if userID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; ok {
		return false
	}
	s.users[userID] = struct{}{}
	return true
}

// Stop removes userID. It reports whether the set changed.
func (s *TypingSet) Stop(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return false
	}
	delete(s.users, userID)
	return true
}

func (s *TypingSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]struct{})
}

func (s *TypingSet) Contains(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[userID]
	return ok
}

func (s *TypingSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// Users returns a sorted snapshot of the set.
func (s *TypingSet) Users() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.users))
	for id := range s.users {
		out = append(out, id)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}
