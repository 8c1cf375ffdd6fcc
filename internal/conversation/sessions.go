// ABOUTME: In-memory map of which lookup category each user is currently answering
// ABOUTME: Absent users are idle; sessions are never persisted

package conversation

import (
	"sync"

	"github.com/yigit201107/OpenTrackBot/internal/dispatch"
)

// Sessions tracks the awaited category per user.
type Sessions struct {
	mu       sync.RWMutex
	awaiting map[string]dispatch.Category
}

// NewSessions creates an empty session map.
func NewSessions() *Sessions {
	return &Sessions{awaiting: make(map[string]dispatch.Category)}
}

// Get returns the category userID is answering, or CategoryNone when idle.
func (s *Sessions) Get(userID string) dispatch.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.awaiting[userID]
}

// Set moves userID to Awaiting<c>. CategoryNone is the same as Reset.
func (s *Sessions) Set(userID string, c dispatch.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c == dispatch.CategoryNone {
		delete(s.awaiting, userID)
		return
	}
	s.awaiting[userID] = c
}

// Reset returns userID to idle.
func (s *Sessions) Reset(userID string) {
	s.Set(userID, dispatch.CategoryNone)
}

// Len returns how many users are mid-lookup.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.awaiting)
}
