// ABOUTME: Tests for the in-memory session map
// ABOUTME: Verifies idle default, reset semantics and concurrent access

package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yigit201107/OpenTrackBot/internal/dispatch"
)

func TestSessions_DefaultIsIdle(t *testing.T) {
	s := NewSessions()
	assert.Equal(t, dispatch.CategoryNone, s.Get("nobody"))
	assert.Zero(t, s.Len())
}

func TestSessions_SetAndReset(t *testing.T) {
	s := NewSessions()

	s.Set("1001", dispatch.CategoryPhone)
	assert.Equal(t, dispatch.CategoryPhone, s.Get("1001"))
	assert.Equal(t, 1, s.Len())

	s.Reset("1001")
	assert.Equal(t, dispatch.CategoryNone, s.Get("1001"))
	assert.Zero(t, s.Len(), "idle users hold no entry")

	s.Set("1002", dispatch.CategoryEmail)
	s.Set("1002", dispatch.CategoryNone)
	assert.Zero(t, s.Len())
}

func TestSessions_Concurrent(t *testing.T) {
	s := NewSessions()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d", i)
			s.Set(id, dispatch.CategoryHandle)
			_ = s.Get(id)
			if i%2 == 0 {
				s.Reset(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, s.Len())
}
