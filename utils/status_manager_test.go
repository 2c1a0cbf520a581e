package utils

import (
	"github.com/stretchr/testify/assert"
	"sync"
	"testing"
)

func TestStatusManager(t *testing.T) {
	s := NewStatusManager()
	assert.Equal(t, Init, s.Get())
	assert.True(t, s.Is(Init, Closed))

	assert.True(t, s.Transition(Connected, Init, Closed))
	assert.False(t, s.Transition(Connected, Init, Closed))
	assert.True(t, s.Is(Connected))

	s.Set(Closed)
	assert.False(t, s.Is(Connected))
	assert.True(t, s.Transition(Connected, Init, Closed))
}

func TestStatusManagerConcurrentTransition(t *testing.T) {
	s := NewStatusManager()
	var wg sync.WaitGroup
	var lock sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Transition(Connected, Init) {
				lock.Lock()
				succeeded++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}
