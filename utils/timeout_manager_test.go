package utils

import (
	"context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
	"testing"
	"time"
)

func TestTimeoutManagerExpired(t *testing.T) {
	fired := atomic.NewInt32(0)
	m := NewTimeoutManager()
	m.Start(context.Background(), 20*time.Millisecond, func() { fired.Inc() })

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	m.Cancel()
}

func TestTimeoutManagerReset(t *testing.T) {
	fired := atomic.NewInt32(0)
	m := NewTimeoutManager()
	m.Start(context.Background(), 100*time.Millisecond, func() { fired.Inc() })
	defer m.Cancel()

	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		m.Reset()
	}
	assert.Equal(t, int32(0), fired.Load())
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestTimeoutManagerCancel(t *testing.T) {
	fired := atomic.NewInt32(0)
	m := NewTimeoutManager()
	m.Start(context.Background(), 30*time.Millisecond, func() { fired.Inc() })
	m.Cancel()
	m.Cancel()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	ctx, cancel := context.WithCancel(context.Background())
	other := NewTimeoutManager()
	other.Start(ctx, 30*time.Millisecond, func() { fired.Inc() })
	cancel()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
