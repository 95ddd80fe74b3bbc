package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleCollapsesBurst(t *testing.T) {
	c := New[string](40 * time.Millisecond)

	var mu sync.Mutex
	var runs []int
	for i := 1; i <= 5; i++ {
		i := i
		c.Schedule("doc", func() {
			mu.Lock()
			runs = append(runs, i)
			mu.Unlock()
		})
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(runs) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{5}, runs)
	assert.False(t, c.Pending("doc"))
}

func TestKeysAreIndependent(t *testing.T) {
	c := New[string](20 * time.Millisecond)
	var a, b atomic.Int32
	c.Schedule("a", func() { a.Add(1) })
	c.Schedule("b", func() { b.Add(1) })
	assert.Equal(t, 2, c.Len())

	require.Eventually(t, func() bool { return a.Load() == 1 && b.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.Len())
}

func TestCancel(t *testing.T) {
	c := New[int](20 * time.Millisecond)
	var ran atomic.Bool
	c.Schedule(1, func() { ran.Store(true) })

	assert.True(t, c.Pending(1))
	assert.True(t, c.Cancel(1))
	assert.False(t, c.Cancel(1))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestHandleRemovedBeforeCallback(t *testing.T) {
	c := New[string](10 * time.Millisecond)
	pendingInside := make(chan bool, 1)
	c.Schedule("doc", func() { pendingInside <- c.Pending("doc") })

	select {
	case p := <-pendingInside:
		assert.False(t, p)
	case <-time.After(time.Second):
		t.Fatal("callback did not run")
	}
}

func TestStopReturnsPendingKeys(t *testing.T) {
	c := New[string](time.Hour)
	c.Schedule("a", func() {})
	c.Schedule("b", func() {})

	keys := c.Stop()
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
	assert.Equal(t, 0, c.Len())

	c.Schedule("c", func() {})
	assert.False(t, c.Pending("c"))
}
