// internal/keylock/keylock_test.go
package keylock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireRelease(t *testing.T) {
	l := New()

	release, err := l.Acquire("artwork:1", time.Second)
	assert.NoError(t, err)
	release()

	// Lock is free again after release.
	release, err = l.Acquire("artwork:1", time.Second)
	assert.NoError(t, err)
	release()
}

func TestAcquireTimesOutWhileHeld(t *testing.T) {
	l := New()

	release, err := l.Acquire("artwork:1", time.Second)
	assert.NoError(t, err)
	defer release()

	_, err = l.Acquire("artwork:1", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestIndependentKeys(t *testing.T) {
	l := New()

	r1, err := l.Acquire("artwork:1", time.Second)
	assert.NoError(t, err)
	defer r1()

	r2, err := l.Acquire("artwork:2", time.Second)
	assert.NoError(t, err)
	defer r2()
}

func TestSerializesConcurrentHolders(t *testing.T) {
	l := New()

	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire("artwork:1", 5*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&active, 1)
			if n > atomic.LoadInt32(&maxActive) {
				atomic.StoreInt32(&maxActive, n)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			release()
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), maxActive, "at most one holder per key")
}

func TestReleaseIsIdempotent(t *testing.T) {
	l := New()

	release, err := l.Acquire("artwork:1", time.Second)
	assert.NoError(t, err)
	release()
	release() // second call must not unlock someone else's hold

	r2, err := l.Acquire("artwork:1", time.Second)
	assert.NoError(t, err)
	defer r2()

	_, err = l.Acquire("artwork:1", 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}
