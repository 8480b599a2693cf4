package util

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer(t *testing.T) {
	assert := assert.New(t)

	pool := NewRingBuffer[int](256)
	assert.Equal(256, pool.Cap())
	for i := 0; i < 256; i++ {
		ok, err := pool.Offer(i)
		assert.True(ok)
		assert.Nil(err)
	}
	for i := 0; i < 256; i++ {
		ok, err := pool.Offer(i)
		assert.False(ok)
		assert.Nil(err)
	}
	assert.Equal(256, pool.Len())
	for i := 0; i < 256; i++ {
		m, ok := pool.Poll()
		assert.True(ok)
		assert.Equal(i, m)
	}
	for i := 0; i < 256; i++ {
		m, ok := pool.Poll()
		assert.False(ok)
		assert.Equal(0, m)
	}
	assert.Equal(0, pool.Len())
}

func TestRingBufferFullUnchanged(t *testing.T) {
	assert := assert.New(t)

	pool := NewRingBuffer[string](3)
	pool.Offer("a")
	pool.Poll()
	pool.Offer("b")
	pool.Offer("c")
	pool.Offer("d")

	head, tail, count := pool.head, pool.tail, pool.count
	items := append([]string{}, pool.items...)
	ok, err := pool.Offer("e")
	assert.False(ok)
	assert.Nil(err)
	assert.Equal(head, pool.head)
	assert.Equal(tail, pool.tail)
	assert.Equal(count, pool.count)
	assert.Equal(items, pool.items)

	for _, s := range []string{"b", "c", "d"} {
		v, ok := pool.Poll()
		assert.True(ok)
		assert.Equal(s, v)
	}

	head, tail, count = pool.head, pool.tail, pool.count
	v, ok := pool.Poll()
	assert.False(ok)
	assert.Equal("", v)
	assert.Equal(head, pool.head)
	assert.Equal(tail, pool.tail)
	assert.Equal(count, pool.count)
	assert.Equal([]string{"", "", ""}, pool.items)
}

func TestRingBufferModel(t *testing.T) {
	require := require.New(t)

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for size := 1; size <= 16; size++ {
		pool := NewRingBuffer[int](size)
		var model []int
		next := 0
		for op := 0; op < 2000; op++ {
			if rnd.Intn(2) == 0 {
				ok, err := pool.Offer(next)
				require.Nil(err)
				require.Equal(len(model) < size, ok)
				if ok {
					model = append(model, next)
				}
				next++
			} else {
				v, ok := pool.Poll()
				require.Equal(len(model) > 0, ok)
				if ok {
					require.Equal(model[0], v)
					model = model[1:]
				}
			}
			require.LessOrEqual(pool.Len(), size)
			require.Equal(len(model), pool.Len())
		}
	}
}

func TestRingBufferDispose(t *testing.T) {
	assert := assert.New(t)

	pool := NewRingBuffer[*[]byte](4)
	for i := 0; i < 3; i++ {
		b := []byte{byte(i)}
		pool.Offer(&b)
	}
	pool.Poll()
	assert.Equal(2, pool.Dispose())
	for _, item := range pool.items {
		assert.Nil(item)
	}
	assert.Equal(0, pool.Len())

	v, ok := pool.Poll()
	assert.False(ok)
	assert.Nil(v)
	ok, err := pool.Offer(nil)
	assert.False(ok)
	assert.Equal(ErrRingDisposed, err)
	assert.Equal(0, pool.Dispose())
}

func TestRingBufferWait(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	pool := NewRingBuffer[int](2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := pool.Wait(ctx)
	require.Equal(context.DeadlineExceeded, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := pool.Wait(context.Background())
		assert.Nil(err)
		assert.Equal(42, v)
	}()
	time.Sleep(10 * time.Millisecond)
	ok, err := pool.Offer(42)
	require.True(ok)
	require.Nil(err)
	wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := pool.Wait(context.Background())
		assert.Equal(ErrRingDisposed, err)
	}()
	time.Sleep(10 * time.Millisecond)
	pool.Dispose()
	wg.Wait()
}

func TestRingBufferConcurrent(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	pool := NewRingBuffer[int](10)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10000; {
			ok, err := pool.Offer(i)
			assert.Nil(err)
			if ok {
				i++
			}
		}
	}()

	last := -1
	for last < 9999 {
		v, err := pool.Wait(context.Background())
		require.Nil(err)
		require.Equal(last+1, v)
		last = v
	}
	wg.Wait()
}

func TestTimerWait(t *testing.T) {
	assert := assert.New(t)

	timer := NewTimer(time.Hour)
	done := make(chan struct{})
	close(done)
	assert.True(timer.Wait(done))
	timer.Stop()

	timer.Reset(10 * time.Millisecond)
	assert.False(timer.Wait(make(chan struct{})))
	timer.Reset(time.Hour)
	timer.Stop()
}
