package testutil

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDSequence_Next(t *testing.T) {
	seq := NewUUIDSequence()
	assert.Equal(t, uint64(0), seq.Issued())

	assert.Equal(t, "00000000-0000-0000-0000-000000000001", seq.Next().String())
	assert.Equal(t, "00000000-0000-0000-0000-000000000002", seq.Next().String())
	assert.Equal(t, uint64(2), seq.Issued())
}

func TestUUIDSequence_Reset(t *testing.T) {
	seq := NewUUIDSequence()
	first := seq.Next()
	seq.Next()

	seq.Reset()
	assert.Equal(t, uint64(0), seq.Issued())
	assert.Equal(t, first, seq.Next())
}

func TestNth(t *testing.T) {
	assert.Equal(t, uuid.Nil, Nth(0))
	assert.Equal(t, "00000000-0000-0000-0000-000000000100", Nth(256).String())
}

func TestUUIDSequence_Concurrent(t *testing.T) {
	seq := NewUUIDSequence()
	const goroutines, perGoroutine = 10, 100

	var (
		mu   sync.Mutex
		seen = make(map[uuid.UUID]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := seq.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, goroutines*perGoroutine, "no id issued twice")
	assert.Equal(t, uint64(goroutines*perGoroutine), seq.Issued())
}
