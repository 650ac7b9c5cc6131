package crawler

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrontierFIFO(t *testing.T) {
	t.Parallel()

	f := NewFrontier("a")
	f.Push("b", "c")
	f.Push()

	assert.Equal(t, 3, f.Len())
	assert.Equal(t, []string{"a", "b"}, f.PopN(2))
	assert.Equal(t, []string{"c"}, f.PopN(5))
	assert.Nil(t, f.PopN(1))
	assert.Nil(t, NewFrontier("x").PopN(0))
	assert.Equal(t, 0, f.Len())
}

func TestFrontierConcurrentProducersConsumers(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	const producers, perProducer = 8, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				f.Push(fmt.Sprintf("%d-%d", p, i))
			}
		}()
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
	)
	consume := func() {
		for _, item := range f.PopN(7) {
			mu.Lock()
			seen[item]++
			mu.Unlock()
		}
	}
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				consume()
			}
		}()
	}
	wg.Wait()
	for f.Len() > 0 {
		consume()
	}

	assert.Len(t, seen, producers*perProducer, "no update may be lost")
	for item, n := range seen {
		assert.Equal(t, 1, n, "item %s popped more than once", item)
	}
}
