package crawler

import "sync"

// Frontier is the FIFO queue of discovered-but-not-yet-dispatched URLs for one
// crawl run. Producers and consumers may use it concurrently.
type Frontier struct {
	mu    sync.Mutex
	items []string
}

// NewFrontier creates a frontier seeded with the given URLs.
func NewFrontier(seeds ...string) *Frontier {
	f := &Frontier{}
	f.Push(seeds...)
	return f
}

// Push appends URLs to the back of the queue.
func (f *Frontier) Push(urls ...string) {
	if len(urls) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, urls...)
}

// PopN removes and returns up to n URLs from the front of the queue.
func (f *Frontier) PopN(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= 0 || len(f.items) == 0 {
		return nil
	}
	if n > len(f.items) {
		n = len(f.items)
	}
	out := make([]string, n)
	copy(out, f.items[:n])
	// drop references so the backing array can be reclaimed
	clear(f.items[:n])
	f.items = f.items[n:]
	return out
}

// Len returns the number of queued URLs.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
