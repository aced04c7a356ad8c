package models

import "sync"

// IndexGenerator hands out particle indexes, starting at 0.
type IndexGenerator struct {
	mutex    sync.Mutex
	next     int
	reusable []int
}

// New returns an unused index. Indexes marked as reusable are returned in
// priority, most recently released first.
func (g *IndexGenerator) New() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if n := len(g.reusable); n > 0 {
		i := g.reusable[n-1]
		g.reusable = g.reusable[:n-1]
		return i
	}

	i := g.next
	g.next++
	return i
}

// Reuse marks the given index as reusable.
func (g *IndexGenerator) Reuse(i int) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.reusable = append(g.reusable, i)
}

// Cap returns the number of indexes ever handed out, which bounds the index
// space.
func (g *IndexGenerator) Cap() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.next
}
