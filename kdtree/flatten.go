package kdtree

import (
	"math/bits"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Flatten returns every point of the tree in breadth-first order: level by
// level from the root, left to right within a level. The order is the same
// whether the traversal runs in parallel or not.
func (t *Tree) Flatten() []Point {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	order := t.bfsOrder()
	points := make([]Point, len(order))
	for i, h := range order {
		points[i] = t.nodes[h].point
	}
	return points
}

// bfsOrder returns the handles of the tree in breadth-first order.
//
// The first levels are walked on the calling goroutine. Each subtree rooted
// at the resulting frontier is then split into levels by its own worker, and
// the levels are merged by concatenating them in frontier order.
func (t *Tree) bfsOrder() []Handle {
	if t.root == NoHandle {
		return nil
	}

	order := make([]Handle, 0, len(t.nodes))
	frontier := []Handle{t.root}
	split := t.splitDepth()

	for depth := 0; depth < split && len(frontier) > 0; depth++ {
		next := make([]Handle, 0, 2*len(frontier))
		for _, h := range frontier {
			order = append(order, h)

			n := &t.nodes[h]
			if n.left != NoHandle {
				next = append(next, n.left)
			}
			if n.right != NoHandle {
				next = append(next, n.right)
			}
		}
		frontier = next
	}

	if len(frontier) == 0 {
		return order
	}

	branches := make([][][]Handle, len(frontier))
	if len(frontier) == 1 {
		branches[0] = t.levels(frontier[0])
	} else {
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))

		for i, h := range frontier {
			g.Go(func() error {
				branches[i] = t.levels(h)
				return nil
			})
		}
		g.Wait()
	}

	for depth := 0; ; depth++ {
		done := true
		for _, levels := range branches {
			if depth < len(levels) {
				order = append(order, levels[depth]...)
				done = false
			}
		}
		if done {
			return order
		}
	}
}

// levels returns the handles of the subtree rooted at h, grouped by depth.
func (t *Tree) levels(h Handle) [][]Handle {
	var levels [][]Handle

	for level := []Handle{h}; len(level) > 0; {
		levels = append(levels, level)

		next := make([]Handle, 0, 2*len(level))
		for _, h := range level {
			n := &t.nodes[h]
			if n.left != NoHandle {
				next = append(next, n.left)
			}
			if n.right != NoHandle {
				next = append(next, n.right)
			}
		}
		level = next
	}
	return levels
}

func (t *Tree) splitDepth() int {
	if t.parallelDepth >= 0 {
		return t.parallelDepth
	}
	if len(t.nodes) < minParallelFlattenPoints {
		return 0
	}
	return bits.Len(uint(runtime.GOMAXPROCS(0)))
}
