package kdtree

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

// exampleTree returns the tree built by inserting (0,0,0), (1,1,1),
// (-1,-1,-1) and (2,0,-2) in that order. Point indexes match the insertion
// order.
func exampleTree(t *testing.T, opts ...Option) *Tree {
	tree := New(opts...)
	for _, p := range examplePoints() {
		_, err := tree.Insert(p)
		require.NoError(t, err)
	}
	return tree
}

func examplePoints() []Point {
	return []Point{
		NewPoint(0, 0, 0, 0),
		NewPoint(1, 1, 1, 1),
		NewPoint(-1, -1, -1, 2),
		NewPoint(2, 0, -2, 3),
	}
}

// randomPoints returns n points on a coarse grid so that coordinate ties are
// frequent. Point indexes match their position.
func randomPoints(r *rand.Rand, n int) []Point {
	coord := func() float64 {
		return float64(r.Intn(41)-20) / 2
	}

	points := make([]Point, n)
	for i := range points {
		points[i] = NewPoint(coord(), coord(), coord(), i)
	}
	return points
}

func indexes(points []Point) []int {
	res := make([]int, len(points))
	for i, p := range points {
		res[i] = p.Index
	}
	return res
}

func sortedIndexes(points []Point) []int {
	res := indexes(points)
	slices.Sort(res)
	return res
}

// bfs is a straightforward breadth-first traversal used as a reference.
func bfs(tree *Tree) []Point {
	if tree.root == NoHandle {
		return nil
	}

	var res []Point
	queue := []Handle{tree.root}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]

		n := tree.nodes[h]
		res = append(res, n.point)
		if n.left != NoHandle {
			queue = append(queue, n.left)
		}
		if n.right != NoHandle {
			queue = append(queue, n.right)
		}
	}
	return res
}
