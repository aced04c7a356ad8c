package kdtree

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
)

// Validate checks the structure of the tree: split dimensions follow the
// node depths, every point lies on the correct side of the split planes of
// its ancestors, and every node of the arena is reachable exactly once from
// the root.
func (t *Tree) Validate() error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.root == NoHandle {
		if len(t.nodes) != 0 {
			return errors.New("tree has nodes but no root").
				WithType(ErrTypeInvariantViolation).
				WithTag("nodes", len(t.nodes))
		}
		return nil
	}

	type frame struct {
		h      Handle
		depth  int
		region Box
	}

	visited := make([]bool, len(t.nodes))
	count := 0
	stack := []frame{{h: t.root, region: everywhere()}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !t.valid(f.h) {
			return errViolation("child handle is out of range", f.h)
		}
		if visited[f.h] {
			return errViolation("node is reachable more than once", f.h)
		}
		visited[f.h] = true
		count++

		n := &t.nodes[f.h]
		if want := r3.Axis(f.depth % 3); n.point.Dim != want {
			return errors.New("split dimension does not match depth").
				WithType(ErrTypeInvariantViolation).
				WithTag("handle", f.h).
				WithTag("depth", f.depth).
				WithTag("dim", axisName(n.point.Dim)).
				WithTag("expected_dim", axisName(want))
		}

		for a := r3.XAxis; a <= r3.ZAxis; a++ {
			c := n.point.Coord(a)
			lo, hi := f.region.Bounds(a)
			if c < lo || (c >= hi && !math.IsInf(hi, 1)) {
				return errors.New("point is on the wrong side of an ancestor split").
					WithType(ErrTypeInvariantViolation).
					WithTag("handle", f.h).
					WithTag("point", n.point.String()).
					WithTag("axis", axisName(a)).
					WithTag("min", lo).
					WithTag("max", hi)
			}
		}

		d := n.point.Dim
		v := n.point.Coord(d)
		if n.left != NoHandle {
			stack = append(stack, frame{
				h:      n.left,
				depth:  f.depth + 1,
				region: f.region.withMax(d, v),
			})
		}
		if n.right != NoHandle {
			stack = append(stack, frame{
				h:      n.right,
				depth:  f.depth + 1,
				region: f.region.withMin(d, v),
			})
		}
	}

	if count != len(t.nodes) {
		return errors.New("nodes are unreachable from the root").
			WithType(ErrTypeInvariantViolation).
			WithTag("reachable", count).
			WithTag("nodes", len(t.nodes))
	}
	return nil
}

func errViolation(msg string, h Handle) error {
	return errors.New(msg).
		WithType(ErrTypeInvariantViolation).
		WithTag("handle", h)
}
