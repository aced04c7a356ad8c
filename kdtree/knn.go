package kdtree

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/tidwall/tinyqueue"
)

// KNearest returns the k points closest to q, nearest first. Points at the
// same distance are ordered by insertion. Fewer than k points are returned
// when the tree holds less than k points.
func (t *Tree) KNearest(q Point, k int) ([]Point, error) {
	if isNaN(q) {
		return nil, errInvalidPoint(q)
	}
	if k < 0 {
		return nil, errors.New("negative neighbor count").
			WithType(ErrTypeInvalidArgument).
			WithTag("k", k)
	}

	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if k == 0 || t.root == NoHandle {
		return make([]Point, 0), nil
	}

	s := knnSearch{
		query: q,
		k:     k,
		best:  tinyqueue.New(make([]tinyqueue.Item, 0, min(k, len(t.nodes)))),
	}
	t.knn(t.root, &s)

	res := make([]Point, s.best.Len())
	for i := len(res) - 1; i >= 0; i-- {
		res[i] = s.best.Pop().(*candidate).point
	}
	return res, nil
}

func (t *Tree) knn(h Handle, s *knnSearch) {
	n := &t.nodes[h]
	s.offer(n)

	d := n.point.Dim
	diff := s.query.Coord(d) - n.point.Coord(d)

	near, far := n.right, n.left
	if diff < 0 {
		near, far = n.left, n.right
	}

	if near != NoHandle {
		t.knn(near, s)
	}
	if far != NoHandle && diff*diff <= s.bound() {
		t.knn(far, s)
	}
}

type knnSearch struct {
	query Point
	k     int

	// best holds the k best candidates so far, worst on top.
	best *tinyqueue.Queue
}

func (s *knnSearch) offer(n *node) {
	c := &candidate{
		point: n.point,
		seq:   n.seq,
		dist2: s.query.distance2(n.point),
	}

	if s.best.Len() < s.k {
		s.best.Push(c)
		return
	}
	if c.Less(s.best.Peek()) {
		return
	}
	s.best.Pop()
	s.best.Push(c)
}

// bound returns the squared distance a subtree must be within to hold a
// better candidate.
func (s *knnSearch) bound() float64 {
	if s.best.Len() < s.k {
		return math.Inf(1)
	}
	return s.best.Peek().(*candidate).dist2
}

type candidate struct {
	point Point
	seq   uint64
	dist2 float64
}

// Less reports whether c ranks worse than o, which keeps the worst candidate
// on top of the queue.
func (c *candidate) Less(o tinyqueue.Item) bool {
	b := o.(*candidate)
	if c.dist2 != b.dist2 {
		return c.dist2 > b.dist2
	}
	return c.seq > b.seq
}
