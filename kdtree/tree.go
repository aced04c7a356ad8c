// Package kdtree implements a 3D KD-tree indexing particle positions for
// range and k-nearest-neighbor queries, and flattening into a contiguous
// sequence for export.
//
// Nodes live in an arena owned by the tree and are addressed by Handle. The
// split dimension of a node is derived from its depth (x, y, z, x, ...). For
// a node splitting on dimension d with coordinate v, the left subtree only
// holds points whose d coordinate is strictly less than v and the right
// subtree holds points whose d coordinate is greater than or equal to v:
// ties are routed right.
//
// A Tree is safe for concurrent use. Insert, InsertBatch, Rebuild and
// Rebalance are exclusive, all other operations share a read lock.
package kdtree

import (
	"cmp"
	"math"
	"slices"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
)

// Handle addresses a node in the arena of a tree. Handles are invalidated by
// Rebuild and Rebalance.
type Handle int32

// NoHandle marks an absent child.
const NoHandle Handle = -1

const (
	defaultName = "default"

	// Trees smaller than this are flattened on the calling goroutine.
	minParallelFlattenPoints = 1024

	maxHandles = math.MaxInt32
)

type node struct {
	point Point
	seq   uint64
	left  Handle
	right Handle
}

type entry struct {
	point Point
	seq   uint64
}

// Option configures a tree.
type Option func(*Tree)

// WithName sets the name used to label the tree in logs and metrics.
func WithName(name string) Option {
	return func(t *Tree) {
		t.name = name
	}
}

// WithParallelDepth sets how many tree levels Flatten walks before handing
// the remaining subtrees to parallel workers. 0 disables parallelism. A
// negative value picks a depth from GOMAXPROCS.
func WithParallelDepth(depth int) Option {
	return func(t *Tree) {
		t.parallelDepth = depth
	}
}

// WithCapacity limits the number of points the tree can hold. 0 means no
// limit other than the handle space.
func WithCapacity(n int) Option {
	return func(t *Tree) {
		t.capacity = n
	}
}

// Tree is a 3D KD-tree.
type Tree struct {
	name          string
	parallelDepth int
	capacity      int

	mutex sync.RWMutex
	nodes []node
	root  Handle
	seq   uint64
}

// New returns an empty tree.
func New(opts ...Option) *Tree {
	t := &Tree{
		name:          defaultName,
		parallelDepth: -1,
		root:          NoHandle,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Build returns a balanced tree holding the given points.
func Build(points []Point, opts ...Option) (*Tree, error) {
	t := New(opts...)
	if err := t.Rebuild(points); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) Name() string {
	return t.name
}

// Len returns the number of points in the tree.
func (t *Tree) Len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return len(t.nodes)
}

// Depth returns the number of levels of the tree. An empty tree has a depth
// of 0.
func (t *Tree) Depth() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.depth()
}

func (t *Tree) depth() int {
	if t.root == NoHandle {
		return 0
	}

	type frame struct {
		h     Handle
		depth int
	}

	maxDepth := 0
	stack := []frame{{h: t.root, depth: 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		maxDepth = max(maxDepth, f.depth)
		n := &t.nodes[f.h]
		if n.left != NoHandle {
			stack = append(stack, frame{h: n.left, depth: f.depth + 1})
		}
		if n.right != NoHandle {
			stack = append(stack, frame{h: n.right, depth: f.depth + 1})
		}
	}
	return maxDepth
}

// Insert adds a point to the tree and returns the handle of its node. The
// tree is not rebalanced.
func (t *Tree) Insert(p Point) (Handle, error) {
	if isNaN(p) {
		return NoHandle, errInvalidPoint(p)
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if err := t.reserve(1); err != nil {
		return NoHandle, err
	}
	return t.insert(p), nil
}

// InsertBatch inserts points in order. It stops at the first point that
// cannot be inserted, leaving the previous ones in the tree.
func (t *Tree) InsertBatch(points []Point) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for i, p := range points {
		err := t.reserve(1)
		if err == nil && isNaN(p) {
			err = errInvalidPoint(p)
		}
		if err != nil {
			return errors.New("inserting batch failed").
				WithType(errors.Type(err)).
				WithTag("position", i).
				WithTag("batch_size", len(points)).
				Wrap(err)
		}
		t.insert(p)
	}
	return nil
}

// Replace empties the tree and inserts points one by one in the given order,
// without rebalancing. Readers see either the previous content or the new
// one. The tree is left untouched when an error is returned.
func (t *Tree) Replace(points []Point) error {
	for i, p := range points {
		if isNaN(p) {
			return errors.New("replacing tree content failed").
				WithType(ErrTypeInvalidArgument).
				WithTag("position", i).
				Wrap(errInvalidPoint(p))
		}
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if len(points) > t.limit() {
		return errAllocation(len(points), t.limit())
	}

	t.nodes = make([]node, 0, len(points))
	t.root = NoHandle
	t.seq = 0
	for _, p := range points {
		t.insert(p)
	}
	return nil
}

func (t *Tree) insert(p Point) Handle {
	if t.root == NoHandle {
		p.Dim = r3.XAxis
		t.root = t.newNode(p, t.nextSeq())
		return t.root
	}

	cur := t.root
	for {
		n := t.nodes[cur]
		d := n.point.Dim

		if p.Coord(d) < n.point.Coord(d) {
			if n.left == NoHandle {
				p.Dim = nextAxis(d)
				h := t.newNode(p, t.nextSeq())
				t.nodes[cur].left = h
				return h
			}
			cur = n.left
			continue
		}

		if n.right == NoHandle {
			p.Dim = nextAxis(d)
			h := t.newNode(p, t.nextSeq())
			t.nodes[cur].right = h
			return h
		}
		cur = n.right
	}
}

// Rebuild replaces the content of the tree with a balanced tree holding the
// given points. The tree is left untouched when an error is returned.
func (t *Tree) Rebuild(points []Point) error {
	for i, p := range points {
		if isNaN(p) {
			return errors.New("rebuilding tree failed").
				WithType(ErrTypeInvalidArgument).
				WithTag("position", i).
				Wrap(errInvalidPoint(p))
		}
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if len(points) > t.limit() {
		return errAllocation(len(points), t.limit())
	}

	entries := make([]entry, len(points))
	for i, p := range points {
		entries[i] = entry{point: p, seq: uint64(i)}
	}
	t.seq = uint64(len(points))
	t.rebuild(entries)
	return nil
}

// Rebalance rebuilds the tree so that its depth is logarithmic in the number
// of points. Points keep their insertion order for tie-breaking. Points equal
// on every axis always go right of each other and stay chained.
func (t *Tree) Rebalance() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	order := t.bfsOrder()
	entries := make([]entry, len(order))
	for i, h := range order {
		n := &t.nodes[h]
		entries[i] = entry{point: n.point, seq: n.seq}
	}
	t.rebuild(entries)
}

func (t *Tree) rebuild(entries []entry) {
	t.nodes = make([]node, 0, len(entries))
	t.root = t.build(entries, r3.XAxis)
}

// build creates the subtree holding entries, rooted at their median along
// axis. Entries sharing the median coordinate go to the right subtree.
func (t *Tree) build(entries []entry, axis r3.Axis) Handle {
	if len(entries) == 0 {
		return NoHandle
	}

	slices.SortFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(a.point.Coord(axis), b.point.Coord(axis)); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	m := len(entries) / 2
	v := entries[m].point.Coord(axis)
	for m > 0 && entries[m-1].point.Coord(axis) == v {
		m--
	}

	p := entries[m].point
	p.Dim = axis
	h := t.newNode(p, entries[m].seq)

	left := t.build(entries[:m], nextAxis(axis))
	right := t.build(entries[m+1:], nextAxis(axis))
	t.nodes[h].left = left
	t.nodes[h].right = right
	return h
}

func (t *Tree) newNode(p Point, seq uint64) Handle {
	h := Handle(len(t.nodes))
	t.nodes = append(t.nodes, node{
		point: p,
		seq:   seq,
		left:  NoHandle,
		right: NoHandle,
	})
	return h
}

func (t *Tree) nextSeq() uint64 {
	seq := t.seq
	t.seq++
	return seq
}

func (t *Tree) limit() int {
	if t.capacity <= 0 || t.capacity > maxHandles {
		return maxHandles
	}
	return t.capacity
}

func (t *Tree) reserve(n int) error {
	if len(t.nodes)+n > t.limit() {
		return errAllocation(len(t.nodes)+n, t.limit())
	}
	return nil
}

func errAllocation(required, limit int) error {
	return errors.New("node arena is exhausted").
		WithType(ErrTypeAllocationFailure).
		WithTag("required", required).
		WithTag("capacity", limit)
}
