package kdtree

// NodeInfo describes a node of the tree.
type NodeInfo struct {
	Handle Handle
	Point  Point
	Depth  int
	Left   Handle
	Right  Handle

	// Region is the part of space the subtree rooted at the node covers. Its
	// maximum bounds are exclusive on the split planes of the ancestors the
	// node is on the left of.
	Region Box
}

// Root returns the description of the root node.
func (t *Tree) Root() (NodeInfo, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.root == NoHandle {
		return NodeInfo{}, errEmptyTree()
	}
	return t.node(t.root)
}

// RootPoint returns the point stored at the root.
func (t *Tree) RootPoint() (Point, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.root == NoHandle {
		return Point{}, errEmptyTree()
	}
	return t.nodes[t.root].point, nil
}

// NodeValue returns the point stored at the given node.
func (t *Tree) NodeValue(h Handle) (Point, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if !t.valid(h) {
		return Point{}, errInvalidHandle(h)
	}
	return t.nodes[h].point, nil
}

// Node returns the description of the given node.
func (t *Tree) Node(h Handle) (NodeInfo, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if !t.valid(h) {
		return NodeInfo{}, errInvalidHandle(h)
	}
	return t.node(h)
}

func (t *Tree) node(h Handle) (NodeInfo, error) {
	target := t.nodes[h].point
	region := everywhere()
	depth := 0

	for cur := t.root; cur != h; depth++ {
		if cur == NoHandle {
			return NodeInfo{}, errInvalidHandle(h)
		}

		n := &t.nodes[cur]
		d := n.point.Dim
		v := n.point.Coord(d)
		if target.Coord(d) < v {
			region = region.withMax(d, v)
			cur = n.left
		} else {
			region = region.withMin(d, v)
			cur = n.right
		}
	}

	n := &t.nodes[h]
	return NodeInfo{
		Handle: h,
		Point:  n.point,
		Depth:  depth,
		Left:   n.left,
		Right:  n.right,
		Region: region,
	}, nil
}

func (t *Tree) valid(h Handle) bool {
	return h >= 0 && int(h) < len(t.nodes)
}
