package kdtree

// RangeQuery returns the points lying inside box, bounds included. Points are
// returned in no particular order.
func (t *Tree) RangeQuery(box Box) ([]Point, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}

	t.mutex.RLock()
	defer t.mutex.RUnlock()

	res := make([]Point, 0)
	if t.root == NoHandle {
		return res, nil
	}
	return t.rangeQuery(t.root, everywhere(), box, res), nil
}

func (t *Tree) rangeQuery(h Handle, region, box Box, res []Point) []Point {
	if box.ContainsBox(region) {
		return t.appendSubtree(h, res)
	}

	n := &t.nodes[h]
	if box.Contains(n.point) {
		res = append(res, n.point)
	}

	d := n.point.Dim
	v := n.point.Coord(d)
	lo, hi := box.Bounds(d)

	if n.left != NoHandle && lo < v {
		res = t.rangeQuery(n.left, region.withMax(d, v), box, res)
	}
	if n.right != NoHandle && hi >= v {
		res = t.rangeQuery(n.right, region.withMin(d, v), box, res)
	}
	return res
}

func (t *Tree) appendSubtree(h Handle, res []Point) []Point {
	stack := []Handle{h}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[h]
		res = append(res, n.point)
		if n.right != NoHandle {
			stack = append(stack, n.right)
		}
		if n.left != NoHandle {
			stack = append(stack, n.left)
		}
	}
	return res
}
