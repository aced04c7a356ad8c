package kdtree

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Point is a particle position stored in the tree.
type Point struct {
	X float64
	Y float64
	Z float64

	// Dim is the split dimension of the node holding the point. It is
	// assigned by the tree from the node depth and ignored on insertion.
	Dim r3.Axis

	// Index references the particle in the caller's particle array. The tree
	// never interprets it.
	Index int
}

func NewPoint(x, y, z float64, index int) Point {
	return Point{X: x, Y: y, Z: z, Index: index}
}

func PointFromVector(v r3.Vector, index int) Point {
	return Point{X: v.X, Y: v.Y, Z: v.Z, Index: index}
}

func (p Point) Vector() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// Coord returns the coordinate of p along the given axis.
func (p Point) Coord(axis r3.Axis) float64 {
	switch axis {
	case r3.XAxis:
		return p.X
	case r3.YAxis:
		return p.Y
	default:
		return p.Z
	}
}

// Distance returns the Euclidean distance between p and o.
func (p Point) Distance(o Point) float64 {
	return p.Vector().Distance(o.Vector())
}

func (p Point) distance2(o Point) float64 {
	return p.Vector().Sub(o.Vector()).Norm2()
}

// SamePosition reports whether p and o have the same coordinates and index,
// regardless of the split dimension assigned by the tree.
func (p Point) SamePosition(o Point) bool {
	return p.X == o.X && p.Y == o.Y && p.Z == o.Z && p.Index == o.Index
}

func (p Point) String() string {
	return fmt.Sprintf("#%d(%g, %g, %g)", p.Index, p.X, p.Y, p.Z)
}

// nextAxis returns the split dimension of the children of a node split on a.
func nextAxis(a r3.Axis) r3.Axis {
	return (a + 1) % 3
}

func axisName(a r3.Axis) string {
	switch a {
	case r3.XAxis:
		return "x"
	case r3.YAxis:
		return "y"
	default:
		return "z"
	}
}
