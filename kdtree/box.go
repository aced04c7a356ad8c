package kdtree

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
)

// Box is an axis-aligned box. Bounds are inclusive.
type Box struct {
	Min r3.Vector
	Max r3.Vector
}

// NewBox returns a box spanning min and max. An error is returned when min is
// greater than max on any dimension.
func NewBox(min, max r3.Vector) (Box, error) {
	b := Box{Min: min, Max: max}
	if err := b.Validate(); err != nil {
		return Box{}, err
	}
	return b, nil
}

// Cube returns the box of half-size r centered on c.
func Cube(c r3.Vector, r float64) Box {
	e := r3.Vector{X: r, Y: r, Z: r}
	return Box{Min: c.Sub(e), Max: c.Add(e)}
}

// everywhere is the region of the root of a tree.
func everywhere() Box {
	inf := math.Inf(1)
	return Box{
		Min: r3.Vector{X: -inf, Y: -inf, Z: -inf},
		Max: r3.Vector{X: inf, Y: inf, Z: inf},
	}
}

func (b Box) Validate() error {
	for a := r3.XAxis; a <= r3.ZAxis; a++ {
		lo, hi := b.Bounds(a)
		if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
			return errors.New("invalid box bounds").
				WithType(ErrTypeInvalidArgument).
				WithTag("axis", axisName(a)).
				WithTag("min", lo).
				WithTag("max", hi)
		}
	}
	return nil
}

// Bounds returns the box minimum and maximum along the given axis.
func (b Box) Bounds(a r3.Axis) (float64, float64) {
	switch a {
	case r3.XAxis:
		return b.Min.X, b.Max.X
	case r3.YAxis:
		return b.Min.Y, b.Max.Y
	default:
		return b.Min.Z, b.Max.Z
	}
}

func (b Box) Contains(p Point) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// ContainsBox reports whether o lies entirely inside b.
func (b Box) ContainsBox(o Box) bool {
	return o.Min.X >= b.Min.X && o.Max.X <= b.Max.X &&
		o.Min.Y >= b.Min.Y && o.Max.Y <= b.Max.Y &&
		o.Min.Z >= b.Min.Z && o.Max.Z <= b.Max.Z
}

// Center returns the center of the box.
func (b Box) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// withMin returns a copy of b with the minimum of axis a set to v.
func (b Box) withMin(a r3.Axis, v float64) Box {
	switch a {
	case r3.XAxis:
		b.Min.X = v
	case r3.YAxis:
		b.Min.Y = v
	default:
		b.Min.Z = v
	}
	return b
}

// withMax returns a copy of b with the maximum of axis a set to v.
func (b Box) withMax(a r3.Axis, v float64) Box {
	switch a {
	case r3.XAxis:
		b.Max.X = v
	case r3.YAxis:
		b.Max.Y = v
	default:
		b.Max.Z = v
	}
	return b
}
