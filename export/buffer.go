// Package export turns the content of a spatial index into the contiguous
// buffer consumed by the downstream compute stage.
package export

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/kdindex/kdtree"
)

// Record is the element of a buffer: a position in single precision and the
// index of the particle it originates from.
type Record struct {
	X     float32
	Y     float32
	Z     float32
	Index int32
}

// Buffer is a contiguous, index-addressable sequence of records. The order
// of the records is the order of the points it was created from.
type Buffer struct {
	Records []Record
}

// FromPoints creates a buffer from the given points.
func FromPoints(points []kdtree.Point) (Buffer, error) {
	records := make([]Record, len(points))
	for i, p := range points {
		if p.Index < math.MinInt32 || p.Index > math.MaxInt32 {
			return Buffer{}, errors.New("originating index does not fit in a record").
				WithType(kdtree.ErrTypeInvalidArgument).
				WithTag("position", i).
				WithTag("index", p.Index)
		}

		records[i] = Record{
			X:     float32(p.X),
			Y:     float32(p.Y),
			Z:     float32(p.Z),
			Index: int32(p.Index),
		}
	}
	return Buffer{Records: records}, nil
}

// FromIndex creates a buffer from the flattened content of idx.
func FromIndex(idx kdtree.Index) (Buffer, error) {
	return FromPoints(idx.Flatten())
}

func (b Buffer) Len() int {
	return len(b.Records)
}

func (b Buffer) At(i int) Record {
	return b.Records[i]
}

// Origin returns the index of the particle the i-th record originates from.
func (b Buffer) Origin(i int) int {
	return int(b.Records[i].Index)
}

// Positions returns the record positions interleaved as x, y, z.
func (b Buffer) Positions() []float32 {
	positions := make([]float32, 0, 3*len(b.Records))
	for _, r := range b.Records {
		positions = append(positions, r.X, r.Y, r.Z)
	}
	return positions
}

// Indices returns the originating indexes of the records.
func (b Buffer) Indices() []int32 {
	indices := make([]int32, len(b.Records))
	for i, r := range b.Records {
		indices[i] = r.Index
	}
	return indices
}

// Points converts the records back to points.
func (b Buffer) Points() []kdtree.Point {
	points := make([]kdtree.Point, len(b.Records))
	for i, r := range b.Records {
		points[i] = kdtree.NewPoint(float64(r.X), float64(r.Y), float64(r.Z), int(r.Index))
	}
	return points
}
