package export

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/kdindex/kdtree"
	"google.golang.org/protobuf/encoding/protowire"
)

// Wire layout of a buffer, compatible with the message:
//
//	message Buffer {
//	  repeated float positions = 1; // packed, x y z per record
//	  repeated sint32 indices = 2;  // packed
//	}
const (
	positionsField protowire.Number = 1
	indicesField   protowire.Number = 2
)

// MarshalBinary encodes the buffer in its protobuf wire form.
func (b Buffer) MarshalBinary() ([]byte, error) {
	if len(b.Records) == 0 {
		return []byte{}, nil
	}

	positions := make([]byte, 0, 12*len(b.Records))
	indices := make([]byte, 0, 2*len(b.Records))

	for _, r := range b.Records {
		positions = protowire.AppendFixed32(positions, math.Float32bits(r.X))
		positions = protowire.AppendFixed32(positions, math.Float32bits(r.Y))
		positions = protowire.AppendFixed32(positions, math.Float32bits(r.Z))
		indices = protowire.AppendVarint(indices, protowire.EncodeZigZag(int64(r.Index)))
	}

	data := make([]byte, 0, len(positions)+len(indices)+2*protowire.SizeTag(indicesField)+16)
	data = protowire.AppendTag(data, positionsField, protowire.BytesType)
	data = protowire.AppendBytes(data, positions)
	data = protowire.AppendTag(data, indicesField, protowire.BytesType)
	data = protowire.AppendBytes(data, indices)
	return data, nil
}

// UnmarshalBinary decodes a buffer from its protobuf wire form. Unknown
// fields are skipped.
func (b *Buffer) UnmarshalBinary(data []byte) error {
	var positions []float32
	var indices []int32

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errMalformed("reading field tag failed", protowire.ParseError(n))
		}
		data = data[n:]

		if num != positionsField && num != indicesField {
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return errMalformed("skipping unknown field failed", protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}

		if typ != protowire.BytesType {
			return errors.New("field is not packed").
				WithType(kdtree.ErrTypeInvalidArgument).
				WithTag("field", num).
				WithTag("wire_type", typ)
		}

		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return errMalformed("reading packed field failed", protowire.ParseError(n))
		}
		data = data[n:]

		var err error
		if num == positionsField {
			positions, err = appendPositions(positions, v)
		} else {
			indices, err = appendIndices(indices, v)
		}
		if err != nil {
			return err
		}
	}

	if len(positions) != 3*len(indices) {
		return errors.New("positions do not match indices").
			WithType(kdtree.ErrTypeInvalidArgument).
			WithTag("positions", len(positions)).
			WithTag("indices", len(indices))
	}

	records := make([]Record, len(indices))
	for i := range records {
		records[i] = Record{
			X:     positions[3*i],
			Y:     positions[3*i+1],
			Z:     positions[3*i+2],
			Index: indices[i],
		}
	}
	b.Records = records
	return nil
}

func appendPositions(positions []float32, v []byte) ([]float32, error) {
	for len(v) > 0 {
		bits, n := protowire.ConsumeFixed32(v)
		if n < 0 {
			return nil, errMalformed("reading position failed", protowire.ParseError(n))
		}
		v = v[n:]
		positions = append(positions, math.Float32frombits(bits))
	}
	return positions, nil
}

func appendIndices(indices []int32, v []byte) ([]int32, error) {
	for len(v) > 0 {
		x, n := protowire.ConsumeVarint(v)
		if n < 0 {
			return nil, errMalformed("reading index failed", protowire.ParseError(n))
		}
		v = v[n:]

		i := protowire.DecodeZigZag(x)
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, errors.New("index overflows a record").
				WithType(kdtree.ErrTypeInvalidArgument).
				WithTag("index", i)
		}
		indices = append(indices, int32(i))
	}
	return indices, nil
}

func errMalformed(msg string, err error) error {
	return errors.New(msg).
		WithType(kdtree.ErrTypeInvalidArgument).
		Wrap(err)
}
