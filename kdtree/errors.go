package kdtree

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Error types returned by the tree. Use errors.Type to classify an error.
const (
	// ErrTypeEmptyTree is returned by accessors that need a root. Queries on
	// an empty tree are not failures and return empty results.
	ErrTypeEmptyTree = "empty_tree"

	ErrTypeInvalidArgument = "invalid_argument"

	// ErrTypeInvariantViolation is only returned by Validate and signals a
	// structural bug.
	ErrTypeInvariantViolation = "invariant_violation"

	// ErrTypeAllocationFailure is returned when the node arena cannot grow.
	// It is never retried.
	ErrTypeAllocationFailure = "allocation_failure"
)

func errInvalidPoint(p Point) error {
	return errors.New("point has a NaN coordinate").
		WithType(ErrTypeInvalidArgument).
		WithTag("x", p.X).
		WithTag("y", p.Y).
		WithTag("z", p.Z).
		WithTag("index", p.Index)
}

func errInvalidHandle(h Handle) error {
	return errors.New("unknown node handle").
		WithType(ErrTypeInvalidArgument).
		WithTag("handle", h)
}

func errEmptyTree() error {
	return errors.New("tree is empty").WithType(ErrTypeEmptyTree)
}

func isNaN(p Point) bool {
	return math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z)
}
