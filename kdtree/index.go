package kdtree

// Index is the set of operations of a spatial index over particle positions.
// It is implemented by Tree and decorated by IndexWithLogs and
// IndexWithMetrics.
type Index interface {
	Name() string
	Len() int
	Depth() int

	Insert(p Point) (Handle, error)
	InsertBatch(points []Point) error
	Rebuild(points []Point) error
	Replace(points []Point) error
	Rebalance()

	RangeQuery(box Box) ([]Point, error)
	KNearest(q Point, k int) ([]Point, error)
	Flatten() []Point

	Validate() error
}

// Summarizer is implemented by indexes that accumulate operation counts and
// can report them.
type Summarizer interface {
	LogSummary()
}
