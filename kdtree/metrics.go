package kdtree

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	treeLabel      = "tree"
	operationLabel = "operation"
	errTypeLabel   = "error_type"
)

var (
	operationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kdtree_operation_latency",
		Help:    "The time taken by tree operations, in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{
		treeLabel,
		operationLabel,
	})

	operationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kdtree_operation_errors",
		Help: "The errors returned by tree operations.",
	}, []string{
		treeLabel,
		operationLabel,
		errTypeLabel,
	})

	treePoints = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kdtree_points",
		Help: "The number of points stored in a tree.",
	}, []string{
		treeLabel,
	})

	treeDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kdtree_depth",
		Help: "The depth of a tree after its last rebuild or rebalance.",
	}, []string{
		treeLabel,
	})
)

// IndexWithMetrics returns an index that reports the latency and errors of
// the operations of idx, along with its size, to Prometheus.
func IndexWithMetrics(idx Index) Index {
	return &indexWithMetrics{Index: idx}
}

type indexWithMetrics struct {
	Index
}

func (i *indexWithMetrics) Insert(p Point) (Handle, error) {
	start := time.Now()
	h, err := i.Index.Insert(p)
	i.measure("insert", start, err)
	i.setPoints()
	return h, err
}

func (i *indexWithMetrics) InsertBatch(points []Point) error {
	start := time.Now()
	err := i.Index.InsertBatch(points)
	i.measure("insert_batch", start, err)
	i.setPoints()
	return err
}

func (i *indexWithMetrics) Rebuild(points []Point) error {
	start := time.Now()
	err := i.Index.Rebuild(points)
	i.measure("rebuild", start, err)
	i.setPoints()
	i.setDepth()
	return err
}

func (i *indexWithMetrics) Replace(points []Point) error {
	start := time.Now()
	err := i.Index.Replace(points)
	i.measure("replace", start, err)
	i.setPoints()
	i.setDepth()
	return err
}

func (i *indexWithMetrics) Rebalance() {
	start := time.Now()
	i.Index.Rebalance()
	i.measure("rebalance", start, nil)
	i.setDepth()
}

func (i *indexWithMetrics) RangeQuery(box Box) ([]Point, error) {
	start := time.Now()
	points, err := i.Index.RangeQuery(box)
	i.measure("range_query", start, err)
	return points, err
}

func (i *indexWithMetrics) KNearest(q Point, k int) ([]Point, error) {
	start := time.Now()
	points, err := i.Index.KNearest(q, k)
	i.measure("k_nearest", start, err)
	return points, err
}

func (i *indexWithMetrics) Flatten() []Point {
	start := time.Now()
	points := i.Index.Flatten()
	i.measure("flatten", start, nil)
	return points
}

func (i *indexWithMetrics) Validate() error {
	start := time.Now()
	err := i.Index.Validate()
	i.measure("validate", start, err)
	return err
}

// LogSummary forwards to the decorated index when it summarizes operations.
func (i *indexWithMetrics) LogSummary() {
	if s, ok := i.Index.(Summarizer); ok {
		s.LogSummary()
	}
}

func (i *indexWithMetrics) measure(operation string, start time.Time, err error) {
	operationLatency.With(prometheus.Labels{
		treeLabel:      i.Name(),
		operationLabel: operation,
	}).Observe(time.Since(start).Seconds())

	if err != nil {
		operationErrors.With(prometheus.Labels{
			treeLabel:      i.Name(),
			operationLabel: operation,
			errTypeLabel:   errors.Type(err),
		}).Inc()
	}
}

func (i *indexWithMetrics) setPoints() {
	treePoints.WithLabelValues(i.Name()).Set(float64(i.Len()))
}

func (i *indexWithMetrics) setDepth() {
	treeDepth.WithLabelValues(i.Name()).Set(float64(i.Depth()))
}
