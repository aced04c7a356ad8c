package kdtree

import (
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	treeTag      = "tree"
	operationTag = "operation"
)

// IndexWithLogs returns an index that logs structural changes and failed
// operations of idx. Operation counts are accumulated and reported by
// LogSummary.
func IndexWithLogs(idx Index) Index {
	return &indexWithLogs{
		Index:   idx,
		counter: make(map[string]int),
	}
}

type indexWithLogs struct {
	Index

	counterMutex sync.Mutex
	counter      map[string]int
}

func (i *indexWithLogs) Insert(p Point) (Handle, error) {
	i.incCounter("insert")

	h, err := i.Index.Insert(p)
	if err != nil {
		i.warn("insert", err)
	}
	return h, err
}

func (i *indexWithLogs) InsertBatch(points []Point) error {
	i.incCounter("insert_batch")

	err := i.Index.InsertBatch(points)
	if err != nil {
		i.warn("insert_batch", err)
		return err
	}

	logs.WithTag(treeTag, i.Name()).
		WithTag("batch_size", len(points)).
		WithTag("points", i.Len()).
		Debug("points inserted")
	return nil
}

func (i *indexWithLogs) Rebuild(points []Point) error {
	i.incCounter("rebuild")

	err := i.Index.Rebuild(points)
	if err != nil {
		i.warn("rebuild", err)
		return err
	}

	logs.WithTag(treeTag, i.Name()).
		WithTag("points", len(points)).
		Debug("tree rebuilt")
	return nil
}

func (i *indexWithLogs) Replace(points []Point) error {
	i.incCounter("replace")

	err := i.Index.Replace(points)
	if err != nil {
		i.warn("replace", err)
		return err
	}

	logs.WithTag(treeTag, i.Name()).
		WithTag("points", len(points)).
		Debug("tree content replaced")
	return nil
}

func (i *indexWithLogs) Rebalance() {
	i.incCounter("rebalance")
	i.Index.Rebalance()

	logs.WithTag(treeTag, i.Name()).
		WithTag("points", i.Len()).
		Debug("tree rebalanced")
}

func (i *indexWithLogs) RangeQuery(box Box) ([]Point, error) {
	i.incCounter("range_query")

	points, err := i.Index.RangeQuery(box)
	if err != nil {
		i.warn("range_query", err)
	}
	return points, err
}

func (i *indexWithLogs) KNearest(q Point, k int) ([]Point, error) {
	i.incCounter("k_nearest")

	points, err := i.Index.KNearest(q, k)
	if err != nil {
		i.warn("k_nearest", err)
	}
	return points, err
}

func (i *indexWithLogs) Flatten() []Point {
	i.incCounter("flatten")
	return i.Index.Flatten()
}

func (i *indexWithLogs) Validate() error {
	i.incCounter("validate")

	err := i.Index.Validate()
	if err != nil {
		logs.WithTag(treeTag, i.Name()).
			WithTag(operationTag, "validate").
			Error(errors.New("tree is corrupted").
				WithType(errors.Type(err)).
				Wrap(err))
	}
	return err
}

// LogSummary logs and resets the operation counts accumulated since the
// previous summary.
func (i *indexWithLogs) LogSummary() {
	i.counterMutex.Lock()
	defer i.counterMutex.Unlock()

	if len(i.counter) == 0 {
		return
	}

	entry := logs.WithTag(treeTag, i.Name()).
		WithTag("points", i.Len())

	for k, v := range i.counter {
		entry = entry.WithTag(k, v)
		delete(i.counter, k)
	}

	entry.Info("index operation summary")
}

func (i *indexWithLogs) incCounter(operation string) {
	i.counterMutex.Lock()
	defer i.counterMutex.Unlock()

	i.counter[operation]++
}

func (i *indexWithLogs) warn(operation string, err error) {
	logs.WithTag(treeTag, i.Name()).
		WithTag(operationTag, operation).
		Warn(err)
}
