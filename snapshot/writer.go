package snapshot

import (
	"context"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// Writer stores snapshots in the background so that the simulation loop is
// never blocked by disk writes.
type Writer struct {
	Store *Store

	// The number of snapshots kept in the store. 0 keeps them all.
	Retention int

	mutex  sync.Mutex
	closed bool
	queue  chan Snapshot
}

// NewWriter creates a writer with a queue of the given size.
func NewWriter(store *Store, queueSize, retention int) *Writer {
	return &Writer{
		Store:     store,
		Retention: retention,
		queue:     make(chan Snapshot, max(queueSize, 1)),
	}
}

// Enqueue schedules a snapshot to be written. The snapshot is dropped when
// the queue is full or when Run stopped on cancellation.
func (w *Writer) Enqueue(s Snapshot) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		instrumentSnapshotDrop()
		logs.Warn(errors.New("snapshot writer is closed").
			WithTag("tick", s.Tick))
		return false
	}

	select {
	case w.queue <- s:
		return true
	default:
		instrumentSnapshotDrop()
		logs.Warn(errors.New("snapshot queue is full").
			WithTag("tick", s.Tick).
			WithTag("queue_size", cap(w.queue)))
		return false
	}
}

// Run writes queued snapshots until the context is canceled. Snapshots queued
// before the cancellation are written before Run returns. Later ones are
// dropped by Enqueue.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.close()
			w.drain()
			return

		case s := <-w.queue:
			w.write(s)
		}
	}
}

func (w *Writer) close() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.closed = true
}

func (w *Writer) drain() {
	for {
		select {
		case s := <-w.queue:
			w.write(s)
		default:
			return
		}
	}
}

func (w *Writer) write(s Snapshot) {
	if err := instrumentSnapshotWrite(func() error {
		return w.Store.Put(s.Tick, s.Buffer)
	}); err != nil {
		logs.Warn(errors.New("writing snapshot failed").
			WithTag("tick", s.Tick).
			WithTag("records", s.Buffer.Len()).
			Wrap(err))
		return
	}

	logs.WithTag("tick", s.Tick).
		WithTag("records", s.Buffer.Len()).
		Debug("snapshot written")

	if w.Retention <= 0 {
		return
	}
	if _, err := w.Store.Prune(w.Retention); err != nil {
		logs.Warn(err)
	}
}
