package snapshot

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
)

var (
	snapshotWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapshot_writes",
		Help: "The number of snapshots written to the store.",
	})

	snapshotWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapshot_write_errors",
		Help: "The errors that occured while writing a snapshot.",
	}, []string{
		errTypeLabel,
	})

	snapshotWriteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "snapshot_write_latency",
		Help: "The time to write a snapshot to the store.",
	})

	snapshotDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapshot_drops",
		Help: "The number of snapshots dropped because the write queue was full.",
	})
)

func instrumentSnapshotWrite(write func() error) error {
	start := time.Now()

	err := write()
	snapshotWriteLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		snapshotWriteErrors.
			With(prometheus.Labels{
				errTypeLabel: errors.Type(err),
			}).
			Inc()
		return err
	}

	snapshotWrites.Inc()
	return nil
}

func instrumentSnapshotDrop() {
	snapshotDrops.Inc()
}
