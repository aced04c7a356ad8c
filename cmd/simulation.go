package main

import (
	"cmp"
	"context"
	"math/rand"
	"slices"
	"sync/atomic"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/kdindex/export"
	"github.com/aukilabs/kdindex/featureflag"
	"github.com/aukilabs/kdindex/kdtree"
	"github.com/aukilabs/kdindex/models"
	"github.com/aukilabs/kdindex/snapshot"
	"gonum.org/v1/gonum/stat"
)

// simulation steps a world and keeps an index of its particles up to date.
type simulation struct {
	World        *models.World
	Index        kdtree.Index
	FeatureFlags featureflag.FeatureFlag

	// Nil when snapshots are disabled.
	Snapshots *snapshot.Writer

	TimeStep           float64
	Neighbors          int
	Samples            int
	RebalanceInterval  uint64
	SnapshotInterval   uint64
	LogSummaryInterval uint64

	rand    *rand.Rand
	indexed atomic.Bool
}

// run ticks the simulation every frameDuration until the context is
// canceled, the given number of ticks is reached or the index is found
// corrupted. 0 ticks runs until cancellation.
func (s *simulation) run(ctx context.Context, frameDuration time.Duration, ticks uint64) error {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			tick, err := s.tick()
			if err != nil {
				return err
			}
			if ticks > 0 && tick >= ticks {
				return nil
			}
		}
	}
}

func (s *simulation) tick() (uint64, error) {
	tick := s.World.Step(s.TimeStep)
	if err := s.index(tick); err != nil {
		return tick, err
	}
	s.indexed.Store(true)

	if s.FeatureFlags.IsSet(featureflag.FlagValidateEachTick) {
		if err := s.Index.Validate(); err != nil {
			return tick, errors.New("index is corrupted").
				WithType(errors.Type(err)).
				WithTag("tick", tick).
				Wrap(err)
		}
	}

	s.FeatureFlags.IfNotSet(featureflag.FlagDisableQueries, func() {
		s.query(tick)
	})

	if s.Snapshots != nil && every(tick, s.SnapshotInterval) {
		s.FeatureFlags.IfNotSet(featureflag.FlagDisableSnapshots, func() {
			s.snapshot(tick)
		})
	}

	if every(tick, s.LogSummaryInterval) {
		if summarizer, ok := s.Index.(kdtree.Summarizer); ok {
			summarizer.LogSummary()
		}
	}
	return tick, nil
}

func (s *simulation) index(tick uint64) error {
	batch := s.World.Batch()

	if !s.FeatureFlags.IsSet(featureflag.FlagIncrementalInsert) {
		return s.Index.Rebuild(batch)
	}

	if err := s.Index.Replace(inTreeOrder(batch, s.Index.Flatten())); err != nil {
		return err
	}
	if every(tick, s.RebalanceInterval) {
		s.Index.Rebalance()
	}
	return nil
}

// inTreeOrder sorts batch by the breadth-first rank its particles had in the
// previous tree. Inserting in that order rebuilds the previous shape when the
// particles moved little. Particles missing from the previous tree come last.
func inTreeOrder(batch, previous []kdtree.Point) []kdtree.Point {
	ranks := make(map[int]int, len(previous))
	for i, p := range previous {
		ranks[p.Index] = i
	}

	rank := func(p kdtree.Point) int {
		if r, ok := ranks[p.Index]; ok {
			return r
		}
		return len(previous)
	}

	ordered := slices.Clone(batch)
	slices.SortStableFunc(ordered, func(a, b kdtree.Point) int {
		return cmp.Compare(rank(a), rank(b))
	})
	return ordered
}

func (s *simulation) query(tick uint64) {
	particles := s.World.Particles()
	if len(particles) == 0 {
		return
	}

	distances := make([]float64, 0, s.Samples*s.Neighbors)
	for i := 0; i < s.Samples; i++ {
		p := particles[s.rand.Intn(len(particles))].Point()

		// The sampled particle is its own nearest neighbor.
		neighbors, err := s.Index.KNearest(p, s.Neighbors+1)
		if err != nil {
			logs.Warn(errors.New("nearest neighbors query failed").
				WithTag("tick", tick).
				WithTag("particle", p.Index).
				Wrap(err))
			return
		}

		for _, n := range neighbors {
			if n.Index == p.Index {
				continue
			}
			distances = append(distances, p.Distance(n))
		}
	}

	center := s.World.Bounds.Center()
	quarter := s.World.Bounds.Max.Sub(s.World.Bounds.Min).Mul(0.25)
	central, err := s.Index.RangeQuery(kdtree.Box{
		Min: center.Sub(quarter),
		Max: center.Add(quarter),
	})
	if err != nil {
		logs.Warn(errors.New("central octant query failed").
			WithTag("tick", tick).
			Wrap(err))
		return
	}

	entry := logs.WithTag("tick", tick).
		WithTag("central_particles", len(central))
	if len(distances) > 0 {
		mean, std := stat.MeanStdDev(distances, nil)
		entry = entry.
			WithTag("mean_neighbor_distance", mean).
			WithTag("neighbor_distance_stddev", std)
	}
	entry.Debug("tick queried")
}

func (s *simulation) snapshot(tick uint64) {
	buf, err := export.FromIndex(s.Index)
	if err != nil {
		logs.Warn(errors.New("exporting index failed").
			WithTag("tick", tick).
			Wrap(err))
		return
	}

	s.Snapshots.Enqueue(snapshot.Snapshot{
		Tick:   tick,
		Buffer: buf,
	})
}

func (s *simulation) readinessCheck() error {
	if !s.indexed.Load() {
		return errors.New("particles are not indexed yet")
	}
	return nil
}

func every(tick, interval uint64) bool {
	return interval > 0 && tick%interval == 0
}
