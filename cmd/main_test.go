package main

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aukilabs/kdindex/featureflag"
	"github.com/aukilabs/kdindex/kdtree"
	"github.com/aukilabs/kdindex/models"
	"github.com/aukilabs/kdindex/snapshot"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
)

func TestValidateConfig(t *testing.T) {
	require.NoError(t, validateConfig(defaultConfig()))

	tests := []struct {
		scenario string
		update   func(*config)
	}{
		{
			scenario: "empty admin address",
			update:   func(c *config) { c.AdminAddr = "" },
		},
		{
			scenario: "negative admin connections",
			update:   func(c *config) { c.MaxAdminConns = -1 },
		},
		{
			scenario: "no particles",
			update:   func(c *config) { c.Particles = 0 },
		},
		{
			scenario: "empty world",
			update:   func(c *config) { c.WorldSize = 0 },
		},
		{
			scenario: "negative speed",
			update:   func(c *config) { c.MaxSpeed = -1 },
		},
		{
			scenario: "no time step",
			update:   func(c *config) { c.TimeStep = 0 },
		},
		{
			scenario: "no frame duration",
			update:   func(c *config) { c.FrameDuration = 0 },
		},
		{
			scenario: "negative neighbors",
			update:   func(c *config) { c.Neighbors = -1 },
		},
		{
			scenario: "negative ticks",
			update:   func(c *config) { c.Ticks = -1 },
		},
		{
			scenario: "negative retention",
			update:   func(c *config) { c.SnapshotRetention = -1 },
		},
		{
			scenario: "snapshots without interval",
			update: func(c *config) {
				c.SnapshotFile = "snapshots.db"
				c.SnapshotInterval = 0
			},
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			conf := defaultConfig()
			test.update(&conf)
			require.Error(t, validateConfig(conf))
		})
	}
}

func TestConfigFilePath(t *testing.T) {
	t.Setenv(configFileEnv, "env.toml")

	tests := []struct {
		scenario string
		args     []string
		expected string
	}{
		{
			scenario: "equal sign",
			args:     []string{"-particles=12", "-config-file=flag.toml"},
			expected: "flag.toml",
		},
		{
			scenario: "double dash",
			args:     []string{"--config-file=flag.toml"},
			expected: "flag.toml",
		},
		{
			scenario: "separate value",
			args:     []string{"-config-file", "flag.toml", "-ticks=3"},
			expected: "flag.toml",
		},
		{
			scenario: "environment",
			args:     []string{"-ticks=3", "config-file=ignored.toml"},
			expected: "env.toml",
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			require.Equal(t, test.expected, configFilePath(test.args))
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("empty path", func(t *testing.T) {
		conf := defaultConfig()
		require.NoError(t, loadConfigFile("", &conf))
		require.Equal(t, defaultConfig(), conf)
	})

	t.Run("overrides defaults", func(t *testing.T) {
		path := filepath.Join(dir, "kdindex.toml")
		err := os.WriteFile(path, []byte(`
particles = 128
world_size = 20.5
frame_duration = "5ms"
feature_flags = ["INCREMENTAL_INSERT", "VALIDATE_EACH_TICK"]
`), 0o600)
		require.NoError(t, err)

		conf := defaultConfig()
		require.NoError(t, loadConfigFile(path, &conf))
		require.Equal(t, 128, conf.Particles)
		require.Equal(t, 20.5, conf.WorldSize)
		require.Equal(t, time.Millisecond*5, conf.FrameDuration)
		require.Equal(t, []string{"INCREMENTAL_INSERT", "VALIDATE_EACH_TICK"}, conf.FeatureFlags)
		require.Equal(t, ":18190", conf.AdminAddr)
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(dir, "unknown.toml")
		require.NoError(t, os.WriteFile(path, []byte("particle_count = 3\n"), 0o600))

		conf := defaultConfig()
		require.Error(t, loadConfigFile(path, &conf))
	})

	t.Run("missing file", func(t *testing.T) {
		conf := defaultConfig()
		require.Error(t, loadConfigFile(filepath.Join(dir, "missing.toml"), &conf))
	})
}

func newTestSimulation(t *testing.T, name string, flags ...string) *simulation {
	r := rand.New(rand.NewSource(1))

	world, err := models.NewWorld(name, kdtree.Cube(r3.Vector{}, 10))
	require.NoError(t, err)
	require.NoError(t, world.SpawnRandom(r, 200, 2))

	return &simulation{
		World:              world,
		Index:              kdtree.IndexWithLogs(kdtree.New(kdtree.WithName(name))),
		FeatureFlags:       featureflag.New(flags),
		TimeStep:           0.01,
		Neighbors:          4,
		Samples:            8,
		RebalanceInterval:  2,
		SnapshotInterval:   1,
		LogSummaryInterval: 2,
		rand:               r,
	}
}

func TestSimulationTick(t *testing.T) {
	t.Run("rebuild", func(t *testing.T) {
		s := newTestSimulation(t, "sim-rebuild", string(featureflag.FlagValidateEachTick))
		require.Error(t, s.readinessCheck())

		tick, err := s.tick()
		require.NoError(t, err)
		require.Equal(t, uint64(1), tick)
		require.Equal(t, 200, s.Index.Len())
		require.NoError(t, s.Index.Validate())
		require.NoError(t, s.readinessCheck())
	})

	t.Run("incremental insert", func(t *testing.T) {
		s := newTestSimulation(t, "sim-incremental",
			string(featureflag.FlagIncrementalInsert),
			string(featureflag.FlagValidateEachTick),
		)

		for i := 1; i <= 4; i++ {
			tick, err := s.tick()
			require.NoError(t, err)
			require.Equal(t, uint64(i), tick)
			require.Equal(t, 200, s.Index.Len())
		}

		var expected, indexed []int
		for _, p := range s.World.Batch() {
			expected = append(expected, p.Index)
		}
		for _, p := range s.Index.Flatten() {
			indexed = append(indexed, p.Index)
		}
		require.ElementsMatch(t, expected, indexed)
	})

	t.Run("incremental insert keeps the rebalanced shape", func(t *testing.T) {
		s := newTestSimulation(t, "sim-incremental-shape", string(featureflag.FlagIncrementalInsert))
		s.TimeStep = 0

		_, err := s.tick()
		require.NoError(t, err)
		_, err = s.tick()
		require.NoError(t, err)
		balanced := s.Index.Depth()
		order := s.Index.Flatten()

		_, err = s.tick()
		require.NoError(t, err)
		require.Equal(t, balanced, s.Index.Depth())
		require.Equal(t, order, s.Index.Flatten())
	})

	t.Run("incremental insert never exposes a partial index", func(t *testing.T) {
		s := newTestSimulation(t, "sim-incremental-readers", string(featureflag.FlagIncrementalInsert))
		_, err := s.tick()
		require.NoError(t, err)

		var partial atomic.Int64
		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()

			for {
				select {
				case <-done:
					return
				default:
				}

				if s.Index.Len() != 200 {
					partial.Add(1)
				}
				points, err := s.Index.RangeQuery(s.World.Bounds)
				if err != nil || len(points) != 200 {
					partial.Add(1)
				}
			}
		}()

		for i := 0; i < 20; i++ {
			_, err := s.tick()
			require.NoError(t, err)
		}
		close(done)
		wg.Wait()

		require.Zero(t, partial.Load())
	})

	t.Run("queries disabled", func(t *testing.T) {
		s := newTestSimulation(t, "sim-no-queries", string(featureflag.FlagDisableQueries))
		_, err := s.tick()
		require.NoError(t, err)
	})
}

func TestInTreeOrder(t *testing.T) {
	batch := []kdtree.Point{
		kdtree.NewPoint(0, 0, 0, 0),
		kdtree.NewPoint(1, 0, 0, 1),
		kdtree.NewPoint(2, 0, 0, 2),
		kdtree.NewPoint(3, 0, 0, 3),
	}
	previous := []kdtree.Point{
		kdtree.NewPoint(5, 5, 5, 2),
		kdtree.NewPoint(5, 5, 5, 0),
	}

	ordered := inTreeOrder(batch, previous)
	indexes := make([]int, len(ordered))
	for i, p := range ordered {
		indexes[i] = p.Index
	}
	require.Equal(t, []int{2, 0, 1, 3}, indexes)
	require.Equal(t, 0, batch[0].Index)
}

func TestSimulationSnapshots(t *testing.T) {
	store, err := snapshot.Open(filepath.Join(t.TempDir(), "snapshots.db"), time.Second)
	require.NoError(t, err)
	defer store.Close()

	s := newTestSimulation(t, "sim-snapshots")
	s.Snapshots = snapshot.NewWriter(store, 4, 0)

	_, err = s.tick()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Snapshots.Run(ctx)

	snap, err := store.Last()
	require.NoError(t, err)
	require.Equal(t, uint64(1), snap.Tick)
	require.Equal(t, 200, snap.Buffer.Len())

	t.Run("disabled", func(t *testing.T) {
		s.FeatureFlags = featureflag.New([]string{string(featureflag.FlagDisableSnapshots)})
		_, err := s.tick()
		require.NoError(t, err)
		s.Snapshots.Run(ctx)

		ticks, err := store.Ticks()
		require.NoError(t, err)
		require.Equal(t, []uint64{1}, ticks)
	})
}

func TestSimulationRun(t *testing.T) {
	t.Run("stops after ticks", func(t *testing.T) {
		s := newTestSimulation(t, "sim-run")
		require.NoError(t, s.run(context.Background(), time.Millisecond, 3))
		require.Equal(t, uint64(3), s.World.Ticks())
	})

	t.Run("stops on cancel", func(t *testing.T) {
		s := newTestSimulation(t, "sim-cancel")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, s.run(ctx, time.Hour, 0), context.Canceled)
		require.Zero(t, s.World.Ticks())
	})
}
