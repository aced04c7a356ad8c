package models

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/kdindex/kdtree"
	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func newTestWorld(t *testing.T, name string) *World {
	w, err := NewWorld(name, kdtree.Cube(r3.Vector{}, 10))
	require.NoError(t, err)
	return w
}

func TestNewWorld(t *testing.T) {
	w := newTestWorld(t, "new")
	require.NotEmpty(t, w.ID)
	require.Zero(t, w.Len())
	require.Zero(t, w.Ticks())
	require.Empty(t, w.Batch())

	_, err := NewWorld("invalid", kdtree.Box{Min: r3.Vector{X: 1}})
	require.Error(t, err)
	require.Equal(t, kdtree.ErrTypeInvalidArgument, errors.Type(err))
}

func TestWorldSpawn(t *testing.T) {
	w := newTestWorld(t, "spawn")

	i, err := w.Spawn(r3.Vector{X: 1, Y: 2, Z: 3}, r3.Vector{X: 1})
	require.NoError(t, err)
	require.Zero(t, i)

	p, err := w.Particle(i)
	require.NoError(t, err)
	require.Equal(t, r3.Vector{X: 1, Y: 2, Z: 3}, p.Position)
	require.Equal(t, kdtree.NewPoint(1, 2, 3, 0), p.Point())
	require.Equal(t, 1.0, testutil.ToFloat64(worldParticles.WithLabelValues("spawn")))

	_, err = w.Spawn(r3.Vector{X: 11}, r3.Vector{})
	require.Error(t, err)
	require.Equal(t, ErrTypeOutOfBounds, errors.Type(err))
	require.Equal(t, 1, w.Len())
}

func TestWorldDespawn(t *testing.T) {
	w := newTestWorld(t, "despawn")

	for i := 0; i < 3; i++ {
		_, err := w.Spawn(r3.Vector{X: float64(i)}, r3.Vector{})
		require.NoError(t, err)
	}

	require.NoError(t, w.Despawn(1))
	require.Equal(t, 2, w.Len())
	require.Equal(t, []int{0, 2}, []int{w.Batch()[0].Index, w.Batch()[1].Index})

	_, err := w.Particle(1)
	require.Equal(t, ErrTypeParticleNotFound, errors.Type(err))

	err = w.Despawn(1)
	require.Equal(t, ErrTypeParticleNotFound, errors.Type(err))
	err = w.Despawn(42)
	require.Equal(t, ErrTypeParticleNotFound, errors.Type(err))

	i, err := w.Spawn(r3.Vector{Y: 5}, r3.Vector{})
	require.NoError(t, err)
	require.Equal(t, 1, i)
	require.Len(t, w.Particles(), 3)
}

func TestWorldStep(t *testing.T) {
	t.Run("moves particles", func(t *testing.T) {
		w := newTestWorld(t, "step-move")
		i, err := w.Spawn(r3.Vector{}, r3.Vector{X: 1, Y: -2, Z: 0.5})
		require.NoError(t, err)

		require.Equal(t, uint64(1), w.Step(2))
		require.Equal(t, uint64(1), w.Ticks())

		p, err := w.Particle(i)
		require.NoError(t, err)
		require.Equal(t, r3.Vector{X: 2, Y: -4, Z: 1}, p.Position)
		require.Equal(t, 1.0, testutil.ToFloat64(worldTicks.WithLabelValues("step-move")))
	})

	t.Run("reflects on walls", func(t *testing.T) {
		w := newTestWorld(t, "step-reflect")
		i, err := w.Spawn(r3.Vector{X: 9}, r3.Vector{X: 4, Y: -25})
		require.NoError(t, err)

		w.Step(1)

		p, err := w.Particle(i)
		require.NoError(t, err)
		require.Equal(t, r3.Vector{X: 7, Y: 5}, p.Position)
		require.Equal(t, r3.Vector{X: -4, Y: 25}, p.Velocity)
	})

	t.Run("huge velocity", func(t *testing.T) {
		w := newTestWorld(t, "step-huge-velocity")
		i, err := w.Spawn(r3.Vector{}, r3.Vector{X: 1e300, Y: -1e300})
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			w.Step(0.01)
		}()

		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("step did not return")
		}

		p, err := w.Particle(i)
		require.NoError(t, err)
		require.True(t, w.Bounds.Contains(p.Point()), p.Point().String())
	})

	t.Run("keeps particles inside the bounds", func(t *testing.T) {
		w := newTestWorld(t, "step-bounds")
		require.NoError(t, w.SpawnRandom(rand.New(rand.NewSource(1)), 500, 40))
		require.Equal(t, 500, w.Len())

		for i := 0; i < 50; i++ {
			w.Step(0.1)
		}

		for _, p := range w.Batch() {
			require.True(t, w.Bounds.Contains(p), p.String())
		}
	})
}

func TestWorldSpawnRandom(t *testing.T) {
	w := newTestWorld(t, "spawn-random")
	require.NoError(t, w.SpawnRandom(rand.New(rand.NewSource(42)), 300, 3))

	particles := w.Particles()
	require.Len(t, particles, 300)

	speeds := make([]float64, len(particles))
	for i, p := range particles {
		require.Equal(t, i, p.Index)
		require.True(t, w.Bounds.Contains(p.Point()))
		speeds[i] = p.Velocity.Norm()
	}
	require.LessOrEqual(t, floats.Max(speeds), 3+1e-9)
	require.GreaterOrEqual(t, floats.Min(speeds), 0.0)
}

func TestReflect(t *testing.T) {
	x, v := reflect(12, 1, -10, 10)
	require.Equal(t, 8.0, x)
	require.Equal(t, -1.0, v)

	x, v = reflect(-45, -1, -10, 10)
	require.Equal(t, -5.0, x)
	require.Equal(t, -1.0, v)

	x, v = reflect(3, 1, 3, 3)
	require.Equal(t, 3.0, x)
	require.Zero(t, v)

	x, v = reflect(75, 1, -10, 10)
	require.Equal(t, -5.0, x)
	require.Equal(t, 1.0, v)

	x, v = reflect(1e300, 3, -50, 50)
	require.GreaterOrEqual(t, x, -50.0)
	require.LessOrEqual(t, x, 50.0)
	require.Equal(t, 3.0, math.Abs(v))

	x, v = reflect(-1e300, -3, -50, 50)
	require.GreaterOrEqual(t, x, -50.0)
	require.LessOrEqual(t, x, 50.0)
	require.Equal(t, 3.0, math.Abs(v))
}
