package models

import (
	"math"
	"math/rand"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/kdindex/kdtree"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
)

const (
	ErrTypeParticleNotFound = "particle_not_found"
	ErrTypeOutOfBounds      = "out_of_bounds"
)

// Particle is a point mass moving in a world.
type Particle struct {
	Index    int
	Position r3.Vector
	Velocity r3.Vector
}

// Point returns the position of the particle as an index point.
func (p Particle) Point() kdtree.Point {
	return kdtree.PointFromVector(p.Position, p.Index)
}

// World is a box of particles moving in straight lines and bouncing off its
// walls.
type World struct {
	ID     string
	Name   string
	Bounds kdtree.Box

	mutex     sync.RWMutex
	particles []Particle
	alive     []bool
	count     int
	indexes   IndexGenerator
	ticks     uint64
}

// NewWorld creates an empty world within the given bounds.
func NewWorld(name string, bounds kdtree.Box) (*World, error) {
	if err := bounds.Validate(); err != nil {
		return nil, errors.New("invalid world bounds").
			WithType(kdtree.ErrTypeInvalidArgument).
			Wrap(err)
	}

	return &World{
		ID:     uuid.NewString(),
		Name:   name,
		Bounds: bounds,
	}, nil
}

// Spawn adds a particle to the world and returns its index.
func (w *World) Spawn(position, velocity r3.Vector) (int, error) {
	if !w.Bounds.Contains(kdtree.PointFromVector(position, 0)) {
		return 0, errors.New("particle spawned out of bounds").
			WithType(ErrTypeOutOfBounds).
			WithTag("world", w.Name).
			WithTag("position", position.String())
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()

	i := w.indexes.New()
	p := Particle{
		Index:    i,
		Position: position,
		Velocity: velocity,
	}

	if i == len(w.particles) {
		w.particles = append(w.particles, p)
		w.alive = append(w.alive, true)
	} else {
		w.particles[i] = p
		w.alive[i] = true
	}

	w.count++
	instrumentParticles(w.Name, w.count)
	return i, nil
}

// SpawnRandom adds n particles at uniformly distributed positions with
// velocities of random directions and speeds up to maxSpeed.
func (w *World) SpawnRandom(r *rand.Rand, n int, maxSpeed float64) error {
	for i := 0; i < n; i++ {
		position := r3.Vector{
			X: uniform(r, w.Bounds.Min.X, w.Bounds.Max.X),
			Y: uniform(r, w.Bounds.Min.Y, w.Bounds.Max.Y),
			Z: uniform(r, w.Bounds.Min.Z, w.Bounds.Max.Z),
		}

		direction := r3.Vector{X: r.NormFloat64(), Y: r.NormFloat64(), Z: r.NormFloat64()}
		velocity := r3.Vector{}
		if direction.Norm2() > 0 {
			velocity = direction.Normalize().Mul(r.Float64() * maxSpeed)
		}

		if _, err := w.Spawn(position, velocity); err != nil {
			return err
		}
	}
	return nil
}

// Despawn removes the particle with the given index. Its index may be reused
// by a subsequent spawn.
func (w *World) Despawn(index int) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if !w.isAlive(index) {
		return errParticleNotFound(w.Name, index)
	}

	w.alive[index] = false
	w.count--
	w.indexes.Reuse(index)
	instrumentParticles(w.Name, w.count)
	return nil
}

func (w *World) Particle(index int) (Particle, error) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	if !w.isAlive(index) {
		return Particle{}, errParticleNotFound(w.Name, index)
	}
	return w.particles[index], nil
}

// Len returns the number of particles in the world.
func (w *World) Len() int {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return w.count
}

// Ticks returns the number of steps the world went through.
func (w *World) Ticks() uint64 {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return w.ticks
}

// Step moves every particle along its velocity for dt and returns the new
// tick. Particles crossing a wall are reflected back inside with their
// velocity reversed along the wall normal.
func (w *World) Step(dt float64) uint64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	for i := range w.particles {
		if !w.alive[i] {
			continue
		}

		p := &w.particles[i]
		next := p.Position.Add(p.Velocity.Mul(dt))
		next.X, p.Velocity.X = reflect(next.X, p.Velocity.X, w.Bounds.Min.X, w.Bounds.Max.X)
		next.Y, p.Velocity.Y = reflect(next.Y, p.Velocity.Y, w.Bounds.Min.Y, w.Bounds.Max.Y)
		next.Z, p.Velocity.Z = reflect(next.Z, p.Velocity.Z, w.Bounds.Min.Z, w.Bounds.Max.Z)
		p.Position = next
	}

	w.ticks++
	instrumentTick(w.Name)
	return w.ticks
}

// Batch returns the positions of the particles ordered by index.
func (w *World) Batch() []kdtree.Point {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	points := make([]kdtree.Point, 0, w.count)
	for i, p := range w.particles {
		if w.alive[i] {
			points = append(points, p.Point())
		}
	}
	return points
}

// Particles returns the particles ordered by index.
func (w *World) Particles() []Particle {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	particles := make([]Particle, 0, w.count)
	for i, p := range w.particles {
		if w.alive[i] {
			particles = append(particles, p)
		}
	}
	return particles
}

func (w *World) isAlive(index int) bool {
	return index >= 0 && index < len(w.alive) && w.alive[index]
}

// reflect folds x back into [lo, hi] as if it bounced off the walls, and
// reverses v when the number of bounces is odd.
func reflect(x, v, lo, hi float64) (float64, float64) {
	if lo == hi {
		return lo, 0
	}
	if math.IsNaN(x) {
		return lo, 0
	}
	if math.IsInf(x, 0) {
		return math.Max(lo, math.Min(hi, x)), 0
	}
	if x >= lo && x <= hi {
		return x, v
	}

	w := hi - lo
	m := math.Mod(x-lo, 2*w)
	if m < 0 {
		m += 2 * w
	}

	if m > w {
		x = lo + 2*w - m
		v = -v
	} else {
		x = lo + m
	}
	return math.Max(lo, math.Min(hi, x)), v
}

func uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

func errParticleNotFound(world string, index int) error {
	return errors.New("particle not found").
		WithType(ErrTypeParticleNotFound).
		WithTag("world", world).
		WithTag("index", index)
}
