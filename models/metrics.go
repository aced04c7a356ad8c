package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	worldLabel = "world"
)

var (
	worldParticles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "world_particles",
		Help: "The number of particles in a world.",
	}, []string{worldLabel})

	worldTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "world_ticks",
		Help: "The number of steps a world went through.",
	}, []string{worldLabel})
)

func instrumentParticles(world string, count int) {
	worldParticles.
		With(prometheus.Labels{worldLabel: world}).
		Set(float64(count))
}

func instrumentTick(world string) {
	worldTicks.
		With(prometheus.Labels{worldLabel: world}).
		Inc()
}
