package experiment

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/san-kum/gravnn/internal/config"
	"github.com/san-kum/gravnn/internal/dynamo"
	"github.com/san-kum/gravnn/internal/gravity"
)

type Registry struct {
	models map[string]func(config.DataConfig, uint64) gravity.Model
}

func NewRegistry() *Registry {
	r := &Registry{
		models: make(map[string]func(config.DataConfig, uint64) gravity.Model),
	}

	r.models["point_mass"] = func(d config.DataConfig, _ uint64) gravity.Model {
		return gravity.PointMass{Mu: d.Mu}
	}
	// Eight masses carrying a third of the total, well inside the sampled
	// shell so the field stays finite there.
	r.models["mascons"] = func(d config.DataConfig, seed uint64) gravity.Model {
		rng := rand.New(rand.NewPCG(seed, seed^0x5eed))
		return gravity.NewMascons(d.Mu, 0.5*d.RadiusMin, 1.0/3, 8, rng)
	}

	return r
}

func (r *Registry) GetModel(d config.DataConfig, seed uint64) (gravity.Model, error) {
	fn, ok := r.models[d.Model]
	if !ok {
		return nil, fmt.Errorf("unknown gravity model: %s", d.Model)
	}
	return fn(d, seed), nil
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TrajectoryFromConfig builds the orbit comparison described by cfg.Orbit.
func TrajectoryFromConfig(cfg *config.Config) TrajectoryConfig {
	sim := dynamo.DefaultConfig()
	sim.Dt = cfg.Orbit.Dt
	sim.Duration = cfg.Orbit.Duration
	return TrajectoryConfig{
		Integrator: cfg.Orbit.Integrator,
		Sim:        sim,
		Initial:    dynamo.Elliptic(cfg.Orbit.Radius, cfg.Orbit.Eccentricity, cfg.Data.Mu),
		MinRadius:  0.5 * cfg.Data.RadiusMin,
		MaxRadius:  10 * cfg.Data.RadiusMax,
	}
}
