package storage

import (
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/argus-labs/stash/pkg/performance"
)

// worldConfig holds the environment-backed defaults for a world.
type worldConfig struct {
	// EntityCapacity is the initial number of entity slots.
	EntityCapacity int `env:"STASH_ENTITY_CAPACITY" envDefault:"1024"`

	// ComponentCapacity is the initial number of value slots of each stash.
	ComponentCapacity int `env:"STASH_COMPONENT_CAPACITY" envDefault:"64"`

	// ArchetypeWarmup is the number of archetypes allocated into the pool up front.
	ArchetypeWarmup int `env:"STASH_ARCHETYPE_WARMUP" envDefault:"32"`

	// WorldTag is packed into every handle the world issues.
	WorldTag uint8 `env:"STASH_WORLD_TAG" envDefault:"0"`

	// ThreadSafety enables the goroutine affinity check on mutating operations.
	ThreadSafety bool `env:"STASH_THREAD_SAFETY" envDefault:"true"`
}

// loadWorldConfig loads the world configuration from environment variables.
func loadWorldConfig() (worldConfig, error) {
	cfg := worldConfig{}

	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse world config")
	}

	return cfg, nil
}

func (cfg *worldConfig) toOptions() WorldOptions {
	return WorldOptions{
		EntityCapacity:      cfg.EntityCapacity,
		ComponentCapacity:   cfg.ComponentCapacity,
		ArchetypeWarmup:     cfg.ArchetypeWarmup,
		Tag:                 cfg.WorldTag,
		DisableThreadSafety: !cfg.ThreadSafety,
	}
}

// WorldOptions configures NewWorld. Zero values keep the environment or default value.
type WorldOptions struct {
	EntityCapacity      int
	ComponentCapacity   int
	ArchetypeWarmup     int
	Tag                 uint8
	DisableThreadSafety bool

	Logger    *zerolog.Logger       // Defaults to the global console logger
	Tracer    trace.Tracer          // Defaults to a noop tracer
	Collector *performance.Collector // Optional commit phase timeline
}

func newDefaultWorldOptions() WorldOptions {
	return WorldOptions{
		EntityCapacity:    1024,
		ComponentCapacity: 64,
		ArchetypeWarmup:   32,
	}
}

// apply merges the given options into the current options, overriding non-zero values.
func (opt *WorldOptions) apply(newOpt WorldOptions) {
	if newOpt.EntityCapacity != 0 {
		opt.EntityCapacity = newOpt.EntityCapacity
	}
	if newOpt.ComponentCapacity != 0 {
		opt.ComponentCapacity = newOpt.ComponentCapacity
	}
	if newOpt.ArchetypeWarmup != 0 {
		opt.ArchetypeWarmup = newOpt.ArchetypeWarmup
	}
	if newOpt.Tag != 0 {
		opt.Tag = newOpt.Tag
	}
	if newOpt.DisableThreadSafety {
		opt.DisableThreadSafety = true
	}
	if newOpt.Logger != nil {
		opt.Logger = newOpt.Logger
	}
	if newOpt.Tracer != nil {
		opt.Tracer = newOpt.Tracer
	}
	if newOpt.Collector != nil {
		opt.Collector = newOpt.Collector
	}
}

// validate checks that all options are within range.
func (opt *WorldOptions) validate() error {
	if opt.EntityCapacity <= 0 {
		return eris.New("entity capacity must be positive")
	}
	if opt.ComponentCapacity <= 0 {
		return eris.New("component capacity must be positive")
	}
	if opt.ArchetypeWarmup < 0 {
		return eris.New("archetype warmup cannot be negative")
	}
	return nil
}
