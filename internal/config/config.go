// Package config loads engine configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/andersfylling/slipstream/internal/clock"
)

// Config holds every tunable of the engine. Defaults are playable out of
// the box on localhost.
type Config struct {
	// SimTickRate is the fixed simulation rate; it sets the fixed-step size.
	SimTickRate int `env:"SLIP_SIM_TICK_RATE" envDefault:"30"`
	// NetworkTickRate is how often batches and heartbeats are emitted.
	// Network ticks run every NetworkTickInterval sim ticks, the integer
	// quotient of the two rates, so when SimTickRate is not a multiple of
	// this rate the actual cadence is faster: the defaults of 30 and 20 give
	// a network tick on every sim tick.
	NetworkTickRate int `env:"SLIP_NETWORK_TICK_RATE" envDefault:"20"`

	// InitialTickOffset is how far ahead of the server a client starts. The
	// server walks it into the target band after the first few messages.
	InitialTickOffset int `env:"SLIP_INITIAL_TICK_OFFSET" envDefault:"5"`
	// InitialReplicationOffset is how far behind its own tick a client
	// replicates non-owned entities. Must be negative, and should be about
	// -2x the initial tick offset: setting ourselves ahead of the server
	// makes received data appear twice as far behind.
	InitialReplicationOffset int `env:"SLIP_INITIAL_REPLICATION_OFFSET" envDefault:"-10"`

	// MaxBatchSize bounds a single batch payload in bytes. Capped at 32767
	// by the 15-bit wire size field.
	MaxBatchSize int `env:"SLIP_MAX_BATCH_SIZE" envDefault:"16384"`
	// InputHistoryLength bounds the tolerated client-ahead lead in ticks.
	InputHistoryLength int `env:"SLIP_INPUT_HISTORY_LENGTH" envDefault:"20"`
	// InboxWindow is how many ticks ahead the server buffers client inputs.
	InboxWindow int `env:"SLIP_INBOX_WINDOW" envDefault:"10"`

	// AOIRadius is the per-client replication filter radius in world units.
	AOIRadius float64 `env:"SLIP_AOI_RADIUS" envDefault:"24"`

	// RunOffline makes the client mock the server and set up a local player
	// without connecting.
	RunOffline bool `env:"SLIP_RUN_OFFLINE" envDefault:"false"`

	ServerAddr string `env:"SLIP_SERVER_ADDR" envDefault:"127.0.0.1:41499"`
	ListenAddr string `env:"SLIP_LISTEN_ADDR" envDefault:":41499"`
	// MetricsAddr serves prometheus metrics when non-empty (server only).
	MetricsAddr string `env:"SLIP_METRICS_ADDR" envDefault:":9100"`

	MaxClients int `env:"SLIP_MAX_CLIENTS" envDefault:"100"`
	// AcceptRate limits new connections per second.
	AcceptRate float64 `env:"SLIP_ACCEPT_RATE" envDefault:"20"`

	MapWidth  int `env:"SLIP_MAP_WIDTH" envDefault:"64"`
	MapHeight int `env:"SLIP_MAP_HEIGHT" envDefault:"64"`

	PlayerName string `env:"SLIP_PLAYER_NAME" envDefault:"player"`

	// Tick-adjustment tuning; see clock.Tuning for the semantics of each.
	TickdiffHistoryLength int     `env:"SLIP_TICKDIFF_HISTORY_LENGTH" envDefault:"10"`
	TickdiffValidBound    int     `env:"SLIP_TICKDIFF_VALID_BOUND" envDefault:"10"`
	TickdiffBandLower     int     `env:"SLIP_TICKDIFF_BAND_LOWER" envDefault:"1"`
	TickdiffBandUpper     int     `env:"SLIP_TICKDIFF_BAND_UPPER" envDefault:"3"`
	TickdiffTarget        int     `env:"SLIP_TICKDIFF_TARGET" envDefault:"2"`
	TickdiffSpikeScale    float64 `env:"SLIP_TICKDIFF_SPIKE_SCALE" envDefault:"2"`
	TickdiffSpikeOffset   float64 `env:"SLIP_TICKDIFF_SPIKE_OFFSET" envDefault:"3"`
	TickdiffMaxStep       int     `env:"SLIP_TICKDIFF_MAX_STEP" envDefault:"2"`
}

// Load reads configuration from the environment. A missing .env file is
// fine; a malformed environment is not.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if cfg.SimTickRate <= 0 || cfg.NetworkTickRate <= 0 {
		return Config{}, errors.Errorf("tick rates must be positive, got sim=%d net=%d", cfg.SimTickRate, cfg.NetworkTickRate)
	}
	if cfg.NetworkTickRate > cfg.SimTickRate {
		return Config{}, errors.Errorf("network tick rate %d exceeds sim tick rate %d", cfg.NetworkTickRate, cfg.SimTickRate)
	}
	if cfg.InitialReplicationOffset >= 0 {
		return Config{}, errors.Errorf("initial replication offset must be negative, got %d", cfg.InitialReplicationOffset)
	}
	if cfg.InputHistoryLength <= cfg.InitialTickOffset {
		return Config{}, errors.Errorf("input history length %d must exceed the initial tick offset %d", cfg.InputHistoryLength, cfg.InitialTickOffset)
	}
	return cfg, nil
}

// SimTimestep is the fixed simulation step.
func (c Config) SimTimestep() time.Duration {
	return time.Second / time.Duration(c.SimTickRate)
}

// NetworkTimestep is the network tick interval.
func (c Config) NetworkTimestep() time.Duration {
	return time.Second / time.Duration(c.NetworkTickRate)
}

// NetworkTickInterval is the network tick cadence expressed in sim ticks.
func (c Config) NetworkTickInterval() int {
	interval := c.SimTickRate / c.NetworkTickRate
	if interval < 1 {
		interval = 1
	}
	return interval
}

// ClientTimeout is how long a peer may stay silent before it's declared
// disconnected: a small multiple of the network tick.
func (c Config) ClientTimeout() time.Duration {
	return 10 * c.NetworkTimestep()
}

// ConnectResponseTimeout is how long a connecting client waits for the
// server's ConnectionResponse.
func (c Config) ConnectResponseTimeout() time.Duration {
	return 5 * time.Second
}

// Tuning assembles the clock tuning constants.
func (c Config) Tuning() clock.Tuning {
	return clock.Tuning{
		HistoryLength:       c.TickdiffHistoryLength,
		LowestValidDiff:     int8(-c.TickdiffValidBound),
		HighestValidDiff:    int8(c.TickdiffValidBound),
		AcceptableBandLower: int8(c.TickdiffBandLower),
		AcceptableBandUpper: int8(c.TickdiffBandUpper),
		Target:              int8(c.TickdiffTarget),
		SpikeScale:          c.TickdiffSpikeScale,
		SpikeOffset:         c.TickdiffSpikeOffset,
		MaxStep:             int8(c.TickdiffMaxStep),
	}
}
