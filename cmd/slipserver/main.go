// Command slipserver is the dedicated authoritative server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/andersfylling/slipstream/internal/config"
	"github.com/andersfylling/slipstream/internal/server"
	"github.com/andersfylling/slipstream/internal/sim"
	"github.com/andersfylling/slipstream/internal/tilemap"
)

// Version is set at build time.
var Version = "dev"

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading config failed")
	}

	log.Info().
		Str("version", Version).
		Str("listen", cfg.ListenAddr).
		Int("simTickRate", cfg.SimTickRate).
		Int("networkTickRate", cfg.NetworkTickRate).
		Msg("slipserver starting")

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	world := sim.NewWorld(tilemap.New(cfg.MapWidth, cfg.MapHeight))
	network := server.NewNetwork(cfg, log)
	simulation := server.NewSim(cfg, world, network, log)

	if err := network.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting network failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simulation.Run(ctx)

	log.Info().Msg("shutting down")
	network.Stop()
}
