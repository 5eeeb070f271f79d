// Command slipclient is the game client. Runs headless with scripted
// movement by default; -view attaches a terminal spectator with keyboard
// control.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/andersfylling/slipstream/internal/client"
	"github.com/andersfylling/slipstream/internal/config"
	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/view"
)

// Version is set at build time.
var Version = "dev"

// walker cycles through the cardinal directions, holding each for a while.
// It gives a headless client something to do.
type walker struct {
	start time.Time
}

func (w *walker) Poll() protocol.InputVector {
	var v protocol.InputVector
	phase := int(time.Since(w.start)/(2*time.Second)) % 4
	switch phase {
	case 0:
		v[protocol.XUp] = protocol.Pressed
	case 1:
		v[protocol.YUp] = protocol.Pressed
	case 2:
		v[protocol.XDown] = protocol.Pressed
	case 3:
		v[protocol.YDown] = protocol.Pressed
	}
	return v
}

func main() {
	withView := flag.Bool("view", false, "render the world in the terminal")
	flag.Parse()

	logOut := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	log := zerolog.New(logOut).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading config failed")
	}

	var (
		source   client.InputSource = &walker{start: time.Now()}
		terminal *view.View
	)
	if *withView {
		terminal = view.New()
		if err := terminal.Init(); err != nil {
			log.Fatal().Err(err).Msg("initializing terminal failed")
		}
		defer terminal.Close()
		source = terminal

		// The terminal owns stderr now; keep logs out of it.
		logFile, err := os.Create("slipclient.log")
		if err == nil {
			log = zerolog.New(logFile).With().Timestamp().Logger()
			defer logFile.Close()
		}
	}

	log.Info().
		Str("version", Version).
		Str("server", cfg.ServerAddr).
		Bool("offline", cfg.RunOffline).
		Msg("slipclient starting")

	simulation := client.NewSim(cfg, source, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simulation.OnConnectionError(func(connectionError client.ConnectionError) {
		log.Info().Stringer("type", connectionError.Type).Msg("connection error")
		stop()
	})
	simulation.Connect()

	if terminal != nil {
		// Rendering runs on the sim task; the world is only safe to read
		// there.
		simulation.OnFrame(func(alpha float64) {
			if terminal.QuitRequested() {
				stop()
				return
			}
			terminal.Render(simulation.World(), simulation.PlayerEntity(),
				simulation.CurrentTick(), simulation.State().String(), alpha)
		})
	}

	simulation.Run(ctx)
	log.Info().Msg("shutting down")
}
