package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cassette/internal/server"
	"github.com/desertthunder/cassette/internal/shared"
)

// Serve runs the engine without a terminal UI. Playback is driven through the control API
// and state changes stream over the websocket until SIGINT or SIGTERM.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf := r.config.Server
	if h := cmd.String("host"); h != "" {
		conf.Host = h
	}
	if cmd.IsSet("port") {
		conf.Port = int(cmd.Int("port"))
	}

	eng, err := r.openEngine(ctx, nil)
	if err != nil {
		return err
	}
	defer eng.Close()

	if !cmd.Bool("fresh") && eng.controller.Restore(ctx) {
		r.logger.Info("restored last session")
	}
	eng.start(ctx, r.config.Playback.ProgressTick())

	logger := shared.WithLogger(r.logger, "component", "server")
	srv := server.New(conf,
		server.NewControlHandler(eng.controller, eng.likes, logger),
		server.NewEventStream(eng.bus, logger),
		logger,
	)
	r.logger.Info("control API listening", "addr", srv.Addr())
	return srv.Run(ctx)
}
