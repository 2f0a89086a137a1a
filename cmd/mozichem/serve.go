package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/sinagilassi/mozichem-ai/internal/api"
	"github.com/sinagilassi/mozichem-ai/internal/connwatch"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Start the API server and web console",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "address", Usage: "override listen.address"},
		&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "override listen.port"},
		&cli.StringFlag{Name: "ui-dir", Usage: "serve a custom UI from this directory at /ui/"},
		&cli.BoolFlag{Name: "lazy", Usage: "wait for /agent-initialization instead of building the agent at startup"},
	},
	Action: serveAction,
}

// serveAction runs until SIGINT/SIGTERM cancels ctx or a client calls
// /config/exit. In-flight requests drain before stores are closed.
func serveAction(ctx context.Context, cmd *cli.Command) error {
	svc, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			svc.logger.Warn("shutdown cleanup failed", "error", err)
		}
	}()

	cfg := svc.cfg
	opts := api.Options{
		Address:     cfg.Listen.Address,
		Port:        cfg.Listen.Port,
		CORSOrigins: cfg.CORSOrigins,
		UIDir:       cfg.UIDir,
	}
	if v := cmd.String("address"); v != "" {
		opts.Address = v
	}
	if v := cmd.Int("port"); v > 0 {
		opts.Port = int(v)
	}
	if v := cmd.String("ui-dir"); v != "" {
		opts.UIDir = v
	}

	lazy := cmd.Bool("lazy")
	if !lazy {
		// A failed build is not fatal; the console can fix the
		// configuration through /agent-config.
		if err := svc.manager.Initialize(ctx); err != nil {
			svc.logger.Error("agent initialization failed", "error", err)
		}
	}

	// Watch the model provider so an agent that could not be built at
	// startup (e.g. Ollama not running yet) is built once it comes up.
	watch := connwatch.NewGroup(svc.logger)
	defer watch.Stop()
	// CheckProvider follows the current state, so the watcher survives
	// provider changes made through /agent-config.
	if _, err := watch.Watch(ctx, connwatch.Spec{
		Name:  "model_provider",
		Check: svc.manager.CheckProvider,
		OnUp: func() {
			if lazy {
				return
			}
			if err := svc.manager.EnsureAgent(ctx); err != nil {
				svc.logger.Error("agent initialization failed", "error", err)
			}
		},
	}); err != nil {
		return err
	}

	srv := api.NewServer(opts, svc.manager, svc.handler, svc.logger)
	if svc.usage != nil {
		srv.SetUsage(svc.usage)
	}
	srv.SetServiceStatus(watch.Status)
	svc.logger.Info("web console available", "url", fmt.Sprintf("http://%s:%d/ui/", opts.Address, opts.Port))

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	svc.logger.Info("MoziChem stopped")
	return nil
}
