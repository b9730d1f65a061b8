package commands

import (
	"context"
	"maps"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/typewell/typewell/config"
	"github.com/typewell/typewell/logger"
	"github.com/typewell/typewell/server"
	"github.com/typewell/typewell/service"
)

// ServeCmd starts the typewell query server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the WebSocket query server",
	Long: `Launch the typewell server. Clients connect over WebSocket, open documents,
and issue hover, completion and diagnostics requests. Declaration files are
acquired lazily as documents reference them.`,
	RunE: runServe,
}

var servePort int

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	svc := service.New(cfg, nil, nil, logger.Logger)
	srv := server.NewServer(cfg.Server, svc.Proxy, svc.Overlay, logger.Logger)

	// Rebuild the pipeline when the project config changes version pins.
	// Pins are baked into a service at construction; the shared overlay
	// keeps client documents across the swap.
	if configPath := config.ProjectConfigPath(); configPath != "" {
		watcher, err := config.NewConfigWatcher(configPath)
		if err != nil {
			logger.Warnw("config watch unavailable", "path", configPath, "error", err)
		} else {
			currentPins := cfg.Pins
			watcher.OnReload(func(newCfg *config.Config) error {
				if maps.Equal(newCfg.Pins, currentPins) {
					return nil
				}
				logger.Infow("version pins changed, rebuilding acquisition pipeline",
					"pins", len(newCfg.Pins))
				fresh := service.New(newCfg, svc.Overlay, nil, logger.Logger)
				srv.SetService(fresh.Proxy)
				currentPins = newCfg.Pins
				return nil
			})
			watcher.Start()
			defer func() {
				_ = watcher.Stop()
			}()
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
