package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devskill-org/gridplan/planner"
	"github.com/devskill-org/gridplan/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Solve in the background and serve results and charts over HTTP",
	Long: `Solves the base network once, or every solving.interval, and serves the
latest results on /api/health, /api/results and /api/plots/{name}. Planner
events are pushed to websocket clients on /api/ws.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			config.Server.Addr = serveAddr
		}
		if config.Server.Addr == "" {
			return fmt.Errorf("server address is empty, set server.addr or --addr")
		}

		ctx, cancel := signalContext()
		defer cancel()

		p, release, err := newPlanner(ctx)
		if err != nil {
			return err
		}
		defer release()

		hs := server.NewWebServer(p, config.Server.Addr, logger)
		p.Subscribe(func(e planner.Event) { hs.Publish(e) })
		if err := hs.Start(); err != nil {
			return err
		}

		p.Start(ctx)
		logger.Info("Planner started. Press Ctrl+C to stop...", zap.String("addr", hs.Addr()))

		<-ctx.Done()
		logger.Info("Shutdown signal received, stopping...")

		p.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := hs.Stop(shutdownCtx); err != nil {
			logger.Warn("Web server shutdown error", zap.Error(err))
		}

		logger.Info("Stopped successfully")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address, e.g. :8080 (overrides server.addr)")
}
