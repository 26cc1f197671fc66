package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/gazecapture/internal/server"
	"github.com/audiolibrelab/gazecapture/internal/service"
	"github.com/audiolibrelab/gazecapture/internal/source"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the GazeCapture web server to control recording over HTTP.
This allows starting and stopping attempts from a phone or any device on the same network.

The config file is watched and applied whenever no attempt is recording.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		svc, err := service.New(cfg, service.Options{Version: version})
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close(context.Background())

		src := source.NewSynthetic(cfg.Frame.Width, cfg.Frame.Height, cfg.Frame.Rate, cfg.Frame.JPEG)
		srv := server.New(svc, src, port)
		srv.WatchConfig(cfg)

		slog.Info("GazeCapture web server starting", "port", port, "config", cfg.Path())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server")
}
