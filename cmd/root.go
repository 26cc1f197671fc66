package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/audiolibrelab/gazecapture/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	pipeline     string
	verboseLevel int
	version      = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "gazecapture",
	Short: "World camera and gaze recorder",
	Long: `GazeCapture records the world camera of a head-mounted eye tracker together
with pupil and gaze events into numbered attempt directories.

Each attempt holds the encoded video, optional audio, per-frame timestamps,
pupil and gaze tables and an info.csv describing the recording.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		if err := validatePipeline(); err != nil {
			return err
		}

		// Commands working on a single attempt directory run without config,
		// unless one is given explicitly or an upload is chained
		standalone := cmd.Name() == "sanitize" || cmd.Name() == "info" || cmd.Name() == "play"
		if cfgFile == "" && standalone && !strings.ContainsRune(pipeline, 'u') {
			return nil
		}

		if cfgFile == "" {
			cfgFile = config.DefaultPath()
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		slog.Debug("Configuration loaded", "path", cfgFile, "recordings", cfg.RecordingsDirectory, "session", cfg.SessionName)
		return nil
	},
}

// Execute runs the root command. v is reported in info.csv.
func Execute(v string) {
	if v != "" {
		version = v
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/gazecapture.yaml)")
	rootCmd.PersistentFlags().StringVarP(&pipeline, "pipeline", "p", "", "steps to chain: r=record, u=upload, p=play (e.g., 'rup', 'up')")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=ffmpeg output")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(sanitizeCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))

	// Level 2 also lets ffmpeg talk
	if level >= 2 {
		os.Setenv("FFMPEG_LOGLEVEL", "debug")
	}
}
