package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/gazecapture/internal/recorder"
	"github.com/audiolibrelab/gazecapture/internal/service"
	"github.com/audiolibrelab/gazecapture/internal/source"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [session-name]",
	Short: "Record one attempt from the world camera",
	Long: `Record a single attempt into <recordings_directory>/<session>/<NNN>.
Recording runs until Ctrl+C (or --duration elapses), then the attempt is finalized:
timestamps are sanitized and pupil, gaze and info files are written.

Without a session name the configured one is used (today's date when unset).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			cfg.SetSessionName(args[0])
		}
		duration, _ := cmd.Flags().GetDuration("duration")
		if audioSource, _ := cmd.Flags().GetString("audio"); audioSource != "" {
			cfg.AudioSource = audioSource
		}

		slog.Info("Record command started", "session", cfg.SessionName, "recordings", cfg.RecordingsDirectory)

		svc, err := service.New(cfg, service.Options{Version: version})
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close(context.Background())

		// Handle interruption
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, duration)
			defer cancel()
		}

		attempt, err := svc.Start(ctx)
		if err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		fmt.Println(accentStyle.Render("● REC ") + titleStyle.Render(attempt.Path))

		src := source.NewSynthetic(cfg.Frame.Width, cfg.Frame.Height, cfg.Frame.Rate, cfg.Frame.JPEG)
		captureErr := make(chan error, 1)
		go func() { captureErr <- svc.Capture(ctx, src) }()

		waitWithStatus(ctx, svc, captureErr)

		slog.Info("Stopping recording...")
		summary, err := svc.Stop(context.Background())
		if err != nil {
			return fmt.Errorf("failed to stop recording: %w", err)
		}
		printSummary(summary)
		return executePipeline(context.Background(), summary.Attempt.Path, 'r')
	},
}

// waitWithStatus renders a spinner with the elapsed time and frame count
// until ctx is done or the capture ends on its own.
func waitWithStatus(ctx context.Context, svc service.Service, captureErr <-chan error) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetDescription("recording"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Finish()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-captureErr:
			if err != nil {
				slog.Error("Capture stopped", "error", err)
			}
			return
		case <-ticker.C:
			st := svc.Status()
			bar.Describe(fmt.Sprintf("%s  %d frames  %d dropped", st.Elapsed, st.Frames, st.Dropped))
			bar.Set(st.Frames)
		}
	}
}

func printSummary(s *recorder.Summary) {
	printSection("ATTEMPT SAVED")
	printField("Path", s.Attempt.Path)
	printField("Duration", recorder.FormatElapsed(s.Duration))
	printField("Frames", fmt.Sprint(s.Attempt.Frames))
	if s.Dropped > 0 {
		printField("Dropped frames", fmt.Sprint(s.Dropped))
	}
	for _, name := range s.Report.Skipped {
		fmt.Println(mutedStyle.Render("  skipped " + name))
	}
	for _, w := range s.Report.Warnings {
		fmt.Println(errorStyle.Render("  ! ") + w.Error())
	}
	fmt.Println(successStyle.Render("  ✓ finalized"))
}

func init() {
	recordCmd.Flags().Duration("duration", 0, "stop automatically after this long (0 = until Ctrl+C)")
	recordCmd.Flags().String("audio", "", "audio source (overrides config, \"none\" disables audio)")
}
