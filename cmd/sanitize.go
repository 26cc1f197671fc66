package cmd

import (
	"fmt"

	"github.com/audiolibrelab/gazecapture/internal/recorder"
	"github.com/audiolibrelab/gazecapture/internal/timestamps"

	"github.com/spf13/cobra"
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize <attempt-dir>",
	Short: "Repair the world timestamps of a recorded attempt",
	Long: `Re-run the timestamp repair on world_timestamps.arrow of an attempt.
The file is rewritten only when the repair changes it. The replaced series is
kept as world_timestamps_previous.arrow.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := timestamps.Sanitizer{}
		s.Damper, _ = cmd.Flags().GetInt("damper")
		s.JumpThreshold, _ = cmd.Flags().GetFloat64("jump-threshold")
		s.MaxRuns, _ = cmd.Flags().GetInt("max-runs")

		res, changed, err := recorder.Resanitize(args[0], s)
		if err != nil {
			return err
		}

		switch {
		case !res.Converged:
			fmt.Println(errorStyle.Render("! ") + fmt.Sprintf("timestamps could not be fully repaired after %d runs", res.Runs))
		case changed:
			fmt.Println(successStyle.Render("✓ ") + fmt.Sprintf("repaired %d timestamps in %d runs", len(res.Series), res.Runs))
		default:
			fmt.Println(mutedStyle.Render("timestamps already clean, nothing written"))
		}
		return nil
	},
}

func init() {
	sanitizeCmd.Flags().Int("damper", timestamps.DefaultDamper, "samples distrusted around a fault")
	sanitizeCmd.Flags().Float64("jump-threshold", timestamps.DefaultJumpThreshold, "largest accepted forward step in seconds")
	sanitizeCmd.Flags().Int("max-runs", timestamps.DefaultMaxRuns, "refits attempted before giving up")
}
