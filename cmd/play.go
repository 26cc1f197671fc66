package cmd

import (
	"fmt"

	"github.com/audiolibrelab/gazecapture/internal/play"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play <attempt-dir>",
	Short: "Play back the world video of an attempt",
	Long: `Open the world video of an attempt in mpv, vlc or ffplay (first one found).
The world audio is played along when the player supports a separate audio file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := play.New().Play(args[0]); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		return executePipeline(cmd.Context(), args[0], 'p')
	},
}
