package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/gazecapture/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long:  `List the audio sources that can be used as audio_source, using the PipeWire backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend := audio.NewPipeWireBackend(cfg.AudioSampleRate)
		sources, err := backend.ListSources()
		if err != nil {
			return fmt.Errorf("failed to get PipeWire sources: %w", err)
		}

		fmt.Println(titleStyle.Render(fmt.Sprintf("Audio Sources (%s)", runtime.GOOS)))
		fmt.Println(mutedStyle.Render("═══════════════════════════════════════"))

		current := cfg.AudioSource
		mark := func(name string) string {
			if name == current {
				return successStyle.Render(" ← configured")
			}
			return ""
		}

		fmt.Printf("  0. %s%s\n", audio.None, mark(audio.None))
		for i, source := range sources {
			fmt.Printf("  %d. %s%s\n", i+1, source, mark(source))
		}

		fmt.Println()
		fmt.Println(mutedStyle.Render(`  Set with: audio_source: "Device: Audio (hw:1,0):capture_1"`))
		return nil
	},
}
