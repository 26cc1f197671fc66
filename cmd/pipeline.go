package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/audiolibrelab/gazecapture/internal/play"
)

// Pipeline steps: r=record, u=upload, p=play.
var validSteps = map[rune]bool{
	'r': true,
	'u': true,
	'p': true,
}

// executePipeline runs the steps following startStep on the attempt in dir.
func executePipeline(ctx context.Context, dir string, startStep rune) error {
	if pipeline == "" {
		return nil
	}

	steps := []rune(strings.ToLower(pipeline))

	startIndex := -1
	for i, step := range steps {
		if step == startStep {
			startIndex = i
			break
		}
	}
	if startIndex == -1 {
		return fmt.Errorf("step '%c' not found in pipeline '%s'", startStep, pipeline)
	}

	for i := startIndex + 1; i < len(steps); i++ {
		step := steps[i]
		fmt.Println(mutedStyle.Render(fmt.Sprintf("Pipeline: executing step '%c'...", step)))

		switch step {
		case 'r':
			return fmt.Errorf("pipeline step 'r' must come first")

		case 'u':
			if err := uploadAttempt(ctx, dir, ""); err != nil {
				return fmt.Errorf("pipeline upload failed: %w", err)
			}

		case 'p':
			if err := play.New().Play(dir); err != nil {
				return fmt.Errorf("pipeline play failed: %w", err)
			}
		}
	}
	return nil
}

func validatePipeline() error {
	for _, step := range strings.ToLower(pipeline) {
		if !validSteps[step] {
			return fmt.Errorf("invalid pipeline step: '%c' (valid: r=record, u=upload, p=play)", step)
		}
	}
	return nil
}
