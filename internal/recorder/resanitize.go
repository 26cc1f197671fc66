package recorder

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/audiolibrelab/gazecapture/internal/artifact"
	"github.com/audiolibrelab/gazecapture/internal/timestamps"
)

// Resanitize re-runs s over the world timestamps of a finalized attempt.
// The series is only rewritten when the repair changes it. The replaced
// series is kept as PreviousStampFile.
func Resanitize(dir string, s timestamps.Sanitizer) (timestamps.Result, bool, error) {
	path := filepath.Join(dir, WorldTimestampsFile)
	series, err := artifact.ReadSeries(path)
	if err != nil {
		return timestamps.Result{}, false, fmt.Errorf("failed to read timestamps: %w", err)
	}

	res := s.Sanitize(series)
	if slices.Equal(res.Series, series) {
		return res, false, nil
	}

	err = artifact.ReplaceFile(filepath.Join(dir, PreviousStampFile), func(tmp string) error {
		return artifact.CopyFile(path, tmp)
	})
	if err != nil {
		return res, false, err
	}

	err = artifact.ReplaceFile(path, func(tmp string) error {
		return artifact.WriteSeries(tmp, res.Series)
	})
	if err != nil {
		return res, false, err
	}
	return res, true, nil
}
