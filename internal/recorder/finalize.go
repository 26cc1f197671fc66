package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/audiolibrelab/gazecapture/internal/artifact"
	"github.com/audiolibrelab/gazecapture/internal/hostinfo"
	"github.com/audiolibrelab/gazecapture/internal/source"
	"github.com/audiolibrelab/gazecapture/internal/timestamps"
)

// Handover carries everything the recorder accumulated for one attempt. The
// finalizer owns the slices once it receives them.
type Handover struct {
	Attempt    Attempt
	Pupil      []source.PupilDatum
	Gaze       []source.GazeDatum
	Timestamps []float64
	Duration   time.Duration
	UserInfo   map[string]string
}

// Report lists what finalization produced.
type Report struct {
	Written  []string `json:"written"`
	Skipped  []string `json:"skipped"`
	Failed   []string `json:"failed"`
	Warnings []error  `json:"-"`

	TimestampRuns      int  `json:"timestamp_runs"`
	TimestampsRepaired bool `json:"timestamps_repaired"`
}

// PupilData is the combined event object stored in pupil_data.
type PupilData struct {
	PupilPositions []source.PupilDatum `json:"pupil_positions"`
	GazePositions  []source.GazeDatum  `json:"gaze_positions"`
}

// Finalizer persists an attempt once recording has stopped.
type Finalizer struct {
	UserDir   string
	Version   string
	Binocular bool
	Host      hostinfo.Provider
	Sanitizer timestamps.Sanitizer
	Logger    *slog.Logger
}

func (f *Finalizer) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Finalize writes the required artifacts, then every optional artifact it
// can. The returned error is non-nil only when a required artifact failed;
// optional failures are logged and listed in the report.
func (f *Finalizer) Finalize(ctx context.Context, h Handover) (Report, error) {
	var report Report
	dir := h.Attempt.Path

	required := []struct {
		name  string
		write func(path string) error
	}{
		{PupilDataFile, func(path string) error {
			data := PupilData{PupilPositions: h.Pupil, GazePositions: h.Gaze}
			if data.PupilPositions == nil {
				data.PupilPositions = []source.PupilDatum{}
			}
			if data.GazePositions == nil {
				data.GazePositions = []source.GazeDatum{}
			}
			return artifact.WriteObject(path, data)
		}},
		{GazePositionsFile, func(path string) error {
			return artifact.WriteMatrix(path, gazeMatrix(h.Gaze))
		}},
		{PupilPositionsFile, func(path string) error {
			return artifact.WriteMatrix(path, pupilMatrix(h.Pupil))
		}},
		{WorldTimestampsFile, func(path string) error {
			res := f.Sanitizer.Sanitize(h.Timestamps)
			report.TimestampRuns = res.Runs
			report.TimestampsRepaired = res.Converged
			if !res.Converged {
				incomplete := &TimestampRepairIncomplete{Runs: res.Runs}
				f.logger().Warn("Persisting best-effort timestamps", "path", path, "error", incomplete)
				report.Warnings = append(report.Warnings, incomplete)
			}
			return artifact.WriteSeries(path, res.Series)
		}},
	}

	errs := make([]error, len(required))
	var g errgroup.Group
	for i, step := range required {
		i, step := i, step
		g.Go(func() error {
			if err := step.write(filepath.Join(dir, step.name)); err != nil {
				errs[i] = fmt.Errorf("%s: %w", step.name, err)
			}
			return nil
		})
	}
	g.Wait()

	for i, step := range required {
		if errs[i] != nil {
			f.logger().Error("Failed to write required artifact", "artifact", step.name, "error", errs[i])
			report.Failed = append(report.Failed, step.name)
		} else {
			report.Written = append(report.Written, step.name)
		}
	}

	optional := []struct {
		name string
		run  func() ([]string, error)
		// level used when the step is skipped
		level slog.Level
		hint  string
	}{
		{SurfaceDefsFile, func() ([]string, error) {
			return f.copyFromUserDir(dir, SurfaceDefsFile)
		}, slog.LevelInfo, "No surface_definitions data found. You may want this if you do marker tracking."},
		{CalibrationFile, func() ([]string, error) {
			return f.copyFromUserDir(dir, CalibrationFile)
		}, slog.LevelWarn, "No calibration data found. Please calibrate first."},
		{"camera intrinsics", func() ([]string, error) {
			return f.copyFromUserDir(dir, CameraMatrixFile, DistortionCoefsFile)
		}, slog.LevelInfo, "No camera intrinsics found."},
		{"metadata trailer", func() ([]string, error) {
			return f.writeTrailer(h)
		}, slog.LevelError, "Could not save metadata."},
		{UserInfoFile, func() ([]string, error) {
			return writeUserInfo(filepath.Join(dir, UserInfoFile), h.UserInfo)
		}, slog.LevelError, "Could not save user info."},
	}

	for _, step := range optional {
		written, err := step.run()
		if err != nil {
			skipped := &OptionalArtifactError{Artifact: step.name, Err: err}
			f.logger().Log(ctx, step.level, step.hint, "artifact", step.name, "error", err)
			report.Skipped = append(report.Skipped, step.name)
			report.Warnings = append(report.Warnings, skipped)
			continue
		}
		report.Written = append(report.Written, written...)
	}

	return report, errors.Join(errs...)
}

// copyFromUserDir copies names from the user directory as a unit: when any
// of them is missing none is copied.
func (f *Finalizer) copyFromUserDir(dir string, names ...string) ([]string, error) {
	if f.UserDir == "" {
		return nil, errors.New("no user directory configured")
	}
	for _, name := range names {
		if src := filepath.Join(f.UserDir, name); !artifact.Exists(src) {
			return nil, fmt.Errorf("%s not found", src)
		}
	}

	var copied []string
	for _, name := range names {
		if err := artifact.CopyFile(filepath.Join(f.UserDir, name), filepath.Join(dir, name)); err != nil {
			for _, done := range copied {
				os.Remove(filepath.Join(dir, done))
			}
			return nil, err
		}
		copied = append(copied, name)
	}
	return copied, nil
}

func (f *Finalizer) writeTrailer(h Handover) ([]string, error) {
	if f.Host == nil {
		return nil, errors.New("no host identity provider")
	}
	host, err := f.Host.Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to collect host identity: %w", err)
	}

	t := trailer{
		Duration:  h.Duration,
		Binocular: f.Binocular,
		Frames:    h.Attempt.Frames,
		Width:     h.Attempt.FrameWidth,
		Height:    h.Attempt.FrameHeight,
		Version:   f.Version,
		Host:      host,
	}
	if err := artifact.AppendFields(filepath.Join(h.Attempt.Path, InfoFile), t.record()); err != nil {
		return nil, err
	}
	return nil, nil
}

func writeUserInfo(path string, info map[string]string) ([]string, error) {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]artifact.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, artifact.Field{Key: k, Value: info[k]})
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := artifact.AppendFields(path, fields); err != nil {
		return nil, err
	}
	return []string{filepath.Base(path)}, nil
}

func pupilMatrix(data []source.PupilDatum) artifact.Matrix {
	rows := make([][]float64, len(data))
	for i, p := range data {
		rows[i] = []float64{p.Timestamp, p.Confidence, float64(p.ID), p.NormPos[0], p.NormPos[1], p.Diameter}
	}
	return artifact.Matrix{Columns: artifact.PupilColumns, Rows: rows}
}

func gazeMatrix(data []source.GazeDatum) artifact.Matrix {
	rows := make([][]float64, len(data))
	for i, g := range data {
		rows[i] = []float64{g.Timestamp, g.Confidence, g.NormPos[0], g.NormPos[1]}
	}
	return artifact.Matrix{Columns: artifact.GazeColumns, Rows: rows}
}
