package recorder

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/audiolibrelab/gazecapture/internal/artifact"
	"github.com/audiolibrelab/gazecapture/internal/timestamps"
)

func writeStamps(t *testing.T, series []float64) string {
	t.Helper()
	dir := t.TempDir()
	if err := artifact.WriteSeries(filepath.Join(dir, WorldTimestampsFile), series); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestResanitize_CleanSeriesUntouched(t *testing.T) {
	dir := writeStamps(t, []float64{0, 1, 2, 3})

	res, changed, err := Resanitize(dir, timestamps.Sanitizer{})
	if err != nil {
		t.Fatalf("Resanitize failed: %v", err)
	}
	if changed || !res.Converged {
		t.Errorf("expected no change, got changed=%v result=%+v", changed, res)
	}
	if artifact.Exists(filepath.Join(dir, PreviousStampFile)) {
		t.Error("backup written for a clean series")
	}
}

func TestResanitize_RewritesAndKeepsOriginal(t *testing.T) {
	original := []float64{0, 1, 0.9, 2, 3}
	dir := writeStamps(t, original)
	if err := artifact.Seal(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(filepath.Join(dir, WorldTimestampsFile), 0644) })

	res, changed, err := Resanitize(dir, timestamps.Sanitizer{})
	if err != nil {
		t.Fatalf("Resanitize failed: %v", err)
	}
	if !changed {
		t.Fatal("expected series to be rewritten")
	}

	got, err := artifact.ReadSeries(filepath.Join(dir, WorldTimestampsFile))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, res.Series) || !slices.IsSorted(got) {
		t.Errorf("unexpected rewritten series %v", got)
	}

	backup, err := artifact.ReadSeries(filepath.Join(dir, PreviousStampFile))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(backup, original) {
		t.Errorf("backup = %v, want %v", backup, original)
	}

	// a second pass finds nothing left to repair
	if _, changed, err := Resanitize(dir, timestamps.Sanitizer{}); err != nil || changed {
		t.Errorf("second pass: changed=%v err=%v", changed, err)
	}
}

func TestResanitize_BackupFollowsEachRewrite(t *testing.T) {
	dir := writeStamps(t, []float64{0, 1, 0.9, 2, 3})
	if _, changed, err := Resanitize(dir, timestamps.Sanitizer{}); err != nil || !changed {
		t.Fatalf("first pass: changed=%v err=%v", changed, err)
	}

	// the file is replaced by another faulty series before the next pass
	stored := []float64{0, 1, 2, 1.9, 3, 4}
	if err := artifact.ReplaceFile(filepath.Join(dir, WorldTimestampsFile), func(tmp string) error {
		return artifact.WriteSeries(tmp, stored)
	}); err != nil {
		t.Fatal(err)
	}

	if _, changed, err := Resanitize(dir, timestamps.Sanitizer{}); err != nil || !changed {
		t.Fatalf("second pass: changed=%v err=%v", changed, err)
	}
	backup, err := artifact.ReadSeries(filepath.Join(dir, PreviousStampFile))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(backup, stored) {
		t.Errorf("backup = %v, want the series replaced by the last rewrite %v", backup, stored)
	}
}

func TestResanitize_MissingFile(t *testing.T) {
	if _, _, err := Resanitize(t.TempDir(), timestamps.Sanitizer{}); err == nil {
		t.Error("expected error for missing timestamps")
	}
}
