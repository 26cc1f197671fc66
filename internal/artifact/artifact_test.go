package artifact

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteMatrix_PupilRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pupil_positions.arrow")
	rows := [][]float64{
		{0.1, 0.9, 0, 0.5, 0.4, 42},
		{0.2, 0.8, 1, 0.6, 0.3, 41.5},
	}

	if err := WriteMatrix(path, Matrix{Columns: PupilColumns, Rows: rows}); err != nil {
		t.Fatalf("WriteMatrix failed: %v", err)
	}

	m, err := ReadMatrix(path)
	if err != nil {
		t.Fatalf("ReadMatrix failed: %v", err)
	}
	if len(m.Columns) != len(PupilColumns) || m.Columns[5] != "diameter" {
		t.Errorf("unexpected columns %v", m.Columns)
	}
	if len(m.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(m.Rows))
	}
	if m.Rows[1][5] != 41.5 || m.Rows[0][2] != 0 {
		t.Errorf("unexpected values %v", m.Rows)
	}
}

func TestWriteMatrix_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gaze_positions.arrow")

	if err := WriteMatrix(path, Matrix{Columns: GazeColumns}); err != nil {
		t.Fatalf("WriteMatrix failed: %v", err)
	}
	if !Exists(path) {
		t.Fatal("expected file to exist")
	}

	m, err := ReadMatrix(path)
	if err != nil {
		t.Fatalf("ReadMatrix failed: %v", err)
	}
	if len(m.Rows) != 0 {
		t.Errorf("expected zero rows, got %d", len(m.Rows))
	}
	if len(m.Columns) != len(GazeColumns) {
		t.Errorf("expected schema to be kept, got %v", m.Columns)
	}
}

func TestWriteMatrix_RaggedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.arrow")
	err := WriteMatrix(path, Matrix{Columns: GazeColumns, Rows: [][]float64{{1, 2}}})
	if err == nil {
		t.Fatal("expected error for short row")
	}
}

func TestSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world_timestamps.arrow")
	series := []float64{0, 0.033, 0.066}

	if err := WriteSeries(path, series); err != nil {
		t.Fatalf("WriteSeries failed: %v", err)
	}
	got, err := ReadSeries(path)
	if err != nil {
		t.Fatalf("ReadSeries failed: %v", err)
	}
	if len(got) != 3 || got[2] != 0.066 {
		t.Errorf("unexpected series %v", got)
	}
}

func TestFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "info.csv")

	if err := AppendFields(path, []Field{{"Recording Name", "2024_01_02"}, {"Start Time", "10:11:12"}}); err != nil {
		t.Fatalf("AppendFields failed: %v", err)
	}
	if err := AppendFields(path, []Field{{"Duration Time", "00:00:05"}}); err != nil {
		t.Fatalf("AppendFields failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "Recording Name\t2024_01_02\nStart Time\t10:11:12\nDuration Time\t00:00:05\n"
	if string(data) != want {
		t.Errorf("unexpected content:\n%q\nwant\n%q", data, want)
	}

	fields, err := ReadFields(path)
	if err != nil {
		t.Fatalf("ReadFields failed: %v", err)
	}
	if len(fields) != 3 || fields[2].Value != "00:00:05" {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestCopyFileAndExists(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "surface_definitions")
	dst := filepath.Join(dir, "copy")

	if Exists(src) {
		t.Fatal("expected missing file")
	}
	if err := os.WriteFile(src, []byte("surfaces"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "surfaces" {
		t.Errorf("unexpected copy %q", data)
	}
	if Exists(dir) {
		t.Error("directories should not count as files")
	}
}

func TestObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pupil_data")
	in := map[string][]int{"pupil_positions": {1, 2}, "gaze_positions": {}}

	if err := WriteObject(path, in); err != nil {
		t.Fatalf("WriteObject failed: %v", err)
	}
	var out map[string][]int
	if err := ReadObject(path, &out); err != nil {
		t.Fatalf("ReadObject failed: %v", err)
	}
	if len(out["pupil_positions"]) != 2 {
		t.Errorf("unexpected object %v", out)
	}
}

func TestSealAndReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world_timestamps.arrow")
	if err := WriteSeries(path, []float64{1, 2}); err != nil {
		t.Fatal(err)
	}

	if err := Seal(dir); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0222 != 0 {
		t.Errorf("expected read-only file, got %v", info.Mode())
	}

	err = ReplaceFile(path, func(tmp string) error {
		return WriteSeries(tmp, []float64{1, 2, 3})
	})
	if err != nil {
		t.Fatalf("ReplaceFile failed: %v", err)
	}
	got, err := ReadSeries(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("expected replaced series, got %v", got)
	}
}
