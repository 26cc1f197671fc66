package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/audiolibrelab/gazecapture/internal/artifact"
	"github.com/audiolibrelab/gazecapture/internal/recorder"
)

type object struct {
	body        string
	contentType string
	metadata    map[string]string
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]object
	failOn  string
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if key == f.failOn {
		return nil, errors.New("access denied")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string]object{}
	}
	f.objects[key] = object{
		body:        string(body),
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
	}
	return &s3.PutObjectOutput{}, nil
}

func writeAttempt(t *testing.T, root string) string {
	t.Helper()
	dir := filepath.Join(root, "pilot", "001")
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := artifact.WriteSeries(filepath.Join(dir, recorder.WorldTimestampsFile), []float64{0, 0.5, 1}); err != nil {
		t.Fatal(err)
	}
	err := artifact.AppendFields(filepath.Join(dir, recorder.InfoFile), []artifact.Field{
		{Key: "Recording Name", Value: "pilot"},
		{Key: "Recording UUID", Value: "0b9c1c5e-0000-4000-8000-000000000001"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, recorder.PupilDataFile), []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestUpload(t *testing.T) {
	root := t.TempDir()
	dir := writeAttempt(t, root)

	client := &fakeS3{}
	u := NewWithClient(client, Config{Bucket: "lab", Prefix: "/gaze/"})

	var seen []string
	var mu sync.Mutex
	u.OnFile = func(name string, size int64) {
		mu.Lock()
		seen = append(seen, name)
		mu.Unlock()
	}

	res, err := u.Upload(context.Background(), dir, KeyBase(root, dir))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	want := []string{
		"gaze/pilot/001/info.csv",
		"gaze/pilot/001/pupil_data",
		"gaze/pilot/001/world_timestamps.arrow",
	}
	if len(res.Keys) != len(want) {
		t.Fatalf("expected keys %v, got %v", want, res.Keys)
	}
	for i, k := range want {
		if res.Keys[i] != k {
			t.Errorf("key %d: expected %s, got %s", i, k, res.Keys[i])
		}
		if _, ok := client.objects[k]; !ok {
			t.Errorf("object %s not uploaded", k)
		}
	}
	if res.Bytes == 0 {
		t.Error("expected uploaded byte count")
	}

	sort.Strings(seen)
	if len(seen) != 3 {
		t.Errorf("expected 3 progress callbacks, got %v", seen)
	}

	info := client.objects["gaze/pilot/001/info.csv"]
	if info.contentType != "text/tab-separated-values" {
		t.Errorf("unexpected content type %q", info.contentType)
	}
	if info.metadata["recording-name"] != "pilot" || info.metadata["recording-uuid"] == "" {
		t.Errorf("unexpected metadata %v", info.metadata)
	}
	if got := client.objects["gaze/pilot/001/pupil_data"].contentType; got != "application/json" {
		t.Errorf("pupil_data content type %q", got)
	}
}

func TestUpload_Incomplete(t *testing.T) {
	dir := t.TempDir()
	u := NewWithClient(&fakeS3{}, Config{Bucket: "lab"})

	if _, err := u.Upload(context.Background(), dir, "x/000"); !errors.Is(err, ErrIncomplete) {
		t.Errorf("expected ErrIncomplete, got %v", err)
	}
}

func TestUpload_PutFailure(t *testing.T) {
	root := t.TempDir()
	dir := writeAttempt(t, root)

	client := &fakeS3{failOn: "pilot/001/info.csv"}
	u := NewWithClient(client, Config{Bucket: "lab"})

	if _, err := u.Upload(context.Background(), dir, KeyBase(root, dir)); err == nil {
		t.Error("expected upload error")
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); !errors.Is(err, ErrNoBucket) {
		t.Errorf("expected ErrNoBucket, got %v", err)
	}
}

func TestKeyBase(t *testing.T) {
	tests := []struct {
		name string
		root string
		dir  string
		want string
	}{
		{"inside root", "/data/rec", "/data/rec/a/b/002", "a/b/002"},
		{"outside root", "/data/rec", "/tmp/s/004", "s/004"},
		{"no root", "", "/tmp/s/004/", "s/004"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeyBase(tt.root, tt.dir); got != tt.want {
				t.Errorf("KeyBase(%q, %q) = %q, want %q", tt.root, tt.dir, got, tt.want)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"world.mkv":           "video/x-matroska",
		"world.mjpeg":         "video/x-motion-jpeg",
		"audio.wav":           "audio/wav",
		"gaze.arrow":          "application/vnd.apache.arrow.file",
		"surface_definitions": "application/octet-stream",
	}
	for file, want := range tests {
		if got := contentType(file); got != want {
			t.Errorf("contentType(%s) = %s, want %s", file, got, want)
		}
	}
}
