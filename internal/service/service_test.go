package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/audiolibrelab/gazecapture/internal/audio"
	"github.com/audiolibrelab/gazecapture/internal/config"
	"github.com/audiolibrelab/gazecapture/internal/hostinfo"
	"github.com/audiolibrelab/gazecapture/internal/recorder"
	"github.com/audiolibrelab/gazecapture/internal/source"
	"github.com/audiolibrelab/gazecapture/internal/video"
)

type nullVideo struct{ path string }

func (v nullVideo) WriteFrame(source.Frame) error { return nil }
func (v nullVideo) Close() error                  { return nil }
func (v nullVideo) Path() string                  { return v.path }

type fakeBackend struct {
	sources []string
	opened  int
}

func (b *fakeBackend) ListSources() ([]string, error) { return b.sources, nil }
func (b *fakeBackend) ValidateSource(string) error    { return nil }
func (b *fakeBackend) Open(ctx context.Context, dir, src string) (audio.Sink, error) {
	b.opened++
	return nil, errors.New("no device in tests")
}

func newTestService(t *testing.T, mutate func(*config.Config)) (*GazeCaptureService, *fakeBackend) {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "gazecapture.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg.RecordingsDirectory = filepath.Join(t.TempDir(), "recordings")
	cfg.UserDirectory = t.TempDir()
	cfg.SessionName = "session"
	cfg.Frame = config.FrameConfig{Width: 8, Height: 8, Rate: 200}
	if mutate != nil {
		mutate(cfg)
	}

	backend := &fakeBackend{}
	svc, err := New(cfg, Options{
		Version: "test",
		Audio:   backend,
		Video: func(dir string, opts video.Options) (video.Sink, error) {
			return nullVideo{path: filepath.Join(dir, video.EncodedFile)}, nil
		},
		Host: hostinfo.ProviderFunc(func() (hostinfo.Info, error) {
			return hostinfo.Info{User: "t", System: "Linux", Node: "n"}, nil
		}),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { svc.Close(context.Background()) })
	return svc.(*GazeCaptureService), backend
}

func TestService_CaptureAndStop(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	attempt, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- svc.Capture(ctx, source.NewSynthetic(8, 8, 200, false))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for svc.Status().Frames < 5 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for frames")
		}
		time.Sleep(5 * time.Millisecond)
	}

	summary, err := svc.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if summary.Attempt.Path != attempt.Path || summary.Attempt.Frames < 5 {
		t.Errorf("unexpected summary %+v", summary)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Capture returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Capture did not return after Stop")
	}

	attempts, err := svc.ListAttempts("")
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 1 || !attempts[0].Complete || attempts[0].Frames != summary.Attempt.Frames {
		t.Errorf("unexpected attempts %+v", attempts)
	}
	if attempts[0].Duration == "" || attempts[0].SizeHuman == "" {
		t.Errorf("expected duration and size, got %+v", attempts[0])
	}
}

// lingeringSource keeps running for a while after its context is cancelled.
type lingeringSource struct {
	linger  time.Duration
	running chan struct{}
	exited  atomic.Bool
}

func newLingeringSource() *lingeringSource {
	return &lingeringSource{linger: 100 * time.Millisecond, running: make(chan struct{})}
}

func (l *lingeringSource) Name() string                  { return "lingering" }
func (l *lingeringSource) FrameSize() (width, height int) { return 8, 8 }
func (l *lingeringSource) FrameRate() float64             { return 100 }
func (l *lingeringSource) DeliversJPEG() bool             { return false }

func (l *lingeringSource) Run(ctx context.Context, fn source.FrameFunc) error {
	close(l.running)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for ts := 0.0; ; ts += 0.01 {
		select {
		case <-ctx.Done():
			time.Sleep(l.linger)
			l.exited.Store(true)
			return ctx.Err()
		case <-ticker.C:
			fn(source.Frame{Timestamp: ts, Width: 8, Height: 8, Pixels: make([]byte, 8*8*3)}, source.Events{})
		}
	}
}

func startCapture(t *testing.T, svc *GazeCaptureService, src *lingeringSource) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- svc.Capture(context.Background(), src) }()
	select {
	case <-src.running:
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not start")
	}
	return done
}

func TestService_StopWaitsForLingeringCapture(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	first := newLingeringSource()
	firstDone := startCapture(t, svc, first)
	if _, err := svc.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !first.exited.Load() {
		t.Error("Stop returned before the frame source exited")
	}
	if err := <-firstDone; err != nil {
		t.Errorf("first capture returned %v", err)
	}

	// the next capture owns the slot until it ends
	if _, err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	second := newLingeringSource()
	secondDone := startCapture(t, svc, second)
	if err := svc.Capture(ctx, newLingeringSource()); err == nil {
		t.Error("expected concurrent capture to be rejected")
	}
	deadline := time.Now().Add(2 * time.Second)
	for svc.Status().Frames == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for frames")
		}
		time.Sleep(5 * time.Millisecond)
	}

	summary, err := svc.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !second.exited.Load() {
		t.Error("second capture still running after Stop")
	}
	if err := <-secondDone; err != nil {
		t.Errorf("second capture returned %v", err)
	}
	if summary.Attempt.Frames == 0 {
		t.Error("expected frames from the second capture")
	}

	svc.mu.Lock()
	left := svc.capture
	svc.mu.Unlock()
	if left != nil {
		t.Error("capture slot not released")
	}
}

func TestService_ListAttempts(t *testing.T) {
	svc, _ := newTestService(t, nil)

	attempts, err := svc.ListAttempts("unknown")
	if err != nil || len(attempts) != 0 {
		t.Fatalf("expected empty list, got %v (%v)", attempts, err)
	}

	dir := filepath.Join(svc.GetConfig().RecordingsDirectory, "manual")
	for _, name := range []string{"002", "000", "notes", "01"} {
		if err := os.MkdirAll(filepath.Join(dir, name), 0755); err != nil {
			t.Fatal(err)
		}
	}

	attempts, err = svc.ListAttempts("manual")
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 2 || attempts[0].Name != "000" || attempts[1].Name != "002" {
		t.Errorf("unexpected attempts %+v", attempts)
	}
	if attempts[0].Complete {
		t.Error("attempt without timestamps should not be complete")
	}
}

func TestService_StartErrorSetsLastError(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Start(ctx); !errors.Is(err, recorder.ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}
	if svc.GetLastError() == "" {
		t.Error("expected last error to be set")
	}
	if _, err := svc.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if svc.GetLastError() != "" {
		t.Errorf("expected last error to be cleared, got %q", svc.GetLastError())
	}
}

func TestService_UnavailableAudioFallsBackToNone(t *testing.T) {
	svc, backend := newTestService(t, func(c *config.Config) { c.AudioSource = "usb:capture_1" })
	ctx := context.Background()

	if _, err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := svc.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if backend.opened != 0 {
		t.Errorf("audio backend opened %d times", backend.opened)
	}
}

func TestService_UserInfoPersists(t *testing.T) {
	svc, _ := newTestService(t, nil)

	if err := svc.SetUserInfo("subject", "s42"); err != nil {
		t.Fatalf("SetUserInfo failed: %v", err)
	}
	if err := svc.SetUserInfo("", "x"); err == nil {
		t.Error("expected error for empty key")
	}

	loaded, err := config.Load(svc.GetConfig().Path())
	if err != nil {
		t.Fatal(err)
	}
	if loaded.UserInfo["subject"] != "s42" {
		t.Errorf("expected persisted user info, got %v", loaded.UserInfo)
	}

	if err := svc.RemoveUserInfo("subject"); err != nil {
		t.Fatal(err)
	}
	if _, ok := svc.UserInfo()["subject"]; ok {
		t.Error("expected entry to be removed")
	}
}

func TestService_ReloadRejectedWhileRecording(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	next := *svc.GetConfig()
	next.SessionName = "next"

	if _, err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := svc.Reload(&next); !errors.Is(err, recorder.ErrAlreadyRecording) {
		t.Errorf("expected reload to fail while recording, got %v", err)
	}
	if _, err := svc.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	if err := svc.Reload(&next); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if svc.Status().Session != "next" {
		t.Errorf("expected new session, got %s", svc.Status().Session)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{0: "0 B", 1023: "1023 B", 1024: "1.0 KB", 1536: "1.5 KB", 1 << 20: "1.0 MB"}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %s, want %s", in, got, want)
		}
	}
}
