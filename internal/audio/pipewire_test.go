package audio

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func fakePipeWire(output string, err error) *PipeWire {
	return &PipeWire{run: func(args ...string) ([]byte, error) {
		return []byte(output), err
	}}
}

func TestParsePorts(t *testing.T) {
	output := "Output ports:\n  system:capture_1\n\n  Scarlett 2i2 USB:capture_FL\nInput ports:\n"

	ports := parsePorts(output)
	if len(ports) != 2 || ports[1] != "Scarlett 2i2 USB:capture_FL" {
		t.Errorf("unexpected ports %v", ports)
	}
}

func TestValidatePort_Success(t *testing.T) {
	mockPorts := []string{"Chrome:output_FL", "system:capture_1"}

	if err := validatePortInList("system:capture_1", mockPorts); err != nil {
		t.Errorf("Expected no error for valid single port, got: %v", err)
	}
}

func TestValidatePort_NotFound(t *testing.T) {
	err := validatePortInList("nonexistent:port", []string{"Chrome:output_FL"})
	if err == nil || !strings.Contains(err.Error(), "port not found") {
		t.Errorf("Expected 'port not found' error, got: %v", err)
	}
}

func TestValidatePort_DuplicateDetection(t *testing.T) {
	mockPorts := []string{
		"Chrome:output_FL",
		"Chrome:output_FL",   // same name twice
		"Chrome-2:output_FL", // different instance
	}

	err := validatePortInList("Chrome:output_FL", mockPorts)
	if err == nil || !strings.Contains(err.Error(), "duplicate sources detected") {
		t.Errorf("Expected 'duplicate sources detected' error, got: %v", err)
	}

	if err := validatePortInList("Chrome-2:output_FL", mockPorts); err != nil {
		t.Errorf("Expected other instance to validate, got: %v", err)
	}
}

func TestValidatePort_NoneSkipsLookup(t *testing.T) {
	pw := fakePipeWire("", errors.New("pw-link missing"))

	for _, name := range []string{"", None} {
		if err := pw.ValidatePort(name); err != nil {
			t.Errorf("Expected no error for %q, got: %v", name, err)
		}
	}
	if err := pw.ValidatePort("system:capture_1"); err == nil {
		t.Error("Expected lookup failure to surface")
	}
}

func TestIsEphemeralPort(t *testing.T) {
	tests := []struct {
		port string
		want bool
	}{
		{"Firefox:output_FL", true},
		{"spotify:output_FR", true},
		{"system:capture_1", false},
		{"Scarlett 2i2 USB:capture_FL", false},
	}
	for _, tt := range tests {
		if got := isEphemeralPort(tt.port); got != tt.want {
			t.Errorf("isEphemeralPort(%q) = %v, want %v", tt.port, got, tt.want)
		}
	}
}

func TestIsNone(t *testing.T) {
	for _, s := range []string{"", "none", "No Audio"} {
		if !IsNone(s) {
			t.Errorf("expected %q to disable audio", s)
		}
	}
	if IsNone("system:capture_1") {
		t.Error("expected a port name to enable audio")
	}
}

type stubBackend struct {
	sources []string
	err     error
}

func (s stubBackend) ListSources() ([]string, error)   { return s.sources, s.err }
func (s stubBackend) ValidateSource(source string) error { return nil }
func (s stubBackend) Open(context.Context, string, string) (Sink, error) {
	return nil, errors.New("not implemented")
}

func TestResolveSource(t *testing.T) {
	b := stubBackend{sources: []string{"system:capture_1"}}

	if got := ResolveSource(b, "system:capture_1"); got != "system:capture_1" {
		t.Errorf("expected available source to be kept, got %q", got)
	}
	if got := ResolveSource(b, "usb:capture_9"); got != None {
		t.Errorf("expected unavailable source to fall back to none, got %q", got)
	}
	if got := ResolveSource(stubBackend{err: errors.New("boom")}, "system:capture_1"); got != None {
		t.Errorf("expected listing failure to fall back to none, got %q", got)
	}
	if got := ResolveSource(b, "No Audio"); got != None {
		t.Errorf("expected legacy label to map to none, got %q", got)
	}
}

func TestPipeWireBackend_OpenNone(t *testing.T) {
	b := &PipeWireBackend{pw: fakePipeWire("", nil)}
	if _, err := b.Open(context.Background(), t.TempDir(), None); err == nil {
		t.Error("expected error when opening the none source")
	}
}

func TestStartCapture_UnavailableSource(t *testing.T) {
	pw := fakePipeWire("Output ports:\n  system:capture_1\n", nil)

	_, err := StartCapture(context.Background(), pw, t.TempDir(), "usb:capture_9", 48000)
	if err == nil || !strings.Contains(err.Error(), "port not found") {
		t.Errorf("expected port not found, got %v", err)
	}
}

func TestCaptureArgs(t *testing.T) {
	args := captureArgs("/rec/000/world.wav", 44100)
	joined := strings.Join(args, " ")
	if !strings.HasPrefix(joined, "pw-jack ffmpeg") || !strings.Contains(joined, "-ar 44100") || !strings.HasSuffix(joined, "world.wav") {
		t.Errorf("unexpected args %q", joined)
	}
}
