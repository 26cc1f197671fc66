package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidate_InvalidConfigs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "zero frame width",
			content: "frame:\n  width: 0\n",
			wantErr: "frame size must be positive",
		},
		{
			name:    "negative frame rate",
			content: "frame:\n  rate: -1\n",
			wantErr: "frame.rate must be > 0",
		},
		{
			name:    "unknown eye channel type",
			content: "eye_channels:\n  - type: zmq\n",
			wantErr: "type must be 'queue' or 'redis'",
		},
		{
			name:    "redis without address",
			content: "eye_channels:\n  - type: redis\n",
			wantErr: "'address' is required for redis",
		},
		{
			name:    "malformed audio source",
			content: "audio_source: \"device:\"\n",
			wantErr: "audio_source must be 'none'",
		},
		{
			name:    "empty recordings directory",
			content: "recordings_directory: \"\"\n",
			wantErr: "recordings_directory cannot be empty",
		},
		{
			name:    "zero sample rate",
			content: "audio_sample_rate: 0\n",
			wantErr: "audio_sample_rate must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(createTempConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_MalformedYAML(t *testing.T) {
	_, err := Load(createTempConfig(t, "frame: [unclosed\n"))
	if err == nil || !strings.Contains(err.Error(), "error reading config file") {
		t.Errorf("Expected read error, got: %v", err)
	}
}

func TestIsValidAudioSource(t *testing.T) {
	tests := []struct {
		source string
		valid  bool
	}{
		{"none", true},
		{"No Audio", true},
		{"", true},
		{"system:capture_1", true},
		{"alsa_input.usb-Focusrite_Scarlett-00.analog:capture_FL", true},
		{"Built-in Mic", true},
		{":capture_1", false},
		{"system:", false},
	}

	for _, tt := range tests {
		if got := isValidAudioSource(tt.source); got != tt.valid {
			t.Errorf("isValidAudioSource(%q) = %v, want %v", tt.source, got, tt.valid)
		}
	}
}

// Helper function to create temporary config file for testing
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gazecapture-test.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}
