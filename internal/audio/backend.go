// Package audio records the optional world audio track of an attempt.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// None disables audio recording.
const None = "none"

// File is the audio artifact name.
const File = "world.wav"

// Sink is an open audio capture for one attempt.
type Sink interface {
	Close() error
	Path() string
}

// Backend lists capture sources and opens sinks on them.
type Backend interface {
	ListSources() ([]string, error)
	ValidateSource(source string) error
	Open(ctx context.Context, dir, source string) (Sink, error)
}

// IsNone reports whether source disables audio. The empty string and the
// legacy "No Audio" label are treated as none.
func IsNone(source string) bool {
	return source == "" || source == None || source == "No Audio"
}

// ResolveSource returns source when the backend currently offers it and
// None otherwise.
func ResolveSource(b Backend, source string) string {
	if IsNone(source) {
		return None
	}
	sources, err := b.ListSources()
	if err != nil {
		slog.Warn("Could not list audio sources, disabling audio", "source", source, "error", err)
		return None
	}
	if !slices.Contains(sources, source) {
		slog.Warn("Audio source not available, disabling audio", "source", source)
		return None
	}
	return source
}

// PipeWireBackend implements Backend with pw-link and ffmpeg's JACK input.
type PipeWireBackend struct {
	SampleRate int
	pw         *PipeWire
}

// NewPipeWireBackend returns a backend recording at sampleRate.
func NewPipeWireBackend(sampleRate int) *PipeWireBackend {
	return &PipeWireBackend{SampleRate: sampleRate, pw: NewPipeWire()}
}

// ListSources returns available PipeWire/JACK output ports.
func (p *PipeWireBackend) ListSources() ([]string, error) {
	return p.pw.ListPorts()
}

// ValidateSource validates a PipeWire/JACK source
func (p *PipeWireBackend) ValidateSource(source string) error {
	if IsNone(source) {
		return nil
	}
	return p.pw.ValidatePort(source)
}

// Open starts recording source into dir/world.wav.
func (p *PipeWireBackend) Open(ctx context.Context, dir, source string) (Sink, error) {
	if IsNone(source) {
		return nil, fmt.Errorf("audio source is %q", None)
	}
	return StartCapture(ctx, p.pw, dir, source, p.SampleRate)
}
