// Package video writes the world camera stream of a recording attempt.
package video

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/audiolibrelab/gazecapture/internal/ffmpeg"
	"github.com/audiolibrelab/gazecapture/internal/source"
)

// File names of the video artifacts.
const (
	EncodedFile = "world.mkv"
	RawFile     = "world.mjpeg"
)

// ErrNoEncoder is returned when neither sink can be used.
var ErrNoEncoder = errors.New("video: no usable encoder")

// Sink consumes frames for one attempt. It is released exactly once with Close.
type Sink interface {
	WriteFrame(frame source.Frame) error
	Close() error
	Path() string
}

// Options select and configure a sink.
type Options struct {
	Width  int
	Height int
	Rate   float64
	// RawJPEG asks for the low-CPU path that dumps camera MJPEG unchanged.
	RawJPEG bool
	// SourceJPEG reports whether the camera delivers MJPEG payloads.
	SourceJPEG bool
	// Binary is the encoder executable, "ffmpeg" when empty.
	Binary string
	// QueueSize bounds the frames waiting for the encoder.
	QueueSize int
}

// Open picks the sink for dir: the MJPEG dump when raw mode is requested and
// the camera delivers JPEG, the ffmpeg re-encoder otherwise.
func Open(dir string, opts Options) (Sink, error) {
	if opts.RawJPEG && opts.SourceJPEG {
		path := filepath.Join(dir, RawFile)
		slog.Debug("Opening raw MJPEG sink", "path", path)
		return NewJPEGDumper(path)
	}
	if opts.RawJPEG {
		slog.Info("Camera does not deliver JPEG, re-encoding instead of raw dump")
	}

	binary := opts.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	if !ffmpeg.Available(binary) {
		return nil, fmt.Errorf("%w: %s not found in PATH", ErrNoEncoder, binary)
	}

	path := filepath.Join(dir, EncodedFile)
	slog.Debug("Opening encoder sink", "path", path, "size", fmt.Sprintf("%dx%d", opts.Width, opts.Height), "rate", opts.Rate)
	return NewEncoder(path, binary, opts)
}
