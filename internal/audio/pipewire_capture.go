package audio

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/audiolibrelab/gazecapture/internal/ffmpeg"
)

const (
	clientName       = "gazecapture_audio"
	defaultRate      = 48000
	portAppearWithin = 5 * time.Second
)

// Capture records one PipeWire source to a WAV file through ffmpeg's JACK
// input. The source is linked to ffmpeg's input port in the background once
// the port appears.
type Capture struct {
	path   string
	source string
	pw     *PipeWire
	proc   *ffmpeg.Process

	stop     chan struct{}
	done     chan struct{}
	closeErr error
	once     sync.Once
}

// StartCapture launches the recorder process for source.
func StartCapture(ctx context.Context, pw *PipeWire, dir, source string, sampleRate int) (*Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		sampleRate = defaultRate
	}
	if err := pw.ValidatePort(source); err != nil {
		return nil, fmt.Errorf("audio source unavailable: %w", err)
	}

	path := filepath.Join(dir, File)
	proc, err := ffmpeg.Start(ffmpeg.Options{
		Args:  captureArgs(path, sampleRate),
		Env:   []string{"PIPEWIRE_QUANTUM=256/48000", "PIPEWIRE_LATENCY=256/48000"},
		Label: "audio-capture",
	})
	if err != nil {
		return nil, err
	}

	c := &Capture{
		path:   path,
		source: source,
		pw:     pw,
		proc:   proc,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.connect()

	slog.Info("Audio capture started", "source", source, "path", path)
	return c, nil
}

func captureArgs(path string, sampleRate int) []string {
	return []string{
		"pw-jack", "ffmpeg",
		"-hide_banner",
		"-loglevel", ffmpeg.LogLevel(),
		"-f", "jack",
		"-channels", "1",
		"-i", clientName,
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_s16le",
		"-y",
		path,
	}
}

// connect links the source to the recorder's input once it exists.
func (c *Capture) connect() {
	defer close(c.done)

	destPort := clientName + ":input_1"
	if err := c.pw.WaitForPort(destPort, portAppearWithin, c.stop); err != nil {
		slog.Error("Audio recorder port did not appear", "port", destPort, "error", err)
		return
	}
	if err := c.pw.ConnectPortsWithRetry(c.source, destPort, c.stop); err != nil {
		slog.Error("Failed to connect audio source", "source", c.source, "dest", destPort, "error", err)
		return
	}
	slog.Info("Connected audio source", "source", c.source, "dest", destPort)
}

func (c *Capture) Path() string { return c.path }

// Close stops the recorder and waits for the file to be finalized.
func (c *Capture) Close() error {
	c.once.Do(func() {
		close(c.stop)
		<-c.done
		if err := c.proc.Interrupt(ffmpeg.DefaultStopTimeout); err != nil {
			c.closeErr = fmt.Errorf("failed to stop audio capture: %w", err)
		}
	})
	return c.closeErr
}
