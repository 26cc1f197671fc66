package video

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/audiolibrelab/gazecapture/internal/source"
)

// JPEGDumper appends camera MJPEG payloads to a single file.
type JPEGDumper struct {
	path string

	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	frames int
	closed bool
}

// NewJPEGDumper creates path and returns a dumper writing to it.
func NewJPEGDumper(path string) (*JPEGDumper, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return &JPEGDumper{path: path, f: f, w: bufio.NewWriterSize(f, 1<<20)}, nil
}

func (d *JPEGDumper) Path() string { return d.path }

// WriteFrame appends the frame's JPEG payload.
func (d *JPEGDumper) WriteFrame(frame source.Frame) error {
	if len(frame.JPEG) == 0 {
		return errors.New("frame carries no JPEG payload")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errors.New("jpeg dumper closed")
	}
	if _, err := d.w.Write(frame.JPEG); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	d.frames++
	return nil
}

// Frames returns the number of frames written.
func (d *JPEGDumper) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// Close flushes and closes the file.
func (d *JPEGDumper) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if err := d.w.Flush(); err != nil {
		d.f.Close()
		return fmt.Errorf("failed to flush %s: %w", d.path, err)
	}
	return d.f.Close()
}
