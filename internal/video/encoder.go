package video

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/gazecapture/internal/ffmpeg"
	"github.com/audiolibrelab/gazecapture/internal/source"
)

const defaultQueueSize = 64

// Encoder streams raw frames into an ffmpeg process that writes an MKV file.
// WriteFrame never blocks: frames are queued and dropped when the encoder
// falls behind.
type Encoder struct {
	path          string
	width, height int
	proc          *ffmpeg.Process
	// stopTimeout bounds each stage of Close.
	stopTimeout time.Duration

	queue   chan []byte
	done    chan struct{}
	writeMu sync.Mutex
	closed  bool

	dropped atomic.Int64
	written atomic.Int64
	failure atomic.Value
}

// NewEncoder starts binary encoding into path.
func NewEncoder(path, binary string, opts Options) (*Encoder, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}
	rate := opts.Rate
	if rate <= 0 {
		rate = 30
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return startEncoder(path, encoderArgs(binary, path, opts.Width, opts.Height, rate), opts.Width, opts.Height, queueSize)
}

func encoderArgs(binary, path string, width, height int, rate float64) []string {
	return []string{
		binary,
		"-hide_banner",
		"-loglevel", ffmpeg.LogLevel(),
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.FormatFloat(rate, 'f', -1, 64),
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-y",
		path,
	}
}

func startEncoder(path string, args []string, width, height, queueSize int) (*Encoder, error) {
	proc, err := ffmpeg.Start(ffmpeg.Options{Args: args, Stdin: true, Label: "video-encoder"})
	if err != nil {
		return nil, err
	}

	e := &Encoder{
		path:   path,
		width:  width,
		height: height,
		proc:   proc,
		queue:  make(chan []byte, queueSize),
		done:   make(chan struct{}),

		stopTimeout: ffmpeg.DefaultStopTimeout,
	}
	go e.run()
	return e, nil
}

func (e *Encoder) Path() string { return e.path }

func (e *Encoder) run() {
	defer close(e.done)
	stdin := e.proc.Stdin()
	for pixels := range e.queue {
		if e.failure.Load() != nil {
			continue
		}
		if _, err := stdin.Write(pixels); err != nil {
			e.failure.Store(err)
			slog.Error("Video encoder stopped accepting frames", "path", e.path, "error", err)
			continue
		}
		e.written.Add(1)
	}
}

// WriteFrame queues the frame's pixels for encoding.
func (e *Encoder) WriteFrame(frame source.Frame) error {
	if want := e.width * e.height * 3; len(frame.Pixels) != want {
		return fmt.Errorf("frame has %d bytes, expected %d", len(frame.Pixels), want)
	}
	if err, _ := e.failure.Load().(error); err != nil {
		return fmt.Errorf("encoder failed: %w", err)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.closed {
		return errors.New("encoder closed")
	}

	select {
	case e.queue <- frame.Pixels:
	default:
		e.dropped.Add(1)
	}
	return nil
}

// Dropped returns the number of frames discarded because the queue was full.
func (e *Encoder) Dropped() int64 { return e.dropped.Load() }

// Written returns the number of frames handed to the encoder.
func (e *Encoder) Written() int64 { return e.written.Load() }

// Close drains the queue and waits for the encoder to finalize the file.
// An encoder that stops reading its input is interrupted so Close returns.
func (e *Encoder) Close() error {
	e.writeMu.Lock()
	if e.closed {
		e.writeMu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.writeMu.Unlock()

	timer := time.NewTimer(e.stopTimeout)
	defer timer.Stop()
	select {
	case <-e.done:
	case <-timer.C:
		slog.Warn("Video encoder is not reading frames, interrupting", "path", e.path, "queued", len(e.queue))
		e.proc.Interrupt(e.stopTimeout)
		<-e.done
	}

	if n := e.dropped.Load(); n > 0 {
		slog.Warn("Video encoder dropped frames", "path", e.path, "dropped", n)
	}
	return e.proc.Finish(e.stopTimeout)
}
