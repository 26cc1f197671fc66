// Package recorder implements the recording lifecycle: attempt allocation,
// frame and event accumulation, and finalization of the attempt directory.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/gazecapture/internal/artifact"
	"github.com/audiolibrelab/gazecapture/internal/audio"
	"github.com/audiolibrelab/gazecapture/internal/eye"
	"github.com/audiolibrelab/gazecapture/internal/hostinfo"
	"github.com/audiolibrelab/gazecapture/internal/source"
	"github.com/audiolibrelab/gazecapture/internal/video"
)

// State of the recorder.
type State int

const (
	Idle State = iota
	Recording
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the per-recorder settings.
type Config struct {
	Root        string
	SessionName string
	UserDir     string
	AudioSource string
	RecordEye   bool
	RawJPEG     bool
	Binocular   bool
	Version     string
	UserInfo    map[string]string
	ShowInfo    bool

	FrameWidth  int
	FrameHeight int
	FrameRate   float64
	// SourceJPEG reports whether the frame source delivers MJPEG payloads.
	SourceJPEG bool
}

// VideoOpener opens the world video sink in an attempt directory.
type VideoOpener func(dir string, opts video.Options) (video.Sink, error)

// AudioOpener opens the audio sink in an attempt directory.
type AudioOpener func(ctx context.Context, dir, source string) (audio.Sink, error)

// Deps are the collaborators of a Recorder. Zero values select the real
// implementations.
type Deps struct {
	Video  VideoOpener
	Audio  AudioOpener
	Eyes   []eye.Channel
	Host   hostinfo.Provider
	Logger *slog.Logger
	Clock  func() time.Time
}

// Summary describes a finished attempt.
type Summary struct {
	Attempt  Attempt       `json:"attempt"`
	Duration time.Duration `json:"duration"`
	Dropped  int64         `json:"dropped"`
	Report   Report        `json:"report"`
}

// Status is a snapshot of the recorder.
type Status struct {
	State     string `json:"state"`
	Session   string `json:"session"`
	Attempt   string `json:"attempt,omitempty"`
	Frames    int    `json:"frames"`
	Elapsed   string `json:"elapsed"`
	Dropped   int64  `json:"dropped"`
	AudioPath string `json:"audio_path,omitempty"`
	InfoOpen  bool   `json:"info_open"`
}

type dropCounter interface {
	Dropped() int64
}

// Recorder drives one attempt at a time. It is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex
	// eyeMu orders start and stop messages without holding mu while the
	// transport blocks. Acquired after mu, never before.
	eyeMu sync.Mutex

	cfg    Config
	deps   Deps
	logger *slog.Logger

	state    State
	attempt  *Attempt
	videoOut video.Sink
	audioOut audio.Sink
	eyeOn    bool
	started  time.Time
	elapsed  string

	pupil  EventBuffer[source.PupilDatum]
	gaze   EventBuffer[source.GazeDatum]
	stamps EventBuffer[float64]

	infoOpen bool
	closed   bool
}

// New returns an idle recorder.
func New(cfg Config, deps Deps) *Recorder {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Host == nil {
		deps.Host = hostinfo.Local{}
	}
	if deps.Video == nil {
		deps.Video = video.Open
	}
	if cfg.UserInfo == nil {
		cfg.UserInfo = map[string]string{}
	}
	return &Recorder{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger,
		elapsed:  FormatElapsed(0),
		infoOpen: cfg.ShowInfo,
	}
}

// Configure replaces the settings used by the next attempt.
func (r *Recorder) Configure(cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Idle {
		return ErrAlreadyRecording
	}
	if cfg.UserInfo == nil {
		cfg.UserInfo = map[string]string{}
	}
	r.cfg = cfg
	r.infoOpen = cfg.ShowInfo
	return nil
}

// Start allocates a new attempt and opens its sinks. Frames are accepted
// while the eye processes are being notified.
func (r *Recorder) Start(ctx context.Context) (*Attempt, error) {
	r.mu.Lock()
	attempt, err := r.start(ctx)
	if err != nil || !r.eyeOn {
		r.mu.Unlock()
		return attempt, err
	}
	msg := eye.Start(attempt.Path, r.cfg.RawJPEG)
	r.eyeMu.Lock()
	r.mu.Unlock()

	defer r.eyeMu.Unlock()
	r.send(ctx, msg)
	return attempt, nil
}

func (r *Recorder) start(ctx context.Context) (*Attempt, error) {
	if r.state != Idle {
		return nil, ErrAlreadyRecording
	}
	if err := checkRoot(r.cfg.Root); err != nil {
		return nil, err
	}

	if strings.Contains(r.cfg.SessionName, "/") {
		r.logger.Warn("Session name contains '/', sub-directories will be created", "session", r.cfg.SessionName)
	}

	session := Session{Name: r.cfg.SessionName, Root: r.cfg.Root}
	attempt, err := Allocator{Logger: r.logger}.Allocate(session)
	if err != nil {
		return nil, err
	}
	attempt.Started = r.deps.Clock()
	attempt.FrameWidth = r.cfg.FrameWidth
	attempt.FrameHeight = r.cfg.FrameHeight

	if err := artifact.AppendFields(filepath.Join(attempt.Path, InfoFile), header(attempt)); err != nil {
		return nil, &DirectoryError{Path: attempt.Path, Err: err}
	}

	videoOut, err := r.deps.Video(attempt.Path, video.Options{
		Width:      r.cfg.FrameWidth,
		Height:     r.cfg.FrameHeight,
		Rate:       r.cfg.FrameRate,
		RawJPEG:    r.cfg.RawJPEG,
		SourceJPEG: r.cfg.SourceJPEG,
	})
	if err != nil {
		return nil, &SinkOpenError{Sink: "video", Err: err}
	}

	var audioOut audio.Sink
	if !audio.IsNone(r.cfg.AudioSource) {
		if r.deps.Audio != nil {
			audioOut, err = r.deps.Audio(ctx, attempt.Path, r.cfg.AudioSource)
		} else {
			err = errors.New("no audio backend")
		}
		if err != nil {
			if cerr := videoOut.Close(); cerr != nil {
				r.logger.Warn("Failed to close video sink", "path", videoOut.Path(), "error", cerr)
			}
			return nil, &SinkOpenError{Sink: "audio", Err: err}
		}
	}

	r.pupil.Take()
	r.gaze.Take()
	r.stamps.Take()
	r.attempt = attempt
	r.videoOut = videoOut
	r.audioOut = audioOut
	r.eyeOn = r.cfg.RecordEye
	r.started = attempt.Started
	r.elapsed = FormatElapsed(0)
	r.state = Recording

	r.logger.Info("Started recording", "path", attempt.Path, "id", attempt.ID, "audio", r.cfg.AudioSource)
	return attempt, nil
}

// OnFrame accumulates one world frame and the events delivered with it.
// Calls outside Recording are ignored.
func (r *Recorder) OnFrame(frame source.Frame, events source.Events) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Recording {
		return
	}

	r.pupil.Append(events.Pupil...)
	r.gaze.Append(events.Gaze...)
	r.stamps.Append(frame.Timestamp)

	if err := r.videoOut.WriteFrame(frame); err != nil {
		r.logger.Warn("Failed to write frame", "frame", r.attempt.Frames, "error", err)
	}
	r.attempt.Frames++
	r.elapsed = FormatElapsed(r.deps.Clock().Sub(r.started))
}

// Stop closes the sinks and finalizes the attempt. The recorder is idle
// again when Stop returns, even on error.
func (r *Recorder) Stop(ctx context.Context) (*Summary, error) {
	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	r.state = Finalizing

	attempt := *r.attempt
	videoOut, audioOut, eyeOn := r.videoOut, r.audioOut, r.eyeOn
	duration := r.deps.Clock().Sub(r.started)
	handover := Handover{
		Attempt:    attempt,
		Pupil:      r.pupil.Take(),
		Gaze:       r.gaze.Take(),
		Timestamps: r.stamps.Take(),
		Duration:   duration,
		UserInfo:   maps.Clone(r.cfg.UserInfo),
	}
	fin := Finalizer{
		UserDir:   r.cfg.UserDir,
		Version:   r.cfg.Version,
		Binocular: r.cfg.Binocular,
		Host:      r.deps.Host,
		Logger:    r.logger,
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.state = Idle
		r.attempt = nil
		r.videoOut = nil
		r.audioOut = nil
		r.eyeOn = false
		r.elapsed = FormatElapsed(0)
		r.mu.Unlock()
	}()

	summary := &Summary{Attempt: attempt, Duration: duration}
	if dc, ok := videoOut.(dropCounter); ok {
		summary.Dropped = dc.Dropped()
	}

	var errs []error
	if err := videoOut.Close(); err != nil {
		r.logger.Error("Failed to close video sink", "path", videoOut.Path(), "error", err)
		errs = append(errs, fmt.Errorf("close video sink: %w", err))
	}
	if summary.Dropped > 0 {
		r.logger.Warn("Encoder dropped frames", "dropped", summary.Dropped, "frames", attempt.Frames)
	}

	if eyeOn {
		r.broadcast(ctx, eye.Stop())
	}

	report, err := fin.Finalize(ctx, handover)
	summary.Report = report
	if err != nil {
		errs = append(errs, err)
	}

	if audioOut != nil {
		if err := audioOut.Close(); err != nil {
			r.logger.Error("Failed to close audio sink", "path", audioOut.Path(), "error", err)
			errs = append(errs, fmt.Errorf("close audio sink: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return summary, err
	}

	if err := artifact.Seal(attempt.Path); err != nil {
		r.logger.Warn("Could not make attempt read-only", "path", attempt.Path, "error", err)
	}
	r.logger.Info("Saved recording", "path", attempt.Path, "frames", attempt.Frames, "duration", FormatElapsed(duration))
	return summary, nil
}

// Cleanup stops an active recording, closes the info form and releases the
// eye channels. Calling it again is a no-op.
func (r *Recorder) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	recording := r.state == Recording
	r.mu.Unlock()

	var errs []error
	if recording {
		if _, err := r.Stop(ctx); err != nil && !errors.Is(err, ErrNotRecording) {
			errs = append(errs, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.Join(errs...)
	}
	r.closed = true
	r.infoOpen = false
	r.eyeMu.Lock()
	defer r.eyeMu.Unlock()
	for _, ch := range r.deps.Eyes {
		if err := ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status returns a snapshot of the current state.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		State:    r.state.String(),
		Session:  r.cfg.SessionName,
		Elapsed:  r.elapsed,
		InfoOpen: r.infoOpen,
	}
	if r.attempt != nil {
		st.Attempt = r.attempt.Path
		st.Frames = r.attempt.Frames
	}
	if dc, ok := r.videoOut.(dropCounter); ok {
		st.Dropped = dc.Dropped()
	}
	if r.audioOut != nil {
		st.AudioPath = r.audioOut.Path()
	}
	return st
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// UserInfo returns a copy of the user info entries.
func (r *Recorder) UserInfo() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.cfg.UserInfo)
}

// SetUserInfo adds or replaces a user info entry.
func (r *Recorder) SetUserInfo(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: empty user info key", ErrConfig)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.UserInfo[key] = value
	return nil
}

// RemoveUserInfo deletes a user info entry. Unknown keys are ignored.
func (r *Recorder) RemoveUserInfo(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cfg.UserInfo, strings.TrimSpace(key))
}

// ToggleInfo opens or closes the info form.
func (r *Recorder) ToggleInfo() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infoOpen = !r.infoOpen
	return r.infoOpen
}

func (r *Recorder) broadcast(ctx context.Context, msg eye.Message) {
	r.eyeMu.Lock()
	defer r.eyeMu.Unlock()
	r.send(ctx, msg)
}

// send delivers msg to every eye channel. The caller holds eyeMu.
func (r *Recorder) send(ctx context.Context, msg eye.Message) {
	if len(r.deps.Eyes) == 0 {
		return
	}
	if err := eye.Broadcast(ctx, r.deps.Eyes, msg); err != nil {
		r.logger.Warn("Eye process did not receive message", "message", msg.String(), "error", &TransportError{Err: err})
	}
}

// checkRoot verifies that root is an existing, writable directory.
func checkRoot(root string) error {
	if strings.TrimSpace(root) == "" {
		return &ConfigError{Path: root, Err: errors.New("empty path")}
	}
	info, err := os.Stat(root)
	if err != nil {
		return &ConfigError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return &ConfigError{Path: root, Err: errors.New("not a directory")}
	}
	tmp, err := os.CreateTemp(root, ".gazecapture-write-*")
	if err != nil {
		return &ConfigError{Path: root, Err: fmt.Errorf("not writable: %w", err)}
	}
	tmp.Close()
	if err := os.Remove(tmp.Name()); err != nil {
		return &ConfigError{Path: root, Err: fmt.Errorf("not writable: %w", err)}
	}
	return nil
}
