package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/audiolibrelab/gazecapture/internal/artifact"
	"github.com/audiolibrelab/gazecapture/internal/audio"
	"github.com/audiolibrelab/gazecapture/internal/config"
	"github.com/audiolibrelab/gazecapture/internal/eye"
	"github.com/audiolibrelab/gazecapture/internal/hostinfo"
	"github.com/audiolibrelab/gazecapture/internal/recorder"
	"github.com/audiolibrelab/gazecapture/internal/source"
)

// Service represents the core GazeCapture service interface
type Service interface {
	// Recording operations
	Start(ctx context.Context) (*recorder.Attempt, error)
	Stop(ctx context.Context) (*recorder.Summary, error)
	Status() Status
	Capture(ctx context.Context, src source.Source) error

	// Information operations
	ListAttempts(session string) ([]AttemptInfo, error)
	GetLastError() string

	// User info operations
	UserInfo() map[string]string
	SetUserInfo(key, value string) error
	RemoveUserInfo(key string) error

	// Configuration operations
	GetConfig() *config.Config
	Reload(cfg *config.Config) error

	Close(ctx context.Context) error
}

// Status is the recorder status plus service-level information.
type Status struct {
	recorder.Status
	RecordingsDirectory string `json:"recordings_directory"`
	AudioSource         string `json:"audio_source"`
	LastError           string `json:"last_error,omitempty"`
}

// AttemptInfo describes an attempt directory on disk.
type AttemptInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Ordinal      int       `json:"ordinal"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	Frames       int       `json:"frames"`
	Duration     string    `json:"duration,omitempty"`
	Complete     bool      `json:"complete"`
}

// Options inject collaborators; zero values select the real ones.
type Options struct {
	Version string
	Audio   audio.Backend
	Video   recorder.VideoOpener
	Host    hostinfo.Provider
	Logger  *slog.Logger
}

// captureExitTimeout bounds how long Stop waits for a frame source to return.
const captureExitTimeout = 5 * time.Second

// capture is one running Capture call. Only the call that installed it may
// clear it from the service.
type capture struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// GazeCaptureService is the main service implementation
type GazeCaptureService struct {
	mu       sync.Mutex
	cfg      *config.Config
	version  string
	backend  audio.Backend
	recorder *recorder.Recorder
	logger   *slog.Logger

	capture *capture

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a new GazeCapture service instance
func New(cfg *config.Config, opts Options) (Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backend := opts.Audio
	if backend == nil {
		backend = audio.NewPipeWireBackend(cfg.AudioSampleRate)
	}

	channels, err := openEyeChannels(cfg.EyeChannels, logger)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.RecordingsDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	s := &GazeCaptureService{
		cfg:     cfg,
		version: opts.Version,
		backend: backend,
		logger:  logger,
	}
	s.recorder = recorder.New(s.recorderConfig(cfg), recorder.Deps{
		Video:  opts.Video,
		Audio:  backend.Open,
		Eyes:   channels,
		Host:   opts.Host,
		Logger: logger,
	})
	return s, nil
}

func (s *GazeCaptureService) recorderConfig(cfg *config.Config) recorder.Config {
	rc := cfg.RecorderConfig(s.version)
	rc.AudioSource = audio.ResolveSource(s.backend, cfg.AudioSource)
	return rc
}

// openEyeChannels builds the configured channels. Queue channels are drained
// by an in-process listener that logs what the eye process would receive.
func openEyeChannels(defs []config.EyeChannelConfig, logger *slog.Logger) ([]eye.Channel, error) {
	var channels []eye.Channel
	for i, def := range defs {
		switch def.Type {
		case "queue":
			q := eye.NewQueue(16)
			go func() {
				for msg := range q.Messages() {
					logger.Debug("Eye process received command", "channel", i, "message", msg.String())
				}
			}()
			channels = append(channels, q)
		case "redis":
			channels = append(channels, eye.NewRedis(eye.RedisConfig{
				Address:  def.Address,
				Password: def.Password,
				Database: def.Database,
				Topic:    def.Topic,
			}))
		default:
			for _, ch := range channels {
				ch.Close()
			}
			return nil, fmt.Errorf("eye_channels[%d]: unknown type %q", i, def.Type)
		}
	}
	return channels, nil
}

// Start begins a new attempt in the configured session.
func (s *GazeCaptureService) Start(ctx context.Context) (*recorder.Attempt, error) {
	slog.Debug("Service.Start called", "session", s.GetConfig().SessionName)
	s.clearLastError() // Clear any previous errors when starting a new operation
	attempt, err := s.recorder.Start(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return nil, err
	}
	return attempt, nil
}

// Stop ends the current attempt and stops any running capture.
func (s *GazeCaptureService) Stop(ctx context.Context) (*recorder.Summary, error) {
	s.stopCapture(ctx)

	summary, err := s.recorder.Stop(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop recording: %v", err))
		return summary, err
	}
	s.clearLastError() // Clear error on successful stop
	for _, w := range summary.Report.Warnings {
		if errors.Is(w, recorder.ErrTimestampRepairIncomplete) {
			s.setLastError(w.Error())
		}
	}
	return summary, nil
}

// Status returns the current recording status.
func (s *GazeCaptureService) Status() Status {
	cfg := s.GetConfig()
	return Status{
		Status:              s.recorder.Status(),
		RecordingsDirectory: cfg.RecordingsDirectory,
		AudioSource:         cfg.AudioSource,
		LastError:           s.GetLastError(),
	}
}

// Capture feeds frames from src to the recorder until ctx is done or Stop is
// called. Frames arriving while idle are dropped by the recorder.
func (s *GazeCaptureService) Capture(ctx context.Context, src source.Source) error {
	ctx, cancel := context.WithCancel(ctx)
	c := &capture{cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	if s.capture != nil {
		s.mu.Unlock()
		cancel()
		return errors.New("capture already running")
	}
	s.capture = c
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.capture == c {
			s.capture = nil
		}
		s.mu.Unlock()
		close(c.done)
	}()

	w, h := src.FrameSize()
	s.logger.Info("Capturing frames", "source", src.Name(), "size", fmt.Sprintf("%dx%d", w, h), "rate", src.FrameRate())
	err := src.Run(ctx, s.recorder.OnFrame)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.setLastError(fmt.Sprintf("Frame source failed: %v", err))
		return err
	}
	return nil
}

// ListAttempts returns the attempts of session, oldest first. An empty
// session lists the configured one.
func (s *GazeCaptureService) ListAttempts(session string) ([]AttemptInfo, error) {
	cfg := s.GetConfig()
	if session == "" {
		session = cfg.SessionName
	}
	dir := recorder.Session{Name: session, Root: cfg.RecordingsDirectory}.Dir()

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []AttemptInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	attempts := []AttemptInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ordinal, err := strconv.Atoi(entry.Name())
		if err != nil || recorder.OrdinalName(ordinal) != entry.Name() {
			continue
		}
		info, err := describeAttempt(filepath.Join(dir, entry.Name()), ordinal)
		if err != nil {
			slog.Warn("Skipping unreadable attempt", "path", entry.Name(), "error", err)
			continue
		}
		attempts = append(attempts, info)
	}

	sort.Slice(attempts, func(i, j int) bool { return attempts[i].Ordinal < attempts[j].Ordinal })
	return attempts, nil
}

func describeAttempt(path string, ordinal int) (AttemptInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return AttemptInfo{}, err
	}
	info := AttemptInfo{
		Name:         filepath.Base(path),
		Path:         path,
		Ordinal:      ordinal,
		ModTime:      stat.ModTime(),
		ModTimeHuman: stat.ModTime().Format("2006-01-02 15:04:05"),
	}

	files, err := os.ReadDir(path)
	if err != nil {
		return AttemptInfo{}, err
	}
	for _, f := range files {
		if fi, err := f.Info(); err == nil && fi.Mode().IsRegular() {
			info.Size += fi.Size()
		}
	}
	info.SizeHuman = formatBytes(info.Size)

	if fields, err := artifact.ReadFields(filepath.Join(path, recorder.InfoFile)); err == nil {
		for _, field := range fields {
			switch field.Key {
			case "World Camera Frames":
				info.Frames, _ = strconv.Atoi(field.Value)
			case "Duration Time":
				info.Duration = field.Value
			}
		}
	}
	info.Complete = artifact.Exists(filepath.Join(path, recorder.WorldTimestampsFile))
	return info, nil
}

// UserInfo returns the user info entries.
func (s *GazeCaptureService) UserInfo() map[string]string {
	return s.recorder.UserInfo()
}

// SetUserInfo sets an entry and persists it to the config file.
func (s *GazeCaptureService) SetUserInfo(key, value string) error {
	if err := s.recorder.SetUserInfo(key, value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cfg.SetUserInfo(key, value); err != nil {
		return err
	}
	return s.cfg.Save()
}

// RemoveUserInfo removes an entry and persists the change.
func (s *GazeCaptureService) RemoveUserInfo(key string) error {
	s.recorder.RemoveUserInfo(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.RemoveUserInfo(key)
	return s.cfg.Save()
}

// GetConfig returns the current configuration
func (s *GazeCaptureService) GetConfig() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Reload applies cfg to the next attempt. It fails while recording.
func (s *GazeCaptureService) Reload(cfg *config.Config) error {
	if err := s.recorder.Configure(s.recorderConfig(cfg)); err != nil {
		return fmt.Errorf("cannot reload configuration: %w", err)
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	slog.Info("Configuration reloaded", "session", cfg.SessionName, "recordings_directory", cfg.RecordingsDirectory)
	return nil
}

// Close stops any recording and releases the eye channels.
func (s *GazeCaptureService) Close(ctx context.Context) error {
	s.stopCapture(ctx)
	return s.recorder.Cleanup(ctx)
}

// stopCapture cancels the running capture and waits for its source to
// return, so no frame of it reaches a later attempt. A source that does not
// return in time keeps its slot and blocks new captures.
func (s *GazeCaptureService) stopCapture(ctx context.Context) {
	s.mu.Lock()
	c := s.capture
	s.mu.Unlock()
	if c == nil {
		return
	}

	c.cancel()
	timer := time.NewTimer(captureExitTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		s.logger.Warn("Frame source did not stop in time", "timeout", captureExitTimeout)
	case <-ctx.Done():
	}
}

// GetLastError returns the last error message (thread-safe)
func (s *GazeCaptureService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *GazeCaptureService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	// Log all errors for debugging and monitoring
	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *GazeCaptureService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
