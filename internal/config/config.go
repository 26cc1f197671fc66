package config

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/audiolibrelab/gazecapture/internal/recorder"
)

const (
	EnvPrefix   = "GAZECAPTURE"
	autoNameFmt = "2006_01_02"
)

type FrameConfig struct {
	Width  int     `mapstructure:"width" yaml:"width"`
	Height int     `mapstructure:"height" yaml:"height"`
	Rate   float64 `mapstructure:"rate" yaml:"rate"`
	// JPEG makes the synthetic source deliver MJPEG payloads
	JPEG bool `mapstructure:"jpeg" yaml:"jpeg"`
}

type EyeChannelConfig struct {
	Type     string `mapstructure:"type" yaml:"type"` // "queue", "redis"
	Address  string `mapstructure:"address" yaml:"address,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Database int    `mapstructure:"database" yaml:"database,omitempty"`
	Topic    string `mapstructure:"topic" yaml:"topic,omitempty"`
}

type ArchiveConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint points uploads at an S3 compatible store such as MinIO.
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
}

type Config struct {
	RecordingsDirectory string             `mapstructure:"recordings_directory" yaml:"recordings_directory"`
	SessionName         string             `mapstructure:"session_name" yaml:"session_name"`
	UserDirectory       string             `mapstructure:"user_directory" yaml:"user_directory"`
	AudioSource         string             `mapstructure:"audio_source" yaml:"audio_source"`
	AudioSampleRate     int                `mapstructure:"audio_sample_rate" yaml:"audio_sample_rate"`
	RecordEye           bool               `mapstructure:"record_eye" yaml:"record_eye"`
	RawJPEG             bool               `mapstructure:"raw_jpeg" yaml:"raw_jpeg"`
	Binocular           bool               `mapstructure:"binocular" yaml:"binocular"`
	ShowInfoMenu        bool               `mapstructure:"show_info_menu" yaml:"show_info_menu"`
	UserInfo            map[string]string  `mapstructure:"user_info" yaml:"user_info"`
	Frame               FrameConfig        `mapstructure:"frame" yaml:"frame"`
	EyeChannels         []EyeChannelConfig `mapstructure:"eye_channels" yaml:"eye_channels"`
	Archive             ArchiveConfig      `mapstructure:"archive" yaml:"archive"`

	path string
	v    *viper.Viper
}

// now is replaced in tests.
var now = time.Now

func defaultUserDirectory() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "gazecapture", "settings")
}

var defaultConfig = Config{
	AudioSource:     "none",
	AudioSampleRate: 48000,
	RecordEye:       true,
	Frame: FrameConfig{
		Width:  1280,
		Height: 720,
		Rate:   30,
	},
	EyeChannels: []EyeChannelConfig{
		{Type: "queue"},
	},
}

// DefaultPath is the configuration file used when --config is not given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".config", "gazecapture.yaml")
}

// AutoSessionName is the dated session name used when none is configured.
func AutoSessionName() string {
	return now().Format(autoNameFmt)
}

// IsAutoSessionName reports whether name looks like a generated dated name.
func IsAutoSessionName(name string) bool {
	if len(name) != len(autoNameFmt) || !strings.HasPrefix(name, "20") {
		return false
	}
	_, err := time.Parse(autoNameFmt, name)
	return err == nil
}

func setDefaults(v *viper.Viper) {
	userDir := defaultUserDirectory()
	v.SetDefault("recordings_directory", filepath.Join(filepath.Dir(userDir), "recordings"))
	v.SetDefault("session_name", "")
	v.SetDefault("user_directory", userDir)
	v.SetDefault("audio_source", defaultConfig.AudioSource)
	v.SetDefault("audio_sample_rate", defaultConfig.AudioSampleRate)
	v.SetDefault("record_eye", defaultConfig.RecordEye)
	v.SetDefault("raw_jpeg", false)
	v.SetDefault("binocular", false)
	v.SetDefault("show_info_menu", false)
	v.SetDefault("user_info", map[string]string{})
	v.SetDefault("frame.width", defaultConfig.Frame.Width)
	v.SetDefault("frame.height", defaultConfig.Frame.Height)
	v.SetDefault("frame.rate", defaultConfig.Frame.Rate)
	v.SetDefault("frame.jpeg", false)
	v.SetDefault("eye_channels", []map[string]any{{"type": "queue"}})
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "gazecapture")
	v.SetDefault("archive.region", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.use_path_style", false)
}

func newViper(configFile string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads configFile. A missing file yields the defaults; Save creates it.
func Load(configFile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}
	configFile = expandPath(configFile)

	v := newViper(configFile)
	if _, err := os.Stat(configFile); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	} else {
		slog.Debug("Config file not found, using defaults", "path", configFile)
	}

	return decode(v, configFile)
}

func decode(v *viper.Viper, configFile string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.path = configFile
	cfg.v = v

	cfg.RecordingsDirectory = expandPath(cfg.RecordingsDirectory)
	cfg.UserDirectory = expandPath(cfg.UserDirectory)
	if cfg.UserInfo == nil {
		cfg.UserInfo = map[string]string{}
	}

	// dated names are refreshed so a new day starts a new session
	if cfg.SessionName == "" || IsAutoSessionName(cfg.SessionName) {
		cfg.SessionName = AutoSessionName()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Path is the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Validate checks values that cannot be repaired with defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RecordingsDirectory) == "" {
		return fmt.Errorf("recordings_directory cannot be empty")
	}
	if c.Frame.Width <= 0 || c.Frame.Height <= 0 {
		return fmt.Errorf("frame size must be positive, got %dx%d", c.Frame.Width, c.Frame.Height)
	}
	if c.Frame.Rate <= 0 {
		return fmt.Errorf("frame.rate must be > 0, got: %.2f", c.Frame.Rate)
	}
	if c.AudioSampleRate <= 0 {
		return fmt.Errorf("audio_sample_rate must be > 0, got: %d", c.AudioSampleRate)
	}
	if !isValidAudioSource(c.AudioSource) {
		return fmt.Errorf("audio_source must be 'none' or a valid audio source, got: %q", c.AudioSource)
	}
	for i, ch := range c.EyeChannels {
		switch ch.Type {
		case "queue":
		case "redis":
			if ch.Address == "" {
				return fmt.Errorf("eye_channels[%d]: 'address' is required for redis", i)
			}
		default:
			return fmt.Errorf("eye_channels[%d]: type must be 'queue' or 'redis', got: %s", i, ch.Type)
		}
	}
	for key := range c.UserInfo {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("user_info keys cannot be empty")
		}
	}
	return nil
}

// SetRecordingsDirectory changes the recordings root. The old value is kept
// when path is not an existing, writable directory.
func (c *Config) SetRecordingsDirectory(path string) error {
	path = expandPath(strings.TrimSpace(path))
	if path == "" {
		return &recorder.ConfigError{Path: path, Err: errors.New("empty path")}
	}

	info, err := os.Stat(path)
	if err != nil {
		return &recorder.ConfigError{Path: path, Err: err}
	}
	if !info.IsDir() {
		return &recorder.ConfigError{Path: path, Err: errors.New("not a directory")}
	}

	tmp, err := os.CreateTemp(path, ".gazecapture-write-test-*")
	if err != nil {
		return &recorder.ConfigError{Path: path, Err: fmt.Errorf("not writable: %w", err)}
	}
	tmp.Close()
	os.Remove(tmp.Name())

	c.RecordingsDirectory = path
	return nil
}

// SetSessionName sets the session name; an empty name selects today's date.
func (c *Config) SetSessionName(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = AutoSessionName()
	}
	if strings.Contains(name, "/") {
		slog.Warn("Session name contains '/', sub-directories will be created", "session", name)
	}
	c.SessionName = name
}

// SetUserInfo adds or replaces a user info entry.
func (c *Config) SetUserInfo(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: empty user info key", recorder.ErrConfig)
	}
	if c.UserInfo == nil {
		c.UserInfo = map[string]string{}
	}
	c.UserInfo[key] = value
	return nil
}

// RemoveUserInfo deletes a user info entry.
func (c *Config) RemoveUserInfo(key string) {
	delete(c.UserInfo, strings.TrimSpace(key))
}

// Save writes the configuration back to its file.
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("no config file specified")
	}
	if c.v == nil {
		c.v = newViper(c.path)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// auto names are not persisted so the next start picks up the new date
	session := c.SessionName
	if IsAutoSessionName(session) {
		session = ""
	}

	channels := make([]map[string]any, len(c.EyeChannels))
	for i, ch := range c.EyeChannels {
		channels[i] = map[string]any{
			"type":     ch.Type,
			"address":  ch.Address,
			"password": ch.Password,
			"database": ch.Database,
			"topic":    ch.Topic,
		}
	}

	c.v.Set("recordings_directory", c.RecordingsDirectory)
	c.v.Set("session_name", session)
	c.v.Set("user_directory", c.UserDirectory)
	c.v.Set("audio_source", c.AudioSource)
	c.v.Set("audio_sample_rate", c.AudioSampleRate)
	c.v.Set("record_eye", c.RecordEye)
	c.v.Set("raw_jpeg", c.RawJPEG)
	c.v.Set("binocular", c.Binocular)
	c.v.Set("show_info_menu", c.ShowInfoMenu)
	c.v.Set("user_info", maps.Clone(c.UserInfo))
	c.v.Set("frame.width", c.Frame.Width)
	c.v.Set("frame.height", c.Frame.Height)
	c.v.Set("frame.rate", c.Frame.Rate)
	c.v.Set("frame.jpeg", c.Frame.JPEG)
	c.v.Set("eye_channels", channels)
	c.v.Set("archive.bucket", c.Archive.Bucket)
	c.v.Set("archive.prefix", c.Archive.Prefix)
	c.v.Set("archive.region", c.Archive.Region)
	c.v.Set("archive.endpoint", c.Archive.Endpoint)
	c.v.Set("archive.use_path_style", c.Archive.UsePathStyle)

	if err := c.v.WriteConfigAs(c.path); err != nil {
		return fmt.Errorf("error writing config file %s: %w", c.path, err)
	}
	return nil
}

// Watch calls onChange with the reloaded configuration whenever the file
// changes. Invalid edits are logged and ignored.
func (c *Config) Watch(onChange func(*Config)) {
	if c.v == nil {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		slog.Info("Config file changed", "path", e.Name)
		v := newViper(c.path)
		if err := v.ReadInConfig(); err != nil {
			slog.Error("Failed to reload config", "path", e.Name, "error", err)
			return
		}
		cfg, err := decode(v, c.path)
		if err != nil {
			slog.Error("Ignoring invalid config", "path", e.Name, "error", err)
			return
		}
		onChange(cfg)
	})
	c.v.WatchConfig()
}

// RecorderConfig maps the configuration onto the recorder settings.
func (c *Config) RecorderConfig(version string) recorder.Config {
	return recorder.Config{
		Root:        c.RecordingsDirectory,
		SessionName: c.SessionName,
		UserDir:     c.UserDirectory,
		AudioSource: c.AudioSource,
		RecordEye:   c.RecordEye,
		RawJPEG:     c.RawJPEG,
		Binocular:   c.Binocular,
		Version:     version,
		UserInfo:    maps.Clone(c.UserInfo),
		ShowInfo:    c.ShowInfoMenu,
		FrameWidth:  c.Frame.Width,
		FrameHeight: c.Frame.Height,
		FrameRate:   c.Frame.Rate,
		SourceJPEG:  c.Frame.JPEG,
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// isValidAudioSource checks if a source name is valid for JACK/PipeWire
func isValidAudioSource(source string) bool {
	source = strings.TrimSpace(source)

	if source == "" || source == "none" || source == "No Audio" {
		return true
	}

	// JACK/PipeWire device names may contain colons, the port is after the last one
	if i := strings.LastIndex(source, ":"); i != -1 {
		device := strings.TrimSpace(source[:i])
		port := strings.TrimSpace(source[i+1:])
		return device != "" && port != ""
	}

	return true
}
