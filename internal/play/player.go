// Package play opens a recorded attempt in an external media player.
package play

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/gazecapture/internal/artifact"
	"github.com/audiolibrelab/gazecapture/internal/audio"
	"github.com/audiolibrelab/gazecapture/internal/video"
)

var ErrNoVideo = errors.New("attempt has no world video")

// DefaultPlayers in order of preference.
var DefaultPlayers = []string{"mpv", "vlc", "ffplay"}

type Player struct {
	Players []string

	lookPath func(string) (string, error)
	run      func(*exec.Cmd) error
}

func New() *Player {
	return &Player{
		Players:  DefaultPlayers,
		lookPath: exec.LookPath,
		run:      (*exec.Cmd).Run,
	}
}

// Play blocks until the player exits.
func (p *Player) Play(dir string) error {
	cmd, err := p.Command(dir)
	if err != nil {
		return err
	}

	slog.Info("Playing attempt", "dir", dir, "command", strings.Join(cmd.Args, " "))
	if err := p.run(cmd); err != nil {
		return fmt.Errorf("playback failed with %s: %w", filepath.Base(cmd.Path), err)
	}
	return nil
}

// Command builds the player invocation for the world video of dir, with the
// world audio attached when the player supports a separate audio file.
func (p *Player) Command(dir string) (*exec.Cmd, error) {
	videoPath, raw, err := worldVideo(dir)
	if err != nil {
		return nil, err
	}
	audioPath := filepath.Join(dir, audio.File)
	if !artifact.Exists(audioPath) {
		audioPath = ""
	}

	player, err := p.findPlayer()
	if err != nil {
		return nil, err
	}

	var args []string
	switch player {
	case "mpv":
		if raw {
			args = append(args, "--demuxer-lavf-format=mjpeg")
		}
		if audioPath != "" {
			args = append(args, "--audio-file="+audioPath)
		}
	case "vlc":
		args = append(args, "--play-and-exit")
		if raw {
			args = append(args, "--demux=mjpeg")
		}
		if audioPath != "" {
			args = append(args, "--input-slave="+audioPath)
		}
	case "ffplay":
		args = append(args, "-autoexit")
		if raw {
			args = append(args, "-f", "mjpeg")
		}
	default:
		return nil, fmt.Errorf("unsupported player: %s", player)
	}
	args = append(args, videoPath)

	return exec.Command(player, args...), nil
}

func worldVideo(dir string) (string, bool, error) {
	if path := filepath.Join(dir, video.EncodedFile); artifact.Exists(path) {
		return path, false, nil
	}
	if path := filepath.Join(dir, video.RawFile); artifact.Exists(path) {
		return path, true, nil
	}
	return "", false, fmt.Errorf("%w: %s", ErrNoVideo, dir)
}

func (p *Player) findPlayer() (string, error) {
	for _, player := range p.Players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no video player found (tried: %s)", strings.Join(p.Players, ", "))
}
