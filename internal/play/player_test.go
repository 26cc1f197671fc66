package play

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/audiolibrelab/gazecapture/internal/audio"
	"github.com/audiolibrelab/gazecapture/internal/video"
)

func fakePlayer(installed ...string) *Player {
	return &Player{
		Players: DefaultPlayers,
		lookPath: func(name string) (string, error) {
			if slices.Contains(installed, name) {
				return "/usr/bin/" + name, nil
			}
			return "", exec.ErrNotFound
		},
		run: func(*exec.Cmd) error { return nil },
	}
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name      string
		files     []string
		installed []string
		want      []string
	}{
		{
			name:      "mpv with audio",
			files:     []string{video.EncodedFile, audio.File},
			installed: []string{"mpv", "ffplay"},
			want:      []string{"mpv", "--audio-file=DIR/" + audio.File, "DIR/" + video.EncodedFile},
		},
		{
			name:      "raw video on ffplay",
			files:     []string{video.RawFile},
			installed: []string{"ffplay"},
			want:      []string{"ffplay", "-autoexit", "-f", "mjpeg", "DIR/" + video.RawFile},
		},
		{
			name:      "vlc without audio",
			files:     []string{video.EncodedFile},
			installed: []string{"vlc"},
			want:      []string{"vlc", "--play-and-exit", "DIR/" + video.EncodedFile},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			touch(t, dir, tt.files...)

			cmd, err := fakePlayer(tt.installed...).Command(dir)
			if err != nil {
				t.Fatalf("Command failed: %v", err)
			}

			want := make([]string, len(tt.want))
			for i, a := range tt.want {
				want[i] = strings.Replace(a, "DIR", dir, 1)
			}
			if !slices.Equal(cmd.Args, want) {
				t.Errorf("args = %v, want %v", cmd.Args, want)
			}
		})
	}
}

func TestCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := fakePlayer("mpv").Command(dir); !errors.Is(err, ErrNoVideo) {
		t.Errorf("expected ErrNoVideo, got %v", err)
	}

	touch(t, dir, video.EncodedFile)
	if _, err := fakePlayer().Command(dir); err == nil {
		t.Error("expected error without any player")
	}
}

func TestPlay_RunFailure(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, video.EncodedFile)

	p := fakePlayer("mpv")
	p.run = func(*exec.Cmd) error { return errors.New("exit status 1") }
	if err := p.Play(dir); err == nil {
		t.Error("expected playback error")
	}
}
