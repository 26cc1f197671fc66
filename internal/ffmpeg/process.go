// Package ffmpeg runs and stops external media processes.
package ffmpeg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultStopTimeout is how long a process gets to exit after being asked to.
const DefaultStopTimeout = 5 * time.Second

// LogLevel is the -loglevel passed to ffmpeg, taken from FFMPEG_LOGLEVEL.
func LogLevel() string {
	if level := os.Getenv("FFMPEG_LOGLEVEL"); level != "" {
		return level
	}
	return "error"
}

// Available reports whether the named binary can be found in PATH.
func Available(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}

// Options describe a process to start.
type Options struct {
	Args []string
	Env  []string
	// Stdin opens a pipe the caller can stream data into.
	Stdin bool
	// Label names the process in log lines.
	Label string
}

// Process is a running external command.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	label string
	out   *lineLogger

	done     chan struct{}
	waitErr  error
	stopOnce sync.Once
	stopErr  error
}

// Start launches opts.Args[0] with the remaining arguments.
func Start(opts Options) (*Process, error) {
	if len(opts.Args) == 0 {
		return nil, errors.New("no command given")
	}
	if opts.Label == "" {
		opts.Label = opts.Args[0]
	}

	cmd := exec.Command(opts.Args[0], opts.Args[1:]...)
	cmd.Env = append(os.Environ(), opts.Env...)

	out := &lineLogger{label: opts.Label}
	cmd.Stdout = out
	cmd.Stderr = out

	p := &Process{cmd: cmd, label: opts.Label, out: out, done: make(chan struct{})}

	if opts.Stdin {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
		}
		p.stdin = stdin
	}

	slog.Debug("Starting process", "label", opts.Label, "command", strings.Join(opts.Args, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", opts.Label, err)
	}

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// Stdin returns the input pipe, or nil when Options.Stdin was false.
func (p *Process) Stdin() io.Writer {
	if p.stdin == nil {
		return nil
	}
	return p.stdin
}

// Exited is closed once the process has terminated.
func (p *Process) Exited() <-chan struct{} {
	return p.done
}

// Output returns the tail of the combined process output.
func (p *Process) Output() string {
	return p.out.String()
}

// Finish closes stdin and waits for the process to drain and exit. If it
// does not exit within timeout it is interrupted.
func (p *Process) Finish(timeout time.Duration) error {
	if p.stdin != nil {
		p.stdin.Close()
	}
	select {
	case <-p.done:
		return p.Interrupt(timeout)
	case <-time.After(timeout):
		slog.Warn("Process did not exit after end of input, interrupting", "label", p.label)
		return p.Interrupt(timeout)
	}
}

// Interrupt sends SIGINT and waits up to timeout before killing the
// process. Exits caused by the interrupt are not errors. Safe to call more
// than once.
func (p *Process) Interrupt(timeout time.Duration) error {
	p.stopOnce.Do(func() {
		p.stopErr = p.interrupt(timeout)
	})
	return p.stopErr
}

func (p *Process) interrupt(timeout time.Duration) error {
	select {
	case <-p.done:
		return p.exitError()
	default:
	}

	if p.cmd.Process != nil {
		slog.Debug("Sending SIGINT", "label", p.label)
		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to send interrupt, killing", "label", p.label, "error", err)
			p.cmd.Process.Kill()
		}
	}

	select {
	case <-p.done:
		return p.exitError()
	case <-time.After(timeout):
		slog.Warn("Process did not exit within timeout, force killing", "label", p.label)
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		<-p.done
		return nil
	}
}

func (p *Process) exitError() error {
	err := p.waitErr
	if err == nil {
		slog.Debug("Process exited successfully", "label", p.label)
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ffmpeg exits with 255 when interrupted
		if exitErr.ExitCode() == 255 {
			return nil
		}
		if exitErr.ProcessState != nil {
			state := exitErr.ProcessState.String()
			if state == "signal: interrupt" || state == "signal: killed" {
				slog.Debug("Process exited due to signal", "label", p.label, "state", state)
				return nil
			}
		}
	}

	slog.Debug("Process output", "label", p.label, "output", p.Output())
	return fmt.Errorf("%s failed: %w", p.label, err)
}

const outputTail = 4096

// lineLogger forwards process output to slog line by line and keeps the
// last few kilobytes for error reports.
type lineLogger struct {
	label string

	mu      sync.Mutex
	partial []byte
	tail    []byte
}

func (l *lineLogger) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tail = append(l.tail, b...)
	if len(l.tail) > outputTail {
		l.tail = l.tail[len(l.tail)-outputTail:]
	}

	l.partial = append(l.partial, b...)
	for {
		i := bytes.IndexByte(l.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(l.partial[:i]), "\r")
		l.partial = l.partial[i+1:]
		if line != "" {
			slog.Debug("Process output", "label", l.label, "line", line)
		}
	}
	return len(b), nil
}

func (l *lineLogger) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return string(l.tail)
}
