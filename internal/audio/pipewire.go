package audio

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// PipeWire manages PipeWire/JACK port operations through pw-link.
type PipeWire struct {
	// run executes pw-link with the given arguments; tests replace it.
	run func(args ...string) ([]byte, error)
}

// NewPipeWire creates a new PipeWire instance
func NewPipeWire() *PipeWire {
	return &PipeWire{run: func(args ...string) ([]byte, error) {
		return exec.Command("pw-link", args...).CombinedOutput()
	}}
}

// ListPorts returns the capture ports that can feed the audio recorder.
func (pw *PipeWire) ListPorts() ([]string, error) {
	output, err := pw.run("-o")
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePorts(string(output)), nil
}

func parsePorts(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Input ports:") && !strings.HasPrefix(line, "Output ports:") {
			ports = append(ports, line)
		}
	}
	return ports
}

// ValidatePort checks that a port exists exactly once.
func (pw *PipeWire) ValidatePort(portName string) error {
	if portName == "" || portName == None {
		return nil
	}

	ports, err := pw.ListPorts()
	if err != nil {
		return err
	}
	return validatePortInList(portName, ports)
}

func validatePortInList(portName string, ports []string) error {
	duplicates := findPortDuplicatesInList(portName, ports)
	if len(duplicates) == 0 {
		return fmt.Errorf("port not found: %s", portName)
	}
	if len(duplicates) > 1 {
		return fmt.Errorf("duplicate sources detected for '%s': %v. Please close conflicting applications", portName, duplicates)
	}
	return nil
}

// findPortDuplicatesInList finds all ports with exactly the same name
func findPortDuplicatesInList(portName string, allPorts []string) []string {
	var duplicates []string
	for _, port := range allPorts {
		if port == portName {
			duplicates = append(duplicates, port)
		}
	}
	return duplicates
}

// portExists checks if a port exists in the current graph
func (pw *PipeWire) portExists(portName string) bool {
	output, err := pw.run("-io")
	if err != nil {
		slog.Debug("Failed to check port existence", "port", portName, "error", err)
		return false
	}
	for _, port := range parsePorts(string(output)) {
		if port == portName {
			return true
		}
	}
	return false
}

// WaitForPort polls until portName appears or timeout elapses.
func (pw *PipeWire) WaitForPort(portName string, timeout time.Duration, stop <-chan struct{}) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pw.portExists(portName) {
			slog.Debug("Port found", "port", portName)
			return nil
		}
		select {
		case <-stop:
			return fmt.Errorf("stopped while waiting for port: %s", portName)
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("timeout waiting for port: %s", portName)
}

// ConnectPortsWithRetry connects two ports, retrying while the source is
// not yet available.
func (pw *PipeWire) ConnectPortsWithRetry(sourcePort, destPort string, stop <-chan struct{}) error {
	maxRetries, retryDelay := 5, 500*time.Millisecond
	if isEphemeralPort(sourcePort) {
		// Applications may take longer to register their ports than hardware.
		maxRetries, retryDelay = 15, time.Second
	}
	slog.Debug("Connecting ports", "source", sourcePort, "dest", destPort, "retries", maxRetries)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if pw.portExists(sourcePort) {
			err := pw.connectPorts(sourcePort, destPort)
			if err == nil {
				slog.Debug("Connected ports", "source", sourcePort, "dest", destPort, "attempt", attempt)
				return nil
			}
			slog.Debug("Connection attempt failed", "source", sourcePort, "dest", destPort, "attempt", attempt, "error", err)
		} else {
			slog.Debug("Source port not yet available", "source", sourcePort, "attempt", attempt)
		}

		if attempt < maxRetries {
			select {
			case <-stop:
				return fmt.Errorf("stopped before %s was connected", sourcePort)
			case <-time.After(retryDelay):
			}
		}
	}

	return fmt.Errorf("failed to connect %s to %s after %d attempts", sourcePort, destPort, maxRetries)
}

func (pw *PipeWire) connectPorts(sourcePort, destPort string) error {
	output, err := pw.run(sourcePort, destPort)
	if err != nil {
		return fmt.Errorf("failed to connect ports: %w (output: %s)", err, string(output))
	}
	return nil
}

// isEphemeralPort reports whether a port belongs to an application rather
// than a capture device.
func isEphemeralPort(portName string) bool {
	lowerPort := strings.ToLower(portName)

	ephemeralApps := []string{
		"chrome", "firefox", "spotify", "discord", "steam",
		"vlc", "mpv", "zoom", "teams", "slack", "wire",
	}

	for _, app := range ephemeralApps {
		if strings.Contains(lowerPort, app) {
			return true
		}
	}
	return false
}
