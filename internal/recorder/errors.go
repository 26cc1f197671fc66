package recorder

import (
	"errors"
	"fmt"
)

var (
	ErrConfig                    = errors.New("recorder: invalid configuration")
	ErrDirectory                 = errors.New("recorder: attempt directory unavailable")
	ErrSinkOpen                  = errors.New("recorder: sink failed to open")
	ErrOptionalArtifact          = errors.New("recorder: optional artifact skipped")
	ErrTimestampRepairIncomplete = errors.New("recorder: timestamps could not be fully repaired")
	ErrTransport                 = errors.New("recorder: eye channel send failed")

	ErrAlreadyRecording = errors.New("recorder: already recording")
	ErrNotRecording     = errors.New("recorder: not recording")
)

// ConfigError reports an invalid or unwritable recordings path.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid recordings directory %q: %v", e.Path, e.Err)
}
func (e *ConfigError) Unwrap() error        { return e.Err }
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// DirectoryError reports that no attempt directory could be created.
type DirectoryError struct {
	Path string
	Err  error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("failed to create attempt directory in %s: %v", e.Path, e.Err)
}
func (e *DirectoryError) Unwrap() error        { return e.Err }
func (e *DirectoryError) Is(target error) bool { return target == ErrDirectory }

// SinkOpenError reports that the video or audio sink could not be opened.
type SinkOpenError struct {
	Sink string
	Err  error
}

func (e *SinkOpenError) Error() string {
	return fmt.Sprintf("failed to open %s sink: %v", e.Sink, e.Err)
}
func (e *SinkOpenError) Unwrap() error        { return e.Err }
func (e *SinkOpenError) Is(target error) bool { return target == ErrSinkOpen }

// OptionalArtifactError reports a skipped optional finalization step.
type OptionalArtifactError struct {
	Artifact string
	Err      error
}

func (e *OptionalArtifactError) Error() string {
	return fmt.Sprintf("skipped %s: %v", e.Artifact, e.Err)
}
func (e *OptionalArtifactError) Unwrap() error        { return e.Err }
func (e *OptionalArtifactError) Is(target error) bool { return target == ErrOptionalArtifact }

// TimestampRepairIncomplete reports that the persisted timestamps are a
// best-effort repair.
type TimestampRepairIncomplete struct {
	Runs int
}

func (e *TimestampRepairIncomplete) Error() string {
	return fmt.Sprintf("timestamps still inconsistent after %d correction runs", e.Runs)
}
func (e *TimestampRepairIncomplete) Is(target error) bool {
	return target == ErrTimestampRepairIncomplete
}

// TransportError reports a failed message to the eye processes.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string        { return fmt.Sprintf("eye channel: %v", e.Err) }
func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }
