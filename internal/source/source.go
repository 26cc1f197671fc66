package source

import (
	"context"
)

// Frame is a single world camera frame handed to the recorder.
type Frame struct {
	Timestamp float64
	Width     int
	Height    int

	// JPEG holds the compressed payload when the camera delivers MJPEG.
	JPEG []byte
	// Pixels holds packed BGR24 data when JPEG is empty.
	Pixels []byte
}

// PupilDatum is one pupil detection result.
type PupilDatum struct {
	Timestamp  float64    `json:"timestamp"`
	Confidence float64    `json:"confidence"`
	ID         int        `json:"id"`
	NormPos    [2]float64 `json:"norm_pos"`
	Diameter   float64    `json:"diameter"`
}

// GazeDatum is one mapped gaze point.
type GazeDatum struct {
	Timestamp  float64    `json:"timestamp"`
	Confidence float64    `json:"confidence"`
	NormPos    [2]float64 `json:"norm_pos"`
}

// Events are the detections that arrived since the previous frame.
type Events struct {
	Pupil []PupilDatum
	Gaze  []GazeDatum
}

// FrameFunc receives frames on the source's delivery goroutine.
type FrameFunc func(Frame, Events)

// Source is a world camera plus the detectors attached to it.
type Source interface {
	Name() string
	FrameSize() (width, height int)
	FrameRate() float64
	// DeliversJPEG reports whether frames carry an MJPEG payload that can be
	// dumped without re-encoding.
	DeliversJPEG() bool
	// Run delivers frames to fn until ctx is done.
	Run(ctx context.Context, fn FrameFunc) error
}
