package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"time"
)

// Synthetic generates a moving test pattern and matching pupil/gaze events.
// It stands in for a real camera when none is attached.
type Synthetic struct {
	Width  int
	Height int
	Rate   float64
	JPEG   bool

	// GlitchEvery, when > 0, repeats an earlier timestamp every n frames.
	GlitchEvery int
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// NewSynthetic returns a synthetic source with the given geometry.
func NewSynthetic(width, height int, rate float64, withJPEG bool) *Synthetic {
	return &Synthetic{Width: width, Height: height, Rate: rate, JPEG: withJPEG}
}

func (s *Synthetic) Name() string { return "synthetic" }

func (s *Synthetic) FrameSize() (int, int) { return s.Width, s.Height }

func (s *Synthetic) FrameRate() float64 { return s.Rate }

func (s *Synthetic) DeliversJPEG() bool { return s.JPEG }

// Run emits frames at Rate until ctx is cancelled.
func (s *Synthetic) Run(ctx context.Context, fn FrameFunc) error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	}
	if s.Rate <= 0 {
		return fmt.Errorf("invalid frame rate %v", s.Rate)
	}
	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.Rate))
	defer ticker.Stop()

	start := clock()
	var prev float64
	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		ts := clock().Sub(start).Seconds()
		if s.GlitchEvery > 0 && n > 0 && n%s.GlitchEvery == 0 {
			ts = prev
		}
		prev = ts

		frame, err := s.Frame(n, ts)
		if err != nil {
			return err
		}
		fn(frame, s.Events(n, ts))
	}
}

// Frame renders frame n.
func (s *Synthetic) Frame(n int, ts float64) (Frame, error) {
	frame := Frame{Timestamp: ts, Width: s.Width, Height: s.Height}
	pixels := make([]byte, s.Width*s.Height*3)
	shift := n % 256
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			off := (y*s.Width + x) * 3
			pixels[off] = byte((x + shift) % 256)
			pixels[off+1] = byte((y + shift) % 256)
			pixels[off+2] = byte(shift)
		}
	}

	if !s.JPEG {
		frame.Pixels = pixels
		return frame, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			off := (y*s.Width + x) * 3
			img.Set(x, y, color.RGBA{R: pixels[off+2], G: pixels[off+1], B: pixels[off], A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return Frame{}, fmt.Errorf("encode synthetic frame: %w", err)
	}
	frame.JPEG = buf.Bytes()
	return frame, nil
}

// Events returns one pupil detection per eye and one gaze point for frame n.
func (s *Synthetic) Events(n int, ts float64) Events {
	phase := float64(n) / math.Max(s.Rate, 1)
	x := 0.5 + 0.3*math.Cos(phase)
	y := 0.5 + 0.3*math.Sin(phase)

	return Events{
		Pupil: []PupilDatum{
			{Timestamp: ts, Confidence: 0.95, ID: 0, NormPos: [2]float64{x, y}, Diameter: 40 + 5*math.Sin(phase)},
			{Timestamp: ts, Confidence: 0.9, ID: 1, NormPos: [2]float64{x, y}, Diameter: 41 + 5*math.Sin(phase)},
		},
		Gaze: []GazeDatum{
			{Timestamp: ts, Confidence: 0.9, NormPos: [2]float64{x, 1 - y}},
		},
	}
}
