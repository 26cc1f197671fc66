// Package timestamps repairs capture timestamp series before they are persisted.
package timestamps

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/interp"
)

const (
	// DefaultDamper is the number of samples marked dirty after each detected fault.
	DefaultDamper = 50
	// DefaultJumpThreshold is the largest forward step, in seconds, treated as continuous.
	DefaultJumpThreshold = 1.0
	// DefaultMaxRuns bounds the number of refits attempted before giving up.
	DefaultMaxRuns = 4
)

// Result is the outcome of a sanitize call.
type Result struct {
	Series    []float64
	Runs      int
	Converged bool
}

// Sanitizer holds the repair policy. Zero fields fall back to the defaults.
type Sanitizer struct {
	Damper        int
	JumpThreshold float64
	MaxRuns       int
	Logger        *slog.Logger
}

// Sanitize repairs ts with the default policy.
func Sanitize(ts []float64) Result {
	return Sanitizer{}.Sanitize(ts)
}

// Sanitize returns a copy of ts that is non-decreasing and free of forward
// jumps above the threshold. When the series cannot be repaired within
// MaxRuns refits the last attempt is returned with Converged set to false.
func (s Sanitizer) Sanitize(ts []float64) Result {
	s = s.withDefaults()

	out := make([]float64, len(ts))
	copy(out, ts)
	if len(out) < 2 {
		return Result{Series: out, Converged: true}
	}

	for runs := 0; ; runs++ {
		mask := s.cleanMask(out)
		if allClean(mask) {
			if runs > 0 {
				s.Logger.Debug("Timestamps repaired", "runs", runs)
			} else {
				s.Logger.Debug("Timestamps are clean")
			}
			return Result{Series: out, Runs: runs, Converged: true}
		}

		if runs == s.MaxRuns {
			s.Logger.Error("Timestamps could not be fixed", "runs", runs)
			return Result{Series: out, Runs: runs, Converged: false}
		}

		s.Logger.Warn("Non-monotonic or jumpy timestamps detected, refitting", "run", runs+1, "dirty", countDirty(mask))
		refit, err := refit(out, mask)
		if err != nil {
			s.Logger.Error("Timestamps could not be fixed", "runs", runs, "error", err)
			return Result{Series: out, Runs: runs, Converged: false}
		}
		out = refit
	}
}

func (s Sanitizer) withDefaults() Sanitizer {
	if s.Damper <= 0 {
		s.Damper = DefaultDamper
	}
	if s.JumpThreshold <= 0 {
		s.JumpThreshold = DefaultJumpThreshold
	}
	if s.MaxRuns <= 0 {
		s.MaxRuns = DefaultMaxRuns
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	return s
}

// cleanMask marks every index that sits inside a damper window after a
// reversal (forward scan) or before a large jump (backward scan). The last
// index is always trusted.
func (s Sanitizer) cleanMask(ts []float64) []bool {
	n := len(ts)
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}

	damper := 0
	for i := 0; i < n-1; i++ {
		if ts[i] >= ts[i+1] {
			damper = s.Damper
		}
		if damper > 0 {
			mask[i] = false
			damper--
		}
	}

	damper = 0
	for i := n - 2; i >= 0; i-- {
		if ts[i+1]-ts[i] > s.JumpThreshold {
			damper = s.Damper
		}
		if damper > 0 {
			mask[i] = false
			damper--
		}
	}

	return mask
}

// refit regenerates every index from a monotone cubic through the trusted
// indices. Outside the trusted range the edge secants are extended linearly.
func refit(ts []float64, mask []bool) ([]float64, error) {
	var xs, ys []float64
	for i, clean := range mask {
		if clean {
			xs = append(xs, float64(i))
			ys = append(ys, ts[i])
		}
	}

	if len(xs) < 2 {
		return nil, fmt.Errorf("too few trusted timestamps to refit (%d of %d)", len(xs), len(ts))
	}

	var fb interp.FritschButland
	if err := fb.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fit monotone spline: %w", err)
	}

	first, last := 0, len(xs)-1
	headSlope := (ys[1] - ys[0]) / (xs[1] - xs[0])
	tailSlope := (ys[last] - ys[last-1]) / (xs[last] - xs[last-1])

	out := make([]float64, len(ts))
	for i := range out {
		x := float64(i)
		switch {
		case x < xs[first]:
			out[i] = ys[first] + (x-xs[first])*headSlope
		case x > xs[last]:
			out[i] = ys[last] + (x-xs[last])*tailSlope
		default:
			out[i] = fb.Predict(x)
		}
	}
	return out, nil
}

func allClean(mask []bool) bool {
	for _, clean := range mask {
		if !clean {
			return false
		}
	}
	return true
}

func countDirty(mask []bool) int {
	n := 0
	for _, clean := range mask {
		if !clean {
			n++
		}
	}
	return n
}
