/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/friendsincode/grimnir-playback/internal/models"
)

// curveGain evaluates one of the five closed fade curves at normalized
// progress t in [0,1]. fadeIn selects 0->1 (true) or 1->0 (false) direction.
// Exponential uses the perceptually smooth t^2/(t^2+(1-t)^2) shape and
// Logarithmic its inverse function, sqrt(t)/(sqrt(t)+sqrt(1-t)) (the same
// curve mirrored across the diagonal; the two meet only at t=0.5),
// S-Curve is the cubic 3t^2-2t^3 ease,
// Equal-Power uses the sin/cos quarter-period pair whose squared sum is
// constant across a crossfade, keeping perceived loudness level.
func curveGain(curve models.FadeCurve, t float64, fadeIn bool) float64 {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}

	var gain float64
	switch curve {
	case models.FadeCurveLinear:
		gain = t

	case models.FadeCurveExponential:
		gain = expoLogShape(t)

	case models.FadeCurveLogarithmic:
		gain = logShape(t)

	case models.FadeCurveSCurve:
		gain = 3*t*t - 2*t*t*t

	case models.FadeCurveEqualPower:
		if fadeIn {
			return math.Sin(t * math.Pi / 2)
		}
		return math.Cos(t * math.Pi / 2)

	default:
		gain = t
	}

	if !fadeIn {
		gain = 1 - gain
	}
	return gain
}

// logShape is the inverse of expoLogShape: sqrt(t)/(sqrt(t)+sqrt(1-t)).
func logShape(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	a, b := math.Sqrt(t), math.Sqrt(1-t)
	return a / (a + b)
}

// expoLogShape is the t^2/(t^2+(1-t)^2) form of the exponential curve.
func expoLogShape(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	sq := t * t
	comp := (1 - t) * (1 - t)
	return sq / (sq + comp)
}

// generateEnvelope builds a per-sample gain envelope of length n, covering
// the progress range [tStart,tEnd] through the fade, using the given curve
// and direction. gonum's floats.Span produces the evenly spaced progress
// values; curveGain maps each to a gain. tStart/tEnd need not be 0/1: the
// Fader calls this per decoded packet, which usually covers only a slice of
// the full fade.
func generateEnvelope(curve models.FadeCurve, fadeIn bool, tStart, tEnd float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{curveGain(curve, tStart, fadeIn)}
	}
	progress := make([]float64, n)
	floats.Span(progress, tStart, tEnd)

	out := make([]float64, n)
	for i, t := range progress {
		out[i] = curveGain(curve, t, fadeIn)
	}
	return out
}
