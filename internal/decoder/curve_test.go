/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"math"
	"testing"

	"github.com/friendsincode/grimnir-playback/internal/models"
)

func TestCurveGainEndpoints(t *testing.T) {
	for _, curve := range models.ValidFadeCurves {
		if got := curveGain(curve, 0, true); math.Abs(float64(got)) > 1e-6 {
			t.Errorf("%s fade-in at t=0: got %v, want 0", curve, got)
		}
		if got := curveGain(curve, 1, true); math.Abs(float64(got)-1) > 1e-6 {
			t.Errorf("%s fade-in at t=1: got %v, want 1", curve, got)
		}
		if got := curveGain(curve, 0, false); math.Abs(float64(got)-1) > 1e-6 {
			t.Errorf("%s fade-out at t=0: got %v, want 1", curve, got)
		}
		if got := curveGain(curve, 1, false); math.Abs(float64(got)) > 1e-6 {
			t.Errorf("%s fade-out at t=1: got %v, want 0", curve, got)
		}
	}
}

func TestCurveGainClampsOutOfRange(t *testing.T) {
	if got := curveGain(models.FadeCurveLinear, -1, true); got != 0 {
		t.Errorf("t<0 should clamp to 0 gain, got %v", got)
	}
	if got := curveGain(models.FadeCurveLinear, 2, true); got != 1 {
		t.Errorf("t>1 should clamp to 1 gain, got %v", got)
	}
}

func TestEqualPowerConstantPower(t *testing.T) {
	for _, t64 := range []float64{0, 0.25, 0.5, 0.75, 1} {
		in := curveGain(models.FadeCurveEqualPower, t64, true)
		out := curveGain(models.FadeCurveEqualPower, t64, false)
		sum := float64(in)*float64(in) + float64(out)*float64(out)
		if math.Abs(sum-1) > 1e-4 {
			t.Errorf("equal-power sum of squares at t=%v: got %v, want 1", t64, sum)
		}
	}
}

func TestExponentialAndLogarithmicDivergeAtMidpoints(t *testing.T) {
	// Exponential and Logarithmic are distinct curves (spec catalogue has
	// five), not a complementary pair that collapses to the same shape.
	for _, t64 := range []float64{0.1, 0.25, 0.4, 0.6, 0.75, 0.9} {
		exp := curveGain(models.FadeCurveExponential, t64, true)
		log := curveGain(models.FadeCurveLogarithmic, t64, true)
		if math.Abs(exp-log) < 1e-6 {
			t.Errorf("at t=%v, exponential (%v) and logarithmic (%v) should differ", t64, exp, log)
		}
	}
}

func TestGenerateEnvelopeLength(t *testing.T) {
	env := generateEnvelope(models.FadeCurveSCurve, true, 0, 1, 100)
	if len(env) != 100 {
		t.Fatalf("expected 100 samples, got %d", len(env))
	}
	if env[0] != 0 {
		t.Errorf("envelope start should be 0, got %v", env[0])
	}
	if math.Abs(env[99]-1) > 1e-6 {
		t.Errorf("envelope end should be ~1, got %v", env[99])
	}
}

func TestGenerateEnvelopeDegenerate(t *testing.T) {
	if env := generateEnvelope(models.FadeCurveLinear, true, 0, 1, 0); env != nil {
		t.Errorf("n=0 should return nil, got %v", env)
	}
	env := generateEnvelope(models.FadeCurveLinear, false, 0, 1, 1)
	if len(env) != 1 || env[0] != 1 {
		t.Errorf("n=1 fade-out starting at t=0 should be [1], got %v", env)
	}
}

func TestGenerateEnvelopePartialSpan(t *testing.T) {
	env := generateEnvelope(models.FadeCurveLinear, true, 0.25, 0.75, 3)
	want := []float64{0.25, 0.5, 0.75}
	for i, w := range want {
		if math.Abs(env[i]-w) > 1e-9 {
			t.Errorf("env[%d] = %v, want %v", i, env[i], w)
		}
	}
}
