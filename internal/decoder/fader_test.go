/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"testing"

	"github.com/friendsincode/grimnir-playback/internal/models"
)

func TestFaderGainAtBoundaries(t *testing.T) {
	f := NewFader(0, 100, 900, 1000, models.FadeCurveLinear, models.FadeCurveLinear)

	if g := f.GainAt(-1); g != 0 {
		t.Errorf("before start: got %v, want 0", g)
	}
	if g := f.GainAt(0); g != 0 {
		t.Errorf("at start: got %v, want 0", g)
	}
	if g := f.GainAt(100); g != 1 {
		t.Errorf("fade-in end: got %v, want 1", g)
	}
	if g := f.GainAt(500); g != 1 {
		t.Errorf("sustain region: got %v, want 1", g)
	}
	if g := f.GainAt(1000); g != 0 {
		t.Errorf("at end: got %v, want 0", g)
	}
	if g := f.GainAt(1001); g != 0 {
		t.Errorf("past end: got %v, want 0", g)
	}
}

func TestFaderApplyAdvancesPosition(t *testing.T) {
	f := NewFader(0, 10, 90, 100, models.FadeCurveLinear, models.FadeCurveLinear)
	frames := make([]float32, 20) // 10 stereo frames
	for i := range frames {
		frames[i] = 1.0
	}

	next := f.Apply(frames, 0)
	if next != 10 {
		t.Fatalf("expected position to advance by 10, got %d", next)
	}
	if frames[0] != 0 {
		t.Errorf("first frame should be fully faded out, got %v", frames[0])
	}
	if frames[18] <= 0.8 {
		t.Errorf("last frame of fade-in should be near full gain, got %v", frames[18])
	}
}

func TestFaderNoFadeInWhenStartEqualsFadeInEnd(t *testing.T) {
	f := NewFader(0, 0, 900, 1000, models.FadeCurveLinear, models.FadeCurveLinear)
	if g := f.GainAt(0); g != 1 {
		t.Errorf("zero-length fade-in should leave gain at 1 immediately, got %v", g)
	}
}
