/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"gonum.org/v1/gonum/floats"

	"github.com/friendsincode/grimnir-playback/internal/models"
)

// Fader multiplies decoded samples by the pre-computed fade-in/fade-out
// gain envelope for a chain. The envelope is derived once from the
// chain's applied timing (expressed in working-rate frames, relative to
// the passage's start) and then applied analytically per frame as packets
// arrive — equivalent to baking a full envelope array but without
// allocating one for the whole passage.
type Fader struct {
	startFrame        int64
	fadeInEndFrame    int64
	fadeOutStartFrame int64
	endFrame          int64
	curveIn           models.FadeCurve
	curveOut          models.FadeCurve
}

// NewFader builds a fader from applied timing already converted to
// working-rate frame offsets relative to the passage start (frame 0 ==
// AppliedTiming.Start).
func NewFader(startFrame, fadeInEndFrame, fadeOutStartFrame, endFrame int64, curveIn, curveOut models.FadeCurve) *Fader {
	return &Fader{
		startFrame:        startFrame,
		fadeInEndFrame:    fadeInEndFrame,
		fadeOutStartFrame: fadeOutStartFrame,
		endFrame:          endFrame,
		curveIn:           curveIn,
		curveOut:          curveOut,
	}
}

// GainAt returns the envelope gain at absolute frame position pos (frames
// elapsed since passage start). Outside [startFrame,endFrame] gain is 0.
func (f *Fader) GainAt(pos int64) float32 {
	if pos < f.startFrame || pos > f.endFrame {
		return 0
	}
	if pos < f.fadeInEndFrame && f.fadeInEndFrame > f.startFrame {
		t := float64(pos-f.startFrame) / float64(f.fadeInEndFrame-f.startFrame)
		return float32(curveGain(f.curveIn, t, true))
	}
	if pos >= f.fadeOutStartFrame && f.endFrame > f.fadeOutStartFrame {
		t := float64(pos-f.fadeOutStartFrame) / float64(f.endFrame-f.fadeOutStartFrame)
		return float32(curveGain(f.curveOut, t, false))
	}
	return 1.0
}

// Apply multiplies frames (interleaved stereo) in place, where frames[0]
// corresponds to absolute position startPos. It returns the position just
// past the last frame processed, for the caller to pass as the next call's
// startPos.
func (f *Fader) Apply(frames []float32, startPos int64) int64 {
	numFrames := len(frames) / 2
	if numFrames == 0 {
		return startPos
	}

	gains := f.gainsFor(startPos, numFrames)

	left := make([]float64, numFrames)
	right := make([]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		left[i] = float64(frames[i*2])
		right[i] = float64(frames[i*2+1])
	}
	floats.Mul(left, gains)
	floats.Mul(right, gains)
	for i := 0; i < numFrames; i++ {
		frames[i*2] = float32(left[i])
		frames[i*2+1] = float32(right[i])
	}
	return startPos + int64(numFrames)
}

// gainsFor returns the per-frame gain for numFrames frames starting at
// startPos. A decoded packet almost always falls entirely within one region
// (silence, fade-in, sustain, or fade-out), so that common case is built in
// a single gonum-backed span instead of numFrames individual curveGain
// calls; a packet straddling a region boundary falls back to GainAt per
// frame.
func (f *Fader) gainsFor(startPos int64, numFrames int) []float64 {
	endPos := startPos + int64(numFrames) - 1

	switch {
	case endPos < f.startFrame || startPos > f.endFrame:
		return make([]float64, numFrames)

	case startPos >= f.startFrame && endPos < f.fadeInEndFrame && f.fadeInEndFrame > f.startFrame:
		span := float64(f.fadeInEndFrame - f.startFrame)
		tStart := float64(startPos-f.startFrame) / span
		tEnd := float64(endPos-f.startFrame) / span
		return generateEnvelope(f.curveIn, true, tStart, tEnd, numFrames)

	case startPos >= f.fadeOutStartFrame && endPos <= f.endFrame && f.endFrame > f.fadeOutStartFrame:
		span := float64(f.endFrame - f.fadeOutStartFrame)
		tStart := float64(startPos-f.fadeOutStartFrame) / span
		tEnd := float64(endPos-f.fadeOutStartFrame) / span
		return generateEnvelope(f.curveOut, false, tStart, tEnd, numFrames)

	case startPos >= f.fadeInEndFrame && endPos < f.fadeOutStartFrame:
		out := make([]float64, numFrames)
		for i := range out {
			out[i] = 1
		}
		return out

	default:
		out := make([]float64, numFrames)
		for i := range out {
			out[i] = float64(f.GainAt(startPos + int64(i)))
		}
		return out
	}
}
