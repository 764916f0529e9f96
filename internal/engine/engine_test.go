/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir-playback/internal/decoder"
	"github.com/friendsincode/grimnir-playback/internal/models"
)

func TestFrameBoundsConvertsTicksToWorkingRateFrames(t *testing.T) {
	e := &Engine{settings: Settings{WorkingSampleRate: 44100}}
	at := models.AppliedTiming{
		Start:        0,
		End:          28_224_000, // exactly one second of ticks
		FadeOutStart: 14_112_000, // half a second
	}
	fadeOutStart, end := e.frameBounds(at)
	if end != 44100 {
		t.Errorf("expected end frame 44100, got %d", end)
	}
	if fadeOutStart != 22050 {
		t.Errorf("expected fade-out-start frame 22050, got %d", fadeOutStart)
	}
}

func TestLeadInFramesConvertsOffsetFromStart(t *testing.T) {
	e := &Engine{settings: Settings{WorkingSampleRate: 44100}}
	at := models.AppliedTiming{Start: 0, LeadIn: 14_112_000} // half a second in
	if got := e.leadInFrames(at); got != 22050 {
		t.Errorf("expected 22050 lead-in frames, got %d", got)
	}
}

func TestDegradedTimingShortensLongFades(t *testing.T) {
	at := models.AppliedTiming{
		Start:        0,
		End:          28_224_000 * 10, // 10s passage
		FadeInEnd:    28_224_000 * 5,  // 5s fade-in
		FadeOutStart: 28_224_000 * 6,  // 4s fade-out
	}
	got := degradedTiming(at)
	if got.FadeInEnd != at.Start+degradedFadeTicks {
		t.Errorf("expected fade-in shortened to %d, got %d", at.Start+degradedFadeTicks, got.FadeInEnd)
	}
	if got.FadeOutStart != at.End-degradedFadeTicks {
		t.Errorf("expected fade-out shortened to %d, got %d", at.End-degradedFadeTicks, got.FadeOutStart)
	}
}

func TestDegradedTimingNeverLengthensAnAlreadyShortFade(t *testing.T) {
	at := models.AppliedTiming{
		Start:        0,
		End:          28_224_000, // 1s passage
		FadeInEnd:    1_000,      // far shorter than the substitute
		FadeOutStart: 28_224_000 - 1_000,
	}
	got := degradedTiming(at)
	if got.FadeInEnd != at.FadeInEnd {
		t.Errorf("expected fade-in left at %d, got %d", at.FadeInEnd, got.FadeInEnd)
	}
	if got.FadeOutStart != at.FadeOutStart {
		t.Errorf("expected fade-out left at %d, got %d", at.FadeOutStart, got.FadeOutStart)
	}
}

func TestDegradedTimingClampsOverlapOnVeryShortPassages(t *testing.T) {
	at := models.AppliedTiming{
		Start:        0,
		End:          10_000, // far shorter than twice the substitute fade
		FadeInEnd:    10_000,
		FadeOutStart: 10_000,
	}
	got := degradedTiming(at)
	if got.FadeOutStart < got.FadeInEnd {
		t.Errorf("fade-out start %d should never precede fade-in end %d", got.FadeOutStart, got.FadeInEnd)
	}
}

func TestQueuePositionOfReportsMinusOneForUnassignedChain(t *testing.T) {
	e := &Engine{
		bm:       decoder.NewBufferManager(2, 4096, 512, 1024, zerolog.Nop()),
		assigned: make(map[string]int),
		timing:   make(map[string]models.AppliedTiming),
		ready:    make(map[string]bool),
	}
	if pos := e.queuePositionOf(0); pos != -1 {
		t.Errorf("expected -1 for an unassigned chain, got %d", pos)
	}
}

func TestQueuePositionOfIgnoresOrderForUnassignedChain(t *testing.T) {
	e := &Engine{
		bm: decoder.NewBufferManager(1, 4096, 512, 1024, zerolog.Nop()),
		order: []models.QueueEntry{
			{ID: "a"},
			{ID: "b"},
		},
	}
	// Directly exercise the lookup semantics queuePositionOf relies on,
	// without poking at Chain's unexported entryID field from another
	// package: chain 0 has no entry assigned yet, so it must read -1
	// regardless of what's in order.
	if pos := e.queuePositionOf(0); pos != -1 {
		t.Errorf("expected -1 for a chain with no assigned entry, got %d", pos)
	}
}
