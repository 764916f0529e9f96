/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mixer

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir-playback/internal/decoder"
)

func newFilledChain(t *testing.T, frames int, value float32) *decoder.Chain {
	t.Helper()
	c := decoder.NewChain(0, frames*2, zerolog.Nop())
	buf := make([]float32, frames*2)
	for i := range buf {
		buf[i] = value
	}
	c.Ring.Write(buf)
	c.Ring.SetEOF()
	return c
}

func TestMixerIdleEmitsSilence(t *testing.T) {
	m := New(44100, 500*time.Millisecond, nil, zerolog.Nop())
	out := make([]float32, 20)
	m.PullFrames(out, 10)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("idle mixer should emit silence, got nonzero at %d: %v", i, v)
		}
	}
}

func TestMixerSingleReadsAndClamps(t *testing.T) {
	m := New(44100, 500*time.Millisecond, nil, zerolog.Nop())
	c := newFilledChain(t, 10, 2.0) // deliberately out of range, mixer must clamp

	m.AttachSingle(c, "entry-1", 1000, 10)
	out := make([]float32, 10*2)
	m.PullFrames(out, 5)

	for _, v := range out[:10] {
		if v != 1.0 {
			t.Errorf("expected clamp to 1.0, got %v", v)
		}
	}
}

func TestMixerSingleTransitionsToIdleAtEnd(t *testing.T) {
	m := New(44100, 500*time.Millisecond, nil, zerolog.Nop())
	c := newFilledChain(t, 5, 0.5)

	m.AttachSingle(c, "entry-1", 1000, 5)
	out := make([]float32, 20)
	m.PullFrames(out, 10) // more than available; should drain then complete

	if m.State() != StateIdle {
		t.Fatalf("expected Idle after passage end, got %v", m.State())
	}
	id, _, ok := m.TakeCompleted()
	if !ok || id != "entry-1" {
		t.Fatalf("expected completed entry-1, got %q ok=%v", id, ok)
	}
}

func TestMixerCrossfadeSumsSources(t *testing.T) {
	m := New(44100, 500*time.Millisecond, nil, zerolog.Nop())
	out1 := newFilledChain(t, 10, 0.3)
	in1 := newFilledChain(t, 10, 0.4)

	m.AttachSingle(out1, "outgoing", 0, 100) // fadeOutStartFrame=0 forces immediate crossfade
	m.ArmIncoming(in1, "incoming", 100, 0)

	buf := make([]float32, 10*2)
	m.PullFrames(buf, 5) // first pull triggers Single->Crossfading, reads outgoing only this call...

	if m.State() != StateCrossfading {
		t.Fatalf("expected Crossfading, got %v", m.State())
	}

	buf2 := make([]float32, 10*2)
	m.PullFrames(buf2, 5)
	for _, v := range buf2[:10] {
		want := float32(0.7)
		if v < want-1e-5 || v > want+1e-5 {
			t.Errorf("expected summed 0.3+0.4=0.7, got %v", v)
		}
	}
}

func TestMixerSeekOnlyValidInSingle(t *testing.T) {
	m := New(44100, 500*time.Millisecond, nil, zerolog.Nop())
	if err := m.Seek("none", 0); err != ErrInvalidStateForSeek {
		t.Fatalf("expected ErrInvalidStateForSeek when idle, got %v", err)
	}

	c := newFilledChain(t, 10, 0.1)
	m.AttachSingle(c, "entry-1", 1000, 10)
	if err := m.Seek("entry-1", 3); err != nil {
		t.Fatalf("expected seek to succeed in single state, got %v", err)
	}
}

func TestArmIncomingPullsTriggerEarlierByLeadIn(t *testing.T) {
	m := New(44100, 500*time.Millisecond, nil, zerolog.Nop())
	c := newFilledChain(t, 100, 0.1)
	m.AttachSingle(c, "entry-1", 1000, 2000)

	m.ArmIncoming(newFilledChain(t, 100, 0.2), "entry-2", 2000, 300)

	if got := m.outgoing.fadeOutStartFrame; got != 700 {
		t.Fatalf("expected fade-out trigger pulled back to 700, got %d", got)
	}
}

func TestArmIncomingLeadInNeverTriggersInThePast(t *testing.T) {
	m := New(44100, 500*time.Millisecond, nil, zerolog.Nop())
	c := newFilledChain(t, 100, 0.1)
	m.AttachSingle(c, "entry-1", 1000, 2000)
	m.outgoing.position = 900

	m.ArmIncoming(newFilledChain(t, 100, 0.2), "entry-2", 2000, 500)

	if got := m.outgoing.fadeOutStartFrame; got != 900 {
		t.Fatalf("trigger should clamp to current position 900, got %d", got)
	}
}

func TestMixerForceCrossfadeRequiresArmedIncoming(t *testing.T) {
	m := New(44100, 500*time.Millisecond, nil, zerolog.Nop())
	c := newFilledChain(t, 10, 0.1)
	m.AttachSingle(c, "entry-1", 1000, 10)

	if m.ForceCrossfade() {
		t.Fatal("expected ForceCrossfade to fail with no incoming armed")
	}
	m.ArmIncoming(newFilledChain(t, 10, 0.2), "entry-2", 10, 0)
	if !m.ForceCrossfade() {
		t.Fatal("expected ForceCrossfade to succeed once incoming armed")
	}
	if m.State() != StateCrossfading {
		t.Fatalf("expected Crossfading, got %v", m.State())
	}
}
