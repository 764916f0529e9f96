/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mixer implements the pull-model crossfade mixer: it reads from
// one or two decoder chains' ring buffers, sums and clamps, and hands the
// engine a single-slot handoff when a crossfade finishes. Fade envelopes
// are already pre-baked into chain samples by internal/decoder.Fader, so
// this package performs addition and clamping only, never curve math.
package mixer

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir-playback/internal/decoder"
)

// State is the mixer's coarse playback state.
type State string

const (
	StateIdle        State = "idle"
	StateSingle      State = "single"
	StateCrossfading State = "crossfading"
)

// ErrInvalidStateForSeek is returned by Seek when the mixer is not in
// Single state.
var ErrInvalidStateForSeek = errors.New("mixer: seek only valid in single state")

const (
	pauseDecayTimeConstant = 50 * time.Millisecond
	defaultResumeDuration  = 200 * time.Millisecond
)

// source tracks one chain currently feeding the mixer.
type source struct {
	chain             *decoder.Chain
	entryID           string
	position          int64 // frames delivered to output so far, relative to passage start
	endFrame          int64 // passage length in working-rate frames
	fadeOutStartFrame int64 // trigger point for auto-crossfade
	underrunSince     time.Time
}

func (s *source) reachedEnd() bool {
	return s.position >= s.endFrame || (s.chain.Ring.IsEOF() && s.chain.Ring.AvailableRead() == 0)
}

// completionInfo is what TakeCompleted hands back: which entry just
// finished, and whether it finished by actually crossfading into the next
// source (Crossfading->Single) or by plain end-of-passage with no
// crossfade in progress (->Idle). The two require different event/restart
// handling upstream.
type completionInfo struct {
	entryID      string
	wasCrossfade bool
}

// crossfadeStartedInfo is what TakeCrossfadeStarted hands back: the
// outgoing/incoming entry ids at the instant a Single->Crossfading
// transition fires, whether triggered naturally (fade-out point reached)
// or forced (skip).
type crossfadeStartedInfo struct {
	outgoingEntryID string
	incomingEntryID string
}

// Mixer is the crossfade state machine. All methods are safe for
// concurrent use; PullFrames is intended to be called from a single
// dedicated goroutine (or the audio callback) at a steady cadence.
type Mixer struct {
	mu    sync.Mutex
	state State

	outgoing *source
	incoming *source // set once the next passage is armed for crossfade

	paused     bool
	pauseGain  float64
	pausedAt   time.Time
	resumeFrom time.Time
	resumeDur  time.Duration

	underrunTimeout time.Duration
	workingRate     int

	completed        atomic.Pointer[completionInfo]
	crossfadeStarted atomic.Pointer[crossfadeStartedInfo]

	onUnderrun func(chainIndex int)
	log        zerolog.Logger
}

// New builds an idle mixer. underrunTimeout bounds how long a source may
// sit empty-but-not-EOF before being treated as EOF; onUnderrun (optional)
// is invoked once per underrun detection for telemetry/event wiring.
func New(workingRate int, underrunTimeout time.Duration, onUnderrun func(chainIndex int), log zerolog.Logger) *Mixer {
	return &Mixer{
		state:           StateIdle,
		underrunTimeout: underrunTimeout,
		workingRate:     workingRate,
		onUnderrun:      onUnderrun,
		pauseGain:       1.0,
		log:             log,
	}
}

func (m *Mixer) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AttachSingle moves the mixer from Idle to Single, playing chain as the
// sole source. fadeOutStartFrame/endFrame are working-rate frame offsets
// relative to the passage start, as resolved by the engine from applied
// timing.
func (m *Mixer) AttachSingle(chain *decoder.Chain, entryID string, fadeOutStartFrame, endFrame int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outgoing = &source{chain: chain, entryID: entryID, endFrame: endFrame, fadeOutStartFrame: fadeOutStartFrame}
	m.incoming = nil
	m.state = StateSingle
}

// ArmIncoming registers the next passage's chain so the mixer can trigger
// a crossfade into it once the current source reaches its fade-out start.
// leadInFrames is the incoming passage's lead-in point, expressed as an
// offset from its own passage start: the outgoing source's fade-out
// trigger is pulled earlier by that many frames, so the crossfade overlap
// covers the incoming's lead-in instead of starting only once the
// outgoing's own fade-out point arrives. Safe to call only while in Single
// state; a no-op from any other state.
func (m *Mixer) ArmIncoming(chain *decoder.Chain, entryID string, endFrame, leadInFrames int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSingle || m.outgoing == nil {
		return
	}
	m.incoming = &source{chain: chain, entryID: entryID, endFrame: endFrame}

	if leadInFrames > 0 {
		trigger := m.outgoing.fadeOutStartFrame - leadInFrames
		if trigger < m.outgoing.position {
			trigger = m.outgoing.position
		}
		if trigger < 0 {
			trigger = 0
		}
		m.outgoing.fadeOutStartFrame = trigger
	}
}

// Detach returns the mixer to Idle, releasing any attached sources. Used
// by stop and by forced skip when no incoming chain is ready.
func (m *Mixer) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outgoing = nil
	m.incoming = nil
	m.state = StateIdle
}

// ForceCrossfade immediately starts crossfading into the armed incoming
// chain (used by skip), bypassing the fade_out_start trigger. Returns
// false if no incoming chain is armed.
func (m *Mixer) ForceCrossfade() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSingle || m.incoming == nil {
		return false
	}
	m.state = StateCrossfading
	m.crossfadeStarted.Store(&crossfadeStartedInfo{
		outgoingEntryID: m.outgoing.entryID,
		incomingEntryID: m.incoming.entryID,
	})
	return true
}

// Pause applies an exponential decay envelope to subsequently emitted
// gain, freezing sample positions.
func (m *Mixer) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	m.pausedAt = time.Now()
}

// Resume fades emitted gain back in over dur (0 uses the default).
func (m *Mixer) Resume(dur time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dur <= 0 {
		dur = defaultResumeDuration
	}
	m.paused = false
	m.resumeFrom = time.Now()
	m.resumeDur = dur
}

// Seek discards buffered output on the current source and repositions it
// to sampleFrame, relative to passage start. Only valid in Single state.
func (m *Mixer) Seek(entryID string, sampleFrame int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSingle || m.outgoing == nil || m.outgoing.entryID != entryID {
		return ErrInvalidStateForSeek
	}
	m.outgoing.chain.Ring.Seek(uint64(sampleFrame))
	m.outgoing.position = sampleFrame
	return nil
}

// OutgoingPosition returns the entry id and working-rate frame position
// of the currently playing (outgoing) source, for position-event
// emission. ok is false in Idle state.
func (m *Mixer) OutgoingPosition() (entryID string, frames int64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outgoing == nil {
		return "", 0, false
	}
	return m.outgoing.entryID, m.outgoing.position, true
}

// TakeCrossfadeStarted atomically consumes the outgoing/incoming entry
// ids left behind by the most recent Single->Crossfading transition, or
// returns ("", "", false) if none is pending.
func (m *Mixer) TakeCrossfadeStarted() (outgoingEntryID, incomingEntryID string, ok bool) {
	p := m.crossfadeStarted.Swap(nil)
	if p == nil {
		return "", "", false
	}
	return p.outgoingEntryID, p.incomingEntryID, true
}

// TakeCompleted atomically consumes the outgoing entry id left behind by
// the most recently completed source, or returns ("", false, false) if
// none is pending. wasCrossfade is true only for a genuine
// Crossfading->Single transition; a plain end-of-passage with no
// crossfade in progress (->Idle) reports false, so the caller doesn't
// fabricate a crossfade-completed event for a passage that never
// crossfaded.
func (m *Mixer) TakeCompleted() (entryID string, wasCrossfade bool, ok bool) {
	p := m.completed.Swap(nil)
	if p == nil {
		return "", false, false
	}
	return p.entryID, p.wasCrossfade, true
}

// PullFrames fills out (interleaved stereo) with numFrames frames, mixing
// from the current source(s) and handling state transitions. It never
// blocks: starved sources emit silence until underrunTimeout elapses.
func (m *Mixer) PullFrames(out []float32, numFrames int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < numFrames*2; i++ {
		out[i] = 0
	}
	if numFrames == 0 {
		return
	}

	gain := m.envelopeGain()

	switch m.state {
	case StateIdle:
		return
	case StateSingle:
		m.pullSingle(out, numFrames, gain)
	case StateCrossfading:
		m.pullCrossfading(out, numFrames, gain)
	}
}

func (m *Mixer) pullSingle(out []float32, numFrames int, gain float64) {
	s := m.outgoing
	if s == nil {
		m.state = StateIdle
		return
	}

	n := m.readSource(s, out, numFrames)
	m.applyGainClamp(out, n, gain)
	s.position += int64(n)

	if m.incoming != nil && s.position >= s.fadeOutStartFrame {
		m.state = StateCrossfading
		m.crossfadeStarted.Store(&crossfadeStartedInfo{
			outgoingEntryID: s.entryID,
			incomingEntryID: m.incoming.entryID,
		})
		return
	}
	if s.reachedEnd() {
		m.completeOutgoing(s, StateIdle)
	}
}

func (m *Mixer) pullCrossfading(out []float32, numFrames int, gain float64) {
	out1 := m.outgoing
	in1 := m.incoming
	if out1 == nil || in1 == nil {
		m.state = StateIdle
		return
	}

	buf := make([]float32, numFrames*2)
	n1 := m.readSource(out1, buf, numFrames)
	out1.position += int64(n1)

	n2 := m.readSource(in1, out, numFrames)
	in1.position += int64(n2)

	for i := 0; i < numFrames*2; i++ {
		out[i] += buf[i]
	}
	m.applyGainClamp(out, numFrames, gain)

	if out1.reachedEnd() {
		m.completeOutgoing(out1, StateSingle)
		m.outgoing = in1
		m.incoming = nil
	}
}

// readSource reads up to numFrames from s's chain ring, applying the
// underrun-timeout-to-EOF escalation described for the mixer's pull
// model: an empty, non-EOF ring emits silence until underrunTimeout has
// elapsed, after which it is treated as exhausted.
func (m *Mixer) readSource(s *source, out []float32, numFrames int) int {
	n := s.chain.Ring.Read(out[:numFrames*2])
	if n >= numFrames {
		s.underrunSince = time.Time{}
		return n
	}

	if s.chain.Ring.IsEOF() {
		return n
	}

	if s.underrunSince.IsZero() {
		s.underrunSince = time.Now()
		if m.onUnderrun != nil {
			m.onUnderrun(s.chain.Index)
		}
	} else if time.Since(s.underrunSince) >= m.underrunTimeout {
		s.chain.Ring.SetEOF()
	}
	for i := n * 2; i < numFrames*2; i++ {
		out[i] = 0
	}
	return numFrames
}

// applyGainClamp applies the pause/resume envelope gain and clamps to
// [-1,1], the only per-sample math the mixer performs on already-faded
// source material.
func (m *Mixer) applyGainClamp(buf []float32, frames int, gain float64) {
	g := float32(gain)
	for i := 0; i < frames*2; i++ {
		v := buf[i] * g
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		buf[i] = v
	}
}

// envelopeGain computes the current pause/resume gain multiplier. Pause
// decays exponentially with pauseDecayTimeConstant; resume ramps linearly
// over resumeDur.
func (m *Mixer) envelopeGain() float64 {
	if m.paused {
		elapsed := time.Since(m.pausedAt).Seconds()
		return math.Exp(-elapsed / pauseDecayTimeConstant.Seconds())
	}
	if !m.resumeFrom.IsZero() && m.resumeDur > 0 {
		elapsed := time.Since(m.resumeFrom)
		if elapsed >= m.resumeDur {
			m.resumeFrom = time.Time{}
			return 1.0
		}
		return elapsed.Seconds() / m.resumeDur.Seconds()
	}
	return 1.0
}

func (m *Mixer) completeOutgoing(s *source, next State) {
	m.completed.Store(&completionInfo{entryID: s.entryID, wasCrossfade: next == StateSingle})
	m.state = next
	if next == StateIdle {
		m.outgoing = nil
		m.incoming = nil
	}
}
