/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ringbuffer implements the fixed-capacity, lock-free
// single-producer/single-consumer PCM frame FIFO each decoder chain writes
// into and the mixer reads from. A "frame" is one interleaved stereo
// sample pair (2 float32s).
package ringbuffer

import (
	"sync/atomic"
)

const channelsPerFrame = 2

// Ring is a fixed-capacity frame FIFO. Exactly one goroutine may call
// Write (the decoder chain) and exactly one may call Read (the mixer);
// they may run on different OS threads without any external locking. The
// read/write cursors are atomics with acquire/release ordering so writes
// committed by the producer are visible to the consumer in program order
// and vice versa.
type Ring struct {
	data []float32 // capacity*channelsPerFrame samples

	writePos atomic.Uint64 // frames written, monotonically increasing
	readPos  atomic.Uint64 // frames read, monotonically increasing

	eof      atomic.Bool
	clipped  atomic.Uint64
	capacity uint64
}

// New allocates a ring with room for capacityFrames frames.
func New(capacityFrames int) *Ring {
	if capacityFrames <= 0 {
		capacityFrames = 1
	}
	return &Ring{
		data:     make([]float32, capacityFrames*channelsPerFrame),
		capacity: uint64(capacityFrames),
	}
}

// Capacity returns the frame capacity of the ring.
func (r *Ring) Capacity() int { return int(r.capacity) }

// AvailableRead returns the number of frames available to Read.
func (r *Ring) AvailableRead() int {
	return int(r.writePos.Load() - r.readPos.Load())
}

// AvailableWrite returns the number of frames available to Write before the
// ring is full.
func (r *Ring) AvailableWrite() int {
	return int(r.capacity) - r.AvailableRead()
}

// IsEOF reports whether the producer has signalled end of stream. The
// consumer should keep draining AvailableRead() frames after IsEOF is set;
// true end-of-stream for the consumer is IsEOF() && AvailableRead() == 0.
func (r *Ring) IsEOF() bool { return r.eof.Load() }

// SetEOF marks the stream as ended. Called by the producer once, after its
// final Write.
func (r *Ring) SetEOF() { r.eof.Store(true) }

// ClipCount returns the number of frames written with at least one sample
// where |x| > 1.0 (a frame with both channels clipped counts once). Clipping
// is a free-running counter only; samples are not clamped at write time
// (clamping happens once, at mixer output).
func (r *Ring) ClipCount() uint64 { return r.clipped.Load() }

// Write appends up to len(frames)/2 frames (interleaved stereo) to the
// ring, returning the number of frames actually written. It never blocks:
// if the ring is full it writes as many frames as fit (possibly zero).
func (r *Ring) Write(frames []float32) int {
	if len(frames)%channelsPerFrame != 0 {
		frames = frames[:len(frames)-(len(frames)%channelsPerFrame)]
	}
	wantFrames := len(frames) / channelsPerFrame
	if wantFrames == 0 {
		return 0
	}

	avail := r.AvailableWrite()
	if wantFrames > avail {
		wantFrames = avail
	}
	if wantFrames == 0 {
		return 0
	}

	start := r.writePos.Load() % r.capacity
	clipped := uint64(0)
	for i := 0; i < wantFrames; i++ {
		slot := (start + uint64(i)) % r.capacity
		l := frames[i*channelsPerFrame]
		rr := frames[i*channelsPerFrame+1]
		if l > 1.0 || l < -1.0 || rr > 1.0 || rr < -1.0 {
			clipped++
		}
		r.data[slot*channelsPerFrame] = l
		r.data[slot*channelsPerFrame+1] = rr
	}
	if clipped > 0 {
		r.clipped.Add(clipped)
	}

	// Release: publish the samples before advancing writePos so the
	// consumer never observes an advanced cursor before the data.
	r.writePos.Add(uint64(wantFrames))
	return wantFrames
}

// Read copies up to len(out)/2 frames into out, returning the number of
// frames actually read. It never blocks: if the ring is empty it returns 0.
func (r *Ring) Read(out []float32) int {
	if len(out)%channelsPerFrame != 0 {
		out = out[:len(out)-(len(out)%channelsPerFrame)]
	}
	wantFrames := len(out) / channelsPerFrame
	if wantFrames == 0 {
		return 0
	}

	avail := r.AvailableRead()
	if wantFrames > avail {
		wantFrames = avail
	}
	if wantFrames == 0 {
		return 0
	}

	start := r.readPos.Load() % r.capacity
	for i := 0; i < wantFrames; i++ {
		slot := (start + uint64(i)) % r.capacity
		out[i*channelsPerFrame] = r.data[slot*channelsPerFrame]
		out[i*channelsPerFrame+1] = r.data[slot*channelsPerFrame+1]
	}

	r.readPos.Add(uint64(wantFrames))
	return wantFrames
}

// ReadPosition returns the number of frames consumed so far (the mixer's
// cumulative sample position for this chain).
func (r *Ring) ReadPosition() uint64 { return r.readPos.Load() }

// WritePosition returns the number of frames produced so far.
func (r *Ring) WritePosition() uint64 { return r.writePos.Load() }

// HysteresisPause reports whether the producer should suspend writing
// because available write space has dropped to or below highWatermark
// frames. It is an observable flag only: the producer must poll it and
// decide to suspend itself; the ring does not enforce it.
func (r *Ring) HysteresisPause(highWatermarkFrames int) bool {
	return r.AvailableWrite() <= highWatermarkFrames
}

// HysteresisResume reports whether a paused producer should resume because
// available write space has risen to or above lowWatermark frames.
func (r *Ring) HysteresisResume(lowWatermarkFrames int) bool {
	return r.AvailableWrite() >= lowWatermarkFrames
}

// Reset clears the ring to empty, non-EOF state. Used when a chain is
// released back to the free pool.
func (r *Ring) Reset() {
	r.writePos.Store(0)
	r.readPos.Store(0)
	r.eof.Store(false)
	r.clipped.Store(0)
}

// Seek discards buffered output and repositions both cursors so the next
// Read returns frames starting at frame index targetFrame of the
// producer's stream. Callers must only invoke this when the producer is
// quiescent (paused at a unit boundary), since it is not itself
// synchronized against concurrent Write calls.
func (r *Ring) Seek(targetFrame uint64) {
	r.writePos.Store(targetFrame)
	r.readPos.Store(targetFrame)
	r.eof.Store(false)
}
