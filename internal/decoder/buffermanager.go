/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"container/heap"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// BufferEventKind distinguishes the three events the buffer manager
// raises about chain fill state.
type BufferEventKind string

const (
	BufferReadyForStart BufferEventKind = "ready_for_start"
	BufferUnderrun      BufferEventKind = "underrun"
	BufferExhausted     BufferEventKind = "exhausted"
)

// BufferEvent is emitted on fill-state transitions of a single chain.
type BufferEvent struct {
	Kind       BufferEventKind
	ChainIndex int
	EntryID    string
}

// ErrNoFreeChain is returned by Allocate when every chain is occupied.
var ErrNoFreeChain = errors.New("decoder: no free chain available")

// freeHeap is a min-heap of free chain indices, so allocation always
// returns the lowest free index.
type freeHeap []int

func (h freeHeap) Len() int            { return len(h) }
func (h freeHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h freeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *freeHeap) Push(x interface{}) { *h = append(*h, x.(int)) }
func (h *freeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// BufferManager owns the fixed array of decoder chains and tracks which
// are free, publishing fill-state transitions on Events.
type BufferManager struct {
	chains []*Chain

	mu           sync.Mutex
	free         freeHeap
	lastReported map[int]bool // chain index -> whether it has reported ReadyForStart since last assign

	highWatermark int
	lowWatermark  int
	minPlayback   int

	Events chan BufferEvent
	log    zerolog.Logger
}

// NewBufferManager builds maximumDecodeStreams chains of ringCapacityFrames
// each, with pause/resume/ready watermarks in frames.
func NewBufferManager(maximumDecodeStreams, ringCapacityFrames, headroomFrames, minPlaybackFrames int, log zerolog.Logger) *BufferManager {
	chains := make([]*Chain, maximumDecodeStreams)
	free := make(freeHeap, maximumDecodeStreams)
	for i := 0; i < maximumDecodeStreams; i++ {
		chains[i] = NewChain(i, ringCapacityFrames, log)
		free[i] = i
	}
	heap.Init(&free)

	return &BufferManager{
		chains:        chains,
		free:          free,
		lastReported:  make(map[int]bool),
		highWatermark: ringCapacityFrames - headroomFrames,
		lowWatermark:  ringCapacityFrames - 2*headroomFrames,
		minPlayback:   minPlaybackFrames,
		Events:        make(chan BufferEvent, 64),
		log:           log,
	}
}

// Chains exposes the fixed chain array for direct index access by the
// engine and mixer (read-mostly after assignment).
func (m *BufferManager) Chains() []*Chain { return m.chains }

// Allocate returns the lowest-indexed free chain, or ErrNoFreeChain.
func (m *BufferManager) Allocate() (*Chain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.free.Len() == 0 {
		return nil, ErrNoFreeChain
	}
	idx := heap.Pop(&m.free).(int)
	delete(m.lastReported, idx)
	return m.chains[idx], nil
}

// Release returns chain index idx to the free pool.
func (m *BufferManager) Release(idx int) {
	m.chains[idx].Release()
	m.mu.Lock()
	heap.Push(&m.free, idx)
	delete(m.lastReported, idx)
	m.mu.Unlock()
}

// HysteresisPause reports whether chain idx's ring has reached its pause
// watermark; the decoder worker consults this before scheduling a unit.
func (m *BufferManager) HysteresisPause(idx int) bool {
	return m.chains[idx].Ring.HysteresisPause(m.highWatermark)
}

// HysteresisResume reports whether a paused chain idx should resume.
func (m *BufferManager) HysteresisResume(idx int) bool {
	return m.chains[idx].Ring.HysteresisResume(m.lowWatermark)
}

// Observe inspects chain idx's ring state after a decode unit and emits
// the corresponding BufferEvent(s), non-blocking (an event that does not
// fit in a full event channel is dropped, whatever its kind, rather than
// stall the worker).
func (m *BufferManager) Observe(idx int) {
	c := m.chains[idx]
	ring := c.Ring
	entryID := c.EntryID()

	m.mu.Lock()
	reported := m.lastReported[idx]
	m.mu.Unlock()

	if !reported && (ring.AvailableRead() >= m.minPlayback || ring.IsEOF()) {
		m.mu.Lock()
		m.lastReported[idx] = true
		m.mu.Unlock()
		m.emit(BufferEvent{Kind: BufferReadyForStart, ChainIndex: idx, EntryID: entryID})
	}

	if ring.IsEOF() && ring.AvailableRead() == 0 {
		m.emit(BufferEvent{Kind: BufferExhausted, ChainIndex: idx, EntryID: entryID})
	}
}

// NotifyUnderrun is called by the mixer when a read against chain idx's
// ring found it empty and not at EOF.
func (m *BufferManager) NotifyUnderrun(idx int) {
	m.emit(BufferEvent{Kind: BufferUnderrun, ChainIndex: idx, EntryID: m.chains[idx].EntryID()})
}

func (m *BufferManager) emit(ev BufferEvent) {
	select {
	case m.Events <- ev:
	default:
		m.log.Warn().Str("kind", string(ev.Kind)).Int("chain_index", ev.ChainIndex).Msg("buffer event channel full, dropping")
	}
}
