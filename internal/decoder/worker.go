/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

const (
	priorityLargeWeight = 1_000_000.0
	prioritySmallWeight = 1.0
)

// QueuePositionFunc returns the current queue position (0 = current
// mixer source) of the passage assigned to chain idx, or -1 if the chain
// has no queue position (treated as lowest priority).
type QueuePositionFunc func(idx int) int

// Worker is the single-threaded serial decoder scheduler: exactly one
// goroutine ever calls ReadPacket/Write on any chain's decode side,
// chosen each unit by priority over queue position and buffer fill.
type Worker struct {
	bm            *BufferManager
	unitFrames    int
	queuePosition QueuePositionFunc

	mu   sync.Mutex
	cond *sync.Cond
	wake bool
	log  zerolog.Logger
}

// NewWorker builds a decoder worker pulling decode_work_period frames
// (unitFrames) per scheduling decision.
func NewWorker(bm *BufferManager, unitFrames int, qp QueuePositionFunc, log zerolog.Logger) *Worker {
	w := &Worker{bm: bm, unitFrames: unitFrames, queuePosition: qp, log: log}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Wake signals the worker to re-evaluate scheduling immediately, used
// when a chain is assigned or resumes from hysteresis pause.
func (w *Worker) Wake() {
	w.mu.Lock()
	w.wake = true
	w.cond.Signal()
	w.mu.Unlock()
}

// Run is the scheduling loop; it blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		w.Wake()
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		idx, ok := w.selectChain()
		if !ok {
			w.sleepUntilWoken()
			continue
		}

		chain := w.bm.chains[idx]
		if err := chain.DecodeUnit(w.unitFrames); err != nil && err != io.EOF {
			w.log.Error().Err(err).Int("chain_index", idx).Msg("decoder chain unit failed")
		}
		w.bm.Observe(idx)
	}
}

// selectChain picks the eligible chain (not paused, not at EOF) with the
// lowest priority value, per the queue_position*LARGE + fill*SMALL
// formula, breaking ties by lowest chain_index.
func (w *Worker) selectChain() (int, bool) {
	best := -1
	bestPriority := 0.0

	for idx, c := range w.bm.chains {
		if c.State() == ChainFree || c.State() == ChainFailed {
			continue
		}
		if c.Ring.IsEOF() {
			continue
		}
		if w.bm.HysteresisPause(idx) {
			continue
		}

		qp := w.queuePosition(idx)
		if qp < 0 {
			qp = len(w.bm.chains) // lowest priority for unassigned position
		}

		fillFraction := 0.0
		if capacity := c.Ring.Capacity(); capacity > 0 {
			fillFraction = float64(c.Ring.AvailableRead()) / float64(capacity)
		}
		priority := float64(qp)*priorityLargeWeight + fillFraction*prioritySmallWeight

		if best == -1 || priority < bestPriority {
			best = idx
			bestPriority = priority
		}
	}

	return best, best != -1
}

func (w *Worker) sleepUntilWoken() {
	w.mu.Lock()
	for !w.wake {
		w.cond.Wait()
	}
	w.wake = false
	w.mu.Unlock()
}
