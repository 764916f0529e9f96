/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestWorkerSelectChainPrefersLowerQueuePosition(t *testing.T) {
	bm := NewBufferManager(3, 1024, 128, 256, zerolog.Nop())
	for _, idx := range []int{0, 1} {
		c := bm.chains[idx]
		c.state = ChainPlaying
	}

	positions := map[int]int{0: 1, 1: 0}
	w := NewWorker(bm, 256, func(idx int) int { return positions[idx] }, zerolog.Nop())

	idx, ok := w.selectChain()
	if !ok || idx != 1 {
		t.Fatalf("expected chain 1 (queue position 0) to win, got idx=%d ok=%v", idx, ok)
	}
}

func TestWorkerSelectChainSkipsFreeAndEOF(t *testing.T) {
	bm := NewBufferManager(2, 1024, 128, 256, zerolog.Nop())
	bm.chains[0].state = ChainFree
	bm.chains[1].state = ChainPlaying
	bm.chains[1].Ring.SetEOF()

	w := NewWorker(bm, 256, func(int) int { return 0 }, zerolog.Nop())

	_, ok := w.selectChain()
	if ok {
		t.Fatal("expected no eligible chain, both free/EOF")
	}
}

func TestWorkerSelectChainSkipsPaused(t *testing.T) {
	bm := NewBufferManager(1, 1024, 128, 256, zerolog.Nop())
	c := bm.chains[0]
	c.state = ChainPlaying
	// fill the ring above the high watermark to trigger hysteresis pause.
	c.Ring.Write(make([]float32, (1024-128+1)*2))

	w := NewWorker(bm, 256, func(int) int { return 0 }, zerolog.Nop())

	_, ok := w.selectChain()
	if ok {
		t.Fatal("expected paused chain to be ineligible for scheduling")
	}
}

func TestWorkerWakeUnblocksSleep(t *testing.T) {
	bm := NewBufferManager(1, 1024, 128, 256, zerolog.Nop())
	w := NewWorker(bm, 256, func(int) int { return -1 }, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		w.sleepUntilWoken()
		close(done)
	}()

	w.Wake()
	<-done // would hang forever if Wake didn't signal the condition variable
}
