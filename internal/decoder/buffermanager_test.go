/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"testing"

	"github.com/rs/zerolog"
)

func newTestBufferManager(t *testing.T) *BufferManager {
	t.Helper()
	return NewBufferManager(4, 1024, 128, 256, zerolog.Nop())
}

func TestBufferManagerAllocateLowestFreeIndex(t *testing.T) {
	bm := newTestBufferManager(t)

	c0, err := bm.Allocate()
	if err != nil || c0.Index != 0 {
		t.Fatalf("expected chain 0, got %+v, err %v", c0, err)
	}
	c1, err := bm.Allocate()
	if err != nil || c1.Index != 1 {
		t.Fatalf("expected chain 1, got %+v, err %v", c1, err)
	}

	bm.Release(0)

	c2, err := bm.Allocate()
	if err != nil || c2.Index != 0 {
		t.Fatalf("expected reused chain 0, got %+v, err %v", c2, err)
	}
}

func TestBufferManagerAllocateExhaustion(t *testing.T) {
	bm := newTestBufferManager(t)
	for i := 0; i < 4; i++ {
		if _, err := bm.Allocate(); err != nil {
			t.Fatalf("unexpected error on allocation %d: %v", i, err)
		}
	}
	if _, err := bm.Allocate(); err != ErrNoFreeChain {
		t.Fatalf("expected ErrNoFreeChain, got %v", err)
	}
}

func TestBufferManagerObserveEmitsReadyForStart(t *testing.T) {
	bm := newTestBufferManager(t)
	c, err := bm.Allocate()
	if err != nil {
		t.Fatal(err)
	}

	frames := make([]float32, 256*2)
	c.Ring.Write(frames)
	bm.Observe(c.Index)

	select {
	case ev := <-bm.Events:
		if ev.Kind != BufferReadyForStart || ev.ChainIndex != c.Index {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected a ReadyForStart event")
	}

	// A second Observe at the same fill level must not re-report.
	bm.Observe(c.Index)
	select {
	case ev := <-bm.Events:
		t.Fatalf("unexpected second event: %+v", ev)
	default:
	}
}

func TestBufferManagerObserveEmitsExhausted(t *testing.T) {
	bm := newTestBufferManager(t)
	c, err := bm.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	c.Ring.SetEOF()
	bm.Observe(c.Index)

	found := false
	for {
		select {
		case ev := <-bm.Events:
			if ev.Kind == BufferExhausted {
				found = true
			}
		default:
			if !found {
				t.Fatal("expected an Exhausted event")
			}
			return
		}
	}
}
