package ringbuffer

import (
	"sync"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	r := New(4)
	frames := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6} // 3 frames
	n := r.Write(frames)
	if n != 3 {
		t.Fatalf("expected 3 frames written, got %d", n)
	}
	if r.AvailableRead() != 3 {
		t.Fatalf("expected 3 available, got %d", r.AvailableRead())
	}

	out := make([]float32, 8)
	got := r.Read(out)
	if got != 3 {
		t.Fatalf("expected 3 frames read, got %d", got)
	}
	for i, v := range frames {
		if out[i] != v {
			t.Errorf("sample %d: expected %v got %v", i, v, out[i])
		}
	}
}

func TestWriteStopsAtCapacity(t *testing.T) {
	r := New(2)
	frames := make([]float32, 8) // 4 frames into a 2-frame ring
	n := r.Write(frames)
	if n != 2 {
		t.Fatalf("expected write to stop at capacity (2), got %d", n)
	}
	if r.AvailableWrite() != 0 {
		t.Fatalf("expected 0 available write, got %d", r.AvailableWrite())
	}
}

func TestReadFromEmptyReturnsZero(t *testing.T) {
	r := New(4)
	out := make([]float32, 4)
	if n := r.Read(out); n != 0 {
		t.Fatalf("expected 0 frames from empty ring, got %d", n)
	}
}

func TestConservationInvariant(t *testing.T) {
	// Write N frames, read M < N, verify available_read + consumed == decoded.
	r := New(100)
	writeBuf := make([]float32, 40) // 20 frames
	decodedTotal := r.Write(writeBuf)

	readBuf := make([]float32, 16) // 8 frames
	consumed := r.Read(readBuf)

	if r.AvailableRead()+consumed != decodedTotal {
		t.Fatalf("conservation violated: available=%d consumed=%d decoded=%d",
			r.AvailableRead(), consumed, decodedTotal)
	}
}

func TestClippingCounterOnly(t *testing.T) {
	r := New(4)
	frames := []float32{1.5, -2.0, 0.5, 0.5}
	r.Write(frames)

	if r.ClipCount() != 1 {
		t.Fatalf("expected 1 clipped frame counted, got %d", r.ClipCount())
	}

	out := make([]float32, 2)
	r.Read(out)
	if out[0] != 1.5 {
		t.Errorf("write must not clamp samples, got %v", out[0])
	}
}

func TestHysteresisWatermarks(t *testing.T) {
	r := New(100)
	writeBuf := make([]float32, 180) // 90 frames
	r.Write(writeBuf)

	if !r.HysteresisPause(20) {
		t.Error("expected pause at high watermark with only 10 frames free")
	}
	readBuf := make([]float32, 160) // drain 80 frames, 10 left used, 90 free
	r.Read(readBuf)
	if !r.HysteresisResume(50) {
		t.Error("expected resume once available write rises above low watermark")
	}
}

func TestEOFFlag(t *testing.T) {
	r := New(4)
	if r.IsEOF() {
		t.Fatal("new ring should not be EOF")
	}
	r.SetEOF()
	if !r.IsEOF() {
		t.Fatal("expected EOF after SetEOF")
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	r := New(64)
	const totalFrames = 10_000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		buf := make([]float32, 2)
		written := 0
		for written < totalFrames {
			buf[0] = float32(written)
			buf[1] = float32(-written)
			n := r.Write(buf)
			written += n
		}
		r.SetEOF()
	}()

	readCount := 0
	go func() {
		defer wg.Done()
		buf := make([]float32, 2)
		for {
			n := r.Read(buf)
			if n == 0 {
				if r.IsEOF() {
					return
				}
				continue
			}
			readCount++
			if readCount == totalFrames {
				return
			}
		}
	}()

	wg.Wait()
}
