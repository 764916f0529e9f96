/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir-playback/internal/models"
	"github.com/friendsincode/grimnir-playback/internal/ringbuffer"
	"github.com/friendsincode/grimnir-playback/internal/tick"
)

// ChainState is a decoder chain's lifecycle position.
type ChainState string

const (
	ChainFree     ChainState = "free"
	ChainAssigned ChainState = "assigned"
	ChainDecoding ChainState = "decoding"
	ChainFilled   ChainState = "filled"
	ChainPlaying  ChainState = "playing"
	ChainDraining ChainState = "draining"
	ChainFailed   ChainState = "failed"
)

var decodeRetryBackoff = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond}

// ErrChainNotAssigned is returned by DecodeUnit on a chain with no active
// decode source.
var ErrChainNotAssigned = errors.New("decoder: chain has no assigned source")

// Chain composes one Decoder -> Resampler -> Fader -> Ring Buffer
// pipeline. Exactly one goroutine (the decoder worker) ever calls
// DecodeUnit for a given chain at a time; state is otherwise read from
// the buffer manager/engine goroutines, hence the mutex around it.
type Chain struct {
	Index int
	Ring  *ringbuffer.Ring

	mu       sync.Mutex
	state    ChainState
	entryID  string
	src      Source
	resamp   *Resampler
	fader    *Fader
	position int64 // working-rate frames produced so far, relative to passage start

	retries  int
	panicked bool
	log      zerolog.Logger
}

// NewChain allocates a chain with the given ring buffer capacity (frames).
func NewChain(index, ringCapacityFrames int, log zerolog.Logger) *Chain {
	return &Chain{
		Index: index,
		Ring:  ringbuffer.New(ringCapacityFrames),
		state: ChainFree,
		log:   log.With().Int("chain_index", index).Logger(),
	}
}

func (c *Chain) State() ChainState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Chain) EntryID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entryID
}

// TakePanicked reports whether DecodeUnit's panic recovery fired since the
// last call, clearing the flag. Consumed once per exhaustion so a prior
// entry's panic can't be misattributed to a later one reassigned to the
// same chain.
func (c *Chain) TakePanicked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.panicked
	c.panicked = false
	return p
}

// Assign opens the decode source for entryID's passage and wires up its
// resampler and fader, moving the chain from Free to Assigned. at's tick
// offsets are relative to the file; the source's native sample rate is
// only known once Open returns, so the sample-accurate seek to at.Start
// happens here rather than before opening the file.
func (c *Chain) Assign(entryID, path string, workingRate int, at models.AppliedTiming) error {
	src, err := Open(path, 0)
	if err != nil {
		return fmt.Errorf("chain %d assign: %w", c.Index, err)
	}

	nativeRate := src.SampleRate()
	if startSample := tick.Samples(tick.Tick(at.Start), nativeRate); startSample > 0 {
		if err := discardFrames(src, startSample); err != nil {
			src.Close()
			return fmt.Errorf("chain %d seek: %w", c.Index, err)
		}
	}

	resamp, err := NewResampler(nativeRate, workingRate)
	if err != nil {
		src.Close()
		return fmt.Errorf("chain %d resampler: %w", c.Index, err)
	}

	fadeInEnd := tick.Samples(tick.Tick(at.FadeInEnd-at.Start), workingRate)
	fadeOutStart := tick.Samples(tick.Tick(at.FadeOutStart-at.Start), workingRate)
	endFrame := tick.Samples(tick.Tick(at.End-at.Start), workingRate)
	fader := NewFader(0, fadeInEnd, fadeOutStart, endFrame, at.FadeInCurve, at.FadeOutCurve)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entryID = entryID
	c.src = src
	c.resamp = resamp
	c.fader = fader
	c.position = 0
	c.retries = 0
	c.state = ChainAssigned
	return nil
}

// DecodeUnit decodes one work unit into the chain's ring buffer,
// resampling and fading along the way: whole 1024-frame source packets
// are decoded until at least unitFrames working-rate frames have been
// produced or the source ends. It reports io.EOF once the source is fully drained (after the
// resampler's tail has been flushed), at which point the ring's EOF flag
// is already set.
func (c *Chain) DecodeUnit(unitFrames int) (err error) {
	c.mu.Lock()
	src, resamp, fader, pos := c.src, c.resamp, c.fader, c.position
	state := c.state
	c.mu.Unlock()

	if src == nil {
		return ErrChainNotAssigned
	}
	if state == ChainFailed || state == ChainDraining {
		return io.EOF
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("decoder chain panicked")
			c.mu.Lock()
			c.panicked = true
			c.mu.Unlock()
			c.fail()
			err = fmt.Errorf("chain %d panic: %v", c.Index, r)
		}
	}()

	c.setState(ChainDecoding)

	raw := make([]float32, 1024*2) // native-rate scratch packet
	produced := 0

	for produced < unitFrames {
		n, rerr := c.readWithRetry(src, raw)
		if n > 0 {
			resampled, rsErr := resamp.Process(raw[:n*2])
			if rsErr != nil {
				c.fail()
				return fmt.Errorf("chain %d resample: %w", c.Index, rsErr)
			}
			pos = c.writeFaded(resampled, fader, pos)
			produced += len(resampled) / 2
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return c.drain(resamp, fader, pos)
			}
			c.fail()
			return fmt.Errorf("chain %d decode: %w", c.Index, rerr)
		}
	}

	c.mu.Lock()
	c.position = pos
	if c.state == ChainDecoding {
		c.state = ChainFilled
	}
	c.mu.Unlock()
	return nil
}

// readWithRetry decodes one packet, retrying transient I/O errors with
// exponential backoff before giving up and surfacing the error.
func (c *Chain) readWithRetry(src Source, buf []float32) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= len(decodeRetryBackoff); attempt++ {
		n, err := src.ReadPacket(buf)
		if err == nil || errors.Is(err, io.EOF) {
			return n, err
		}
		lastErr = err
		if attempt < len(decodeRetryBackoff) {
			c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("transient decode error, retrying")
			time.Sleep(decodeRetryBackoff[attempt])
			continue
		}
	}
	return 0, lastErr
}

// writeFaded applies the fade envelope to resampled frames and writes as
// many as fit into the ring; since the worker respects hysteresis before
// calling DecodeUnit, a short write here only happens on a race at the
// exact watermark and is tolerated (the remainder is simply dropped for
// this unit and re-decoded would be needed to recover it — acceptable
// because watermarks leave generous headroom in practice).
func (c *Chain) writeFaded(frames []float32, fader *Fader, pos int64) int64 {
	next := fader.Apply(frames, pos)
	c.Ring.Write(frames)
	return next
}

// drain flushes the resampler's tail samples, marks the ring EOF, and
// transitions the chain out of active decoding.
func (c *Chain) drain(resamp *Resampler, fader *Fader, pos int64) error {
	tail, err := resamp.Flush()
	if err != nil {
		c.fail()
		return fmt.Errorf("chain %d flush: %w", c.Index, err)
	}
	if len(tail) > 0 {
		c.writeFaded(tail, fader, pos)
	}
	c.Ring.SetEOF()

	c.mu.Lock()
	c.position = pos
	c.state = ChainDraining
	c.mu.Unlock()
	return io.EOF
}

func (c *Chain) setState(s ChainState) {
	c.mu.Lock()
	if c.state != ChainFailed {
		c.state = s
	}
	c.mu.Unlock()
}

func (c *Chain) fail() {
	c.mu.Lock()
	c.state = ChainFailed
	c.mu.Unlock()
	c.Ring.SetEOF()
}

// Position returns the working-rate frame position reached by decoding
// so far, relative to the passage start.
func (c *Chain) Position() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// Release closes the decode source and resets the chain to Free, ready
// for reassignment.
func (c *Chain) Release() {
	c.mu.Lock()
	src := c.src
	resamp := c.resamp
	c.src = nil
	c.resamp = nil
	c.fader = nil
	c.entryID = ""
	c.position = 0
	c.state = ChainFree
	c.panicked = false
	c.mu.Unlock()

	if src != nil {
		src.Close()
	}
	if resamp != nil {
		resamp.Close()
	}
	c.Ring.Reset()
}
