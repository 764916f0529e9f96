/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package output owns the platform audio device: a pull-callback stream
// via gordonklaus/portaudio that reads mixed frames from the mixer,
// applies the master volume, and survives device loss by polling for
// reacquisition.
package output

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// ErrDeviceUnavailable names the condition of a device that reacquisition
// could not recover. Nothing in this package returns it: when
// reacquisition times out, handleLoss only logs an error, and playback is
// neither paused nor stopped.
var ErrDeviceUnavailable = errors.New("output: audio device unavailable")

const (
	reacquirePollInterval = time.Second
	reacquireTimeout      = 30 * time.Second
)

// Puller supplies interleaved stereo float32 frames to fill the device's
// output buffer; the mixer implements this.
type Puller interface {
	PullFrames(out []float32, numFrames int)
}

// Device owns the portaudio output stream and the process-wide master
// volume applied to every frame it writes out, after the mixer's own
// clamp.
type Device struct {
	source Puller
	log    zerolog.Logger

	sampleRate int
	framesPerBuffer int

	volume atomic.Uint32 // float32 bits, 0.0-1.0

	stream *portaudio.Stream

	lost          atomic.Bool
	onDeviceLost  func()
	onReacquired  func()
}

// New initializes the portaudio host API and opens a default output
// stream at sampleRate (stereo, float32), without starting it.
func New(sampleRate, framesPerBuffer int, source Puller, onLost, onReacquired func(), log zerolog.Logger) (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	d := &Device{
		source:          source,
		log:             log,
		sampleRate:      sampleRate,
		framesPerBuffer: framesPerBuffer,
		onDeviceLost:    onLost,
		onReacquired:    onReacquired,
	}
	d.SetVolume(1.0)

	if err := d.open(); err != nil {
		portaudio.Terminate()
		return nil, err
	}
	return d, nil
}

func (d *Device) open() error {
	stream, err := portaudio.OpenDefaultStream(0, 2, float64(d.sampleRate), d.framesPerBuffer, d.callback)
	if err != nil {
		return err
	}
	d.stream = stream
	return d.stream.Start()
}

// callback is invoked by portaudio's realtime thread; it must never
// block. It pulls mixed frames from the mixer and scales by the current
// master volume.
func (d *Device) callback(out []float32) {
	numFrames := len(out) / 2
	d.source.PullFrames(out, numFrames)

	vol := math.Float32frombits(d.volume.Load())
	if vol == 1.0 {
		return
	}
	for i := range out {
		out[i] *= vol
	}
}

// SetVolume atomically updates the master volume (0.0-1.0), read by the
// realtime callback on its next invocation.
func (d *Device) SetVolume(v float32) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	d.volume.Store(math.Float32bits(v))
}

// Volume returns the current master volume.
func (d *Device) Volume() float32 {
	return math.Float32frombits(d.volume.Load())
}

// Close stops the stream and terminates the portaudio host API.
func (d *Device) Close() error {
	if d.stream != nil {
		_ = d.stream.Stop()
		_ = d.stream.Close()
	}
	return portaudio.Terminate()
}

// WatchLoss runs until ctx is cancelled, polling probe (a stream.Time
// query) to notice device loss; on loss it
// emits onDeviceLost and attempts reacquisition every reacquirePollInterval
// for up to reacquireTimeout before giving up.
func (d *Device) WatchLoss(ctx context.Context) {
	ticker := time.NewTicker(reacquirePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !d.probe() {
				d.handleLoss(ctx)
			}
		}
	}
}

// probe reports whether the stream still appears live. portaudio has no
// direct "is device still present" call on most backends, so liveness is
// inferred from whether the stream reports an error on its next info
// query.
func (d *Device) probe() bool {
	if d.stream == nil {
		return false
	}
	_, err := d.stream.Time()
	return err == nil
}

func (d *Device) handleLoss(ctx context.Context) {
	if d.lost.Swap(true) {
		return // already handling a loss
	}
	d.log.Warn().Msg("audio device lost, attempting reacquisition")
	if d.onDeviceLost != nil {
		d.onDeviceLost()
	}

	deadline := time.Now().Add(reacquireTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(reacquirePollInterval):
		}

		if d.stream != nil {
			_ = d.stream.Close()
		}
		if err := d.open(); err == nil {
			d.lost.Store(false)
			d.log.Info().Msg("audio device reacquired")
			if d.onReacquired != nil {
				d.onReacquired()
			}
			return
		}
	}

	d.log.Error().Msg("audio device reacquisition timed out")
}
