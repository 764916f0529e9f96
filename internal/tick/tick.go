/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package tick implements the canonical internal time unit used across the
// playback core: a signed 64-bit tick at 28,224,000 Hz. That rate is an
// exact integer multiple of every sample rate the decoder chain supports
// (8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400,
// 192000 Hz), so tick<->sample conversion is always exact integer math.
package tick

import (
	"errors"
	"math"
)

// Rate is the number of ticks per second.
const Rate int64 = 28_224_000

// MaxTicks is the largest tick value conversions are guaranteed correct for.
const MaxTicks int64 = 1 << 52

// Tick is a signed count of 1/28,224,000 second units, measured from some
// caller-defined origin (typically a passage's containing file start).
type Tick int64

// ErrOverflow is returned when a conversion input exceeds MaxTicks.
var ErrOverflow = errors.New("tick: value exceeds representable range")

// FromSeconds converts a floating point second count to ticks, rounding
// half-away-from-zero.
func FromSeconds(seconds float64) (Tick, error) {
	scaled := seconds * float64(Rate)
	if math.Abs(scaled) > float64(MaxTicks) {
		return 0, ErrOverflow
	}
	return Tick(roundHalfAwayFromZero(scaled)), nil
}

// ToSeconds converts ticks to a floating point second count.
func ToSeconds(t Tick) float64 {
	return float64(t) / float64(Rate)
}

// FromMillis converts a millisecond count (legacy UI boundary only; the
// core never computes in milliseconds internally) to ticks.
func FromMillis(ms int64) (Tick, error) {
	return FromSeconds(float64(ms) / 1000.0)
}

// ToMillis converts ticks to a millisecond count, for legacy UI display.
func ToMillis(t Tick) int64 {
	return int64(roundHalfAwayFromZero(ToSeconds(t) * 1000.0))
}

// Samples converts a tick count to a sample count at the given sample rate.
// The division is exact for every rate in the supported set because Rate is
// an integer multiple of all of them.
func Samples(t Tick, sampleRate int) int64 {
	// Whole seconds and the sub-second remainder are scaled separately so
	// the intermediate product stays within int64 up to MaxTicks.
	sr := int64(sampleRate)
	return int64(t)/Rate*sr + int64(t)%Rate*sr/Rate
}

// FromSamples converts a sample count at the given sample rate back to
// ticks.
func FromSamples(samples int64, sampleRate int) Tick {
	sr := int64(sampleRate)
	return Tick(samples/sr*Rate + samples%sr*Rate/sr)
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return math.Floor(v + 0.5)
	}
	return math.Ceil(v - 0.5)
}
