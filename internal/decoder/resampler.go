/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"bytes"
	"encoding/binary"

	"github.com/zaf/resample"
)

// Resampler converts interleaved stereo float32 frames from a source's
// native sample rate to the working sample rate, using zaf/resample
// (a libsoxr binding that streams signed 16-bit PCM through an io.Writer).
// When the rates already match it is a transparent passthrough and never
// touches libsoxr.
type Resampler struct {
	bypass bool
	out    bytes.Buffer
	r      *resample.Resampler

	inBuf []byte // scratch for the int16 encode of one ReadPacket's worth of input
}

// NewResampler builds a resampler converting inRate to outRate, both in Hz,
// for stereo (2-channel) audio.
func NewResampler(inRate, outRate int) (*Resampler, error) {
	rs := &Resampler{}
	if inRate == outRate {
		rs.bypass = true
		return rs, nil
	}

	r, err := resample.New(&rs.out, float64(inRate), float64(outRate), 2, resample.I16, resample.HighQ)
	if err != nil {
		return nil, err
	}
	rs.r = r
	return rs, nil
}

// Close releases the underlying libsoxr resampler state.
func (rs *Resampler) Close() error {
	if rs.bypass || rs.r == nil {
		return nil
	}
	return rs.r.Close()
}

// Process resamples in (interleaved stereo float32) and returns the
// resampled interleaved stereo float32 output. The returned slice is
// freshly allocated, except in bypass mode, where the input slice is
// returned unchanged.
func (rs *Resampler) Process(in []float32) ([]float32, error) {
	if rs.bypass {
		return in, nil
	}

	need := len(in) * 2 // int16 = 2 bytes/sample
	if cap(rs.inBuf) < need {
		rs.inBuf = make([]byte, need)
	}
	rs.inBuf = rs.inBuf[:need]
	for i, v := range in {
		s := int16(clampFloat(v) * 32767.0)
		binary.LittleEndian.PutUint16(rs.inBuf[i*2:], uint16(s))
	}

	rs.out.Reset()
	if _, err := rs.r.Write(rs.inBuf); err != nil {
		return nil, err
	}
	return rs.decodeOut(), nil
}

// Flush drains any samples libsoxr is still holding internally, to be
// called once after the final Process of a decoder stream.
func (rs *Resampler) Flush() ([]float32, error) {
	if rs.bypass || rs.r == nil {
		return nil, nil
	}
	rs.out.Reset()
	if err := rs.r.Close(); err != nil {
		return nil, err
	}
	rs.r = nil
	return rs.decodeOut(), nil
}

func (rs *Resampler) decodeOut() []float32 {
	raw := rs.out.Bytes()
	n := len(raw) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

func clampFloat(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
