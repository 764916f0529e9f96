/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"io"

	"github.com/mewkiz/flac"
)

// flacSource decodes FLAC via mewkiz/flac, which hands back one
// frame/block at a time as per-channel int32 subframes; we interleave and
// normalize to float32 stereo here.
type flacSource struct {
	stream   *flac.Stream
	channels int
	maxVal   float32

	pending []float32 // leftover samples from a block larger than the caller's buf
}

func openFLAC(path string) (Source, error) {
	stream, err := flac.Open(path)
	if err != nil {
		return nil, err
	}
	channels := int(stream.Info.NChannels)
	maxVal := float32(int64(1) << (stream.Info.BitsPerSample - 1))
	return &flacSource{stream: stream, channels: channels, maxVal: maxVal}, nil
}

func (s *flacSource) SampleRate() int { return int(s.stream.Info.SampleRate) }

func (s *flacSource) ReadPacket(buf []float32) (int, error) {
	out := buf[:0]
	wantFrames := len(buf) / 2

	for len(out)/2 < wantFrames {
		if len(s.pending) > 0 {
			n := copy(buf[len(out):], s.pending)
			out = buf[:len(out)+n]
			s.pending = s.pending[n:]
			continue
		}

		frame, err := s.stream.ParseNext()
		if err != nil {
			if err == io.EOF {
				return len(out) / 2, io.EOF
			}
			return len(out) / 2, err
		}

		block := int(frame.BlockSize)
		decoded := make([]float32, block*2)
		for i := 0; i < block; i++ {
			switch s.channels {
			case 1:
				v := float32(frame.Subframes[0].Samples[i]) / s.maxVal
				decoded[i*2] = v
				decoded[i*2+1] = v
			default:
				decoded[i*2] = float32(frame.Subframes[0].Samples[i]) / s.maxVal
				decoded[i*2+1] = float32(frame.Subframes[1].Samples[i]) / s.maxVal
			}
		}

		n := copy(buf[len(out):], decoded)
		out = buf[:len(out)+n]
		if n < len(decoded) {
			s.pending = decoded[n:]
		}
	}

	return len(out) / 2, nil
}

func (s *flacSource) Close() error {
	return s.stream.Close()
}
