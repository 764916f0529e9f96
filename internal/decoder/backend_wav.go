/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavSource decodes uncompressed PCM WAV via go-audio/wav, upmixing mono
// files to stereo and downmixing anything beyond stereo to the front pair.
type wavSource struct {
	file    *os.File
	dec     *wav.Decoder
	channels int
	buf     *audio.IntBuffer
	maxVal  float32
}

func openWAV(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, io.ErrUnexpectedEOF
	}

	channels := int(dec.NumChans)
	maxVal := float32(int64(1) << (dec.BitDepth - 1))

	return &wavSource{
		file:     f,
		dec:      dec,
		channels: channels,
		maxVal:   maxVal,
		buf: &audio.IntBuffer{
			Format: &audio.Format{NumChannels: channels, SampleRate: int(dec.SampleRate)},
			Data:   make([]int, 4096*channels),
		},
	}, nil
}

func (w *wavSource) SampleRate() int { return int(w.dec.SampleRate) }

func (w *wavSource) ReadPacket(buf []float32) (int, error) {
	frames := len(buf) / 2
	needed := frames * w.channels
	if len(w.buf.Data) < needed {
		w.buf.Data = make([]int, needed)
	}

	w.buf.Data = w.buf.Data[:needed]
	err := w.dec.PCMBuffer(w.buf)
	if err != nil && err != io.EOF {
		return 0, err
	}
	n := len(w.buf.Data)
	if n == 0 {
		return 0, io.EOF
	}

	gotFrames := n / w.channels
	for i := 0; i < gotFrames; i++ {
		switch {
		case w.channels == 1:
			v := float32(w.buf.Data[i]) / w.maxVal
			buf[i*2] = v
			buf[i*2+1] = v
		default:
			buf[i*2] = float32(w.buf.Data[i*w.channels]) / w.maxVal
			buf[i*2+1] = float32(w.buf.Data[i*w.channels+1]) / w.maxVal
		}
	}

	if gotFrames < frames {
		return gotFrames, io.EOF
	}
	return gotFrames, nil
}

func (w *wavSource) Close() error {
	return w.file.Close()
}
