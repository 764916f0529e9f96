/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"io"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

// vorbisSource decodes Ogg Vorbis via jfreymuth/oggvorbis, whose Reader
// already deinterleaves/interleaves float32 samples for us; only the
// mono-duplication and channel clamp (>2 channels keep the front pair)
// need handling here.
type vorbisSource struct {
	file     *os.File
	rd       *oggvorbis.Reader
	channels int
	scratch  []float32
}

func openVorbis(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rd, err := oggvorbis.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &vorbisSource{file: f, rd: rd, channels: rd.Channels()}, nil
}

func (v *vorbisSource) SampleRate() int { return v.rd.SampleRate() }

func (v *vorbisSource) ReadPacket(buf []float32) (int, error) {
	frames := len(buf) / 2

	if v.channels == 2 {
		n, err := v.rd.Read(buf[:frames*2])
		if err != nil && err != io.EOF {
			return 0, err
		}
		return n / 2, err
	}

	need := frames * v.channels
	if len(v.scratch) < need {
		v.scratch = make([]float32, need)
	}
	n, err := v.rd.Read(v.scratch[:need])
	if err != nil && err != io.EOF {
		return 0, err
	}

	got := n / v.channels
	for i := 0; i < got; i++ {
		switch {
		case v.channels == 1:
			sample := v.scratch[i]
			buf[i*2] = sample
			buf[i*2+1] = sample
		default:
			buf[i*2] = v.scratch[i*v.channels]
			buf[i*2+1] = v.scratch[i*v.channels+1]
		}
	}
	return got, err
}

func (v *vorbisSource) Close() error {
	return v.file.Close()
}
