/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"errors"
	"io"
	"os"

	"gopkg.in/hraban/opus.v2"
)

// errNotOpusStream is returned when the first two Ogg packets don't carry
// the expected OpusHead/OpusTags identification sequence.
var errNotOpusStream = errors.New("decoder: not an ogg opus stream")

const opusFrameMaxSamples = 5760 // 120ms at 48kHz, the largest Opus frame

// opusSource decodes Ogg Opus via a hand-rolled Ogg page demuxer feeding
// gopkg.in/hraban/opus.v2, which only decodes already-framed Opus packets
// and has no container support of its own.
type opusSource struct {
	file     *os.File
	pages    *oggPageReader
	dec      *opus.Decoder
	channels int
	pcm      []float32 // scratch, opusFrameMaxSamples*channels
	leftover []float32 // interleaved stereo frames not yet delivered
}

func openOpus(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	pages := newOggPageReader(f)

	head, err := pages.NextPacket()
	if err != nil {
		f.Close()
		return nil, err
	}
	if len(head) < 19 || string(head[0:8]) != "OpusHead" {
		f.Close()
		return nil, errNotOpusStream
	}
	channels := int(head[9])

	// OpusTags packet, discarded.
	if _, err := pages.NextPacket(); err != nil {
		f.Close()
		return nil, err
	}

	dec, err := opus.NewDecoder(48000, channels)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &opusSource{
		file:     f,
		pages:    pages,
		dec:      dec,
		channels: channels,
		pcm:      make([]float32, opusFrameMaxSamples*channels),
	}, nil
}

func (o *opusSource) SampleRate() int { return 48000 }

func (o *opusSource) ReadPacket(buf []float32) (int, error) {
	out := buf[:0]
	wantFrames := len(buf) / 2

	for len(out)/2 < wantFrames {
		if len(o.leftover) > 0 {
			n := copy(buf[len(out):], o.leftover)
			out = buf[:len(out)+n]
			o.leftover = o.leftover[n:]
			continue
		}

		packet, err := o.pages.NextPacket()
		if err != nil {
			if err == io.EOF {
				return len(out) / 2, io.EOF
			}
			return len(out) / 2, err
		}

		n, err := o.dec.DecodeFloat32(packet, o.pcm)
		if err != nil {
			return len(out) / 2, err
		}

		decoded := make([]float32, n*2)
		for i := 0; i < n; i++ {
			switch {
			case o.channels == 1:
				v := o.pcm[i]
				decoded[i*2] = v
				decoded[i*2+1] = v
			default:
				decoded[i*2] = o.pcm[i*o.channels]
				decoded[i*2+1] = o.pcm[i*o.channels+1]
			}
		}

		m := copy(buf[len(out):], decoded)
		out = buf[:len(out)+m]
		if m < len(decoded) {
			o.leftover = decoded[m:]
		}
	}

	return len(out) / 2, nil
}

func (o *opusSource) Close() error {
	return o.file.Close()
}
