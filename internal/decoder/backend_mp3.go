/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// mp3Source decodes MPEG-1/2 Layer III audio via hajimehoshi/go-mp3, which
// always produces signed 16-bit little-endian stereo PCM regardless of the
// source's original channel count.
type mp3Source struct {
	file *os.File
	dec  *mp3.Decoder
	raw  []byte // scratch buffer for the 16-bit reads
}

func openMP3(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &mp3Source{file: f, dec: dec}, nil
}

func (m *mp3Source) SampleRate() int { return m.dec.SampleRate() }

func (m *mp3Source) ReadPacket(buf []float32) (int, error) {
	frames := len(buf) / 2
	needed := frames * 4 // 2 channels * 2 bytes
	if len(m.raw) < needed {
		m.raw = make([]byte, needed)
	}

	read := 0
	for read < needed {
		n, err := m.dec.Read(m.raw[read:needed])
		read += n
		if err != nil {
			if err == io.EOF {
				break
			}
			return 0, err
		}
		if n == 0 {
			break
		}
	}

	got := read / 4
	for i := 0; i < got; i++ {
		l := int16(binary.LittleEndian.Uint16(m.raw[i*4:]))
		r := int16(binary.LittleEndian.Uint16(m.raw[i*4+2:]))
		buf[i*2] = float32(l) / 32768.0
		buf[i*2+1] = float32(r) / 32768.0
	}

	var err error
	if got < frames {
		err = io.EOF
	}
	return got, err
}

func (m *mp3Source) Close() error {
	return m.file.Close()
}
