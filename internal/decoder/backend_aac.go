/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"bufio"
	"io"
	"os"

	aac "github.com/llehouerou/go-aac"
)

// adtsSyncByte0 is the first byte of an ADTS frame header's 12-bit
// syncword 0xFFF (the remaining four sync bits are checked as the high
// nibble of the second byte); used to recognise a raw .aac/.adts bitstream.
const (
	adtsSyncByte0 = 0xFF
	adtsHeaderLen = 7 // without CRC
)

// aacSource decodes raw ADTS AAC via llehouerou/go-aac, a from-scratch Go
// port of the FAAD2 reference decoder. The upstream package is young and
// its frame-decode entry point is still settling, so this backend is
// written against the most conservative surface: feed one ADTS frame at a
// time and read back planar float32 samples, downmixing to stereo.
type aacSource struct {
	file *os.File
	r    *bufio.Reader
	dec  *aac.Decoder

	channels   int
	sampleRate int
	scratch    []float32
}

func openAAC(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := bufio.NewReaderSize(f, 8192)

	hdr, err := r.Peek(adtsHeaderLen)
	if err != nil {
		f.Close()
		return nil, err
	}
	if hdr[0] != adtsSyncByte0 || hdr[1]&0xF0 != 0xF0 {
		f.Close()
		return nil, ErrUnsupportedFormat
	}

	dec := aac.NewDecoder()
	dec.SetConfiguration(aac.Config{
		DefObjectType: aac.ObjectTypeMain,
		OutputFormat:  aac.OutputFormat16Bit,
	})

	src := &aacSource{file: f, r: r, dec: dec}
	if err := src.decodeHeaderFrame(); err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// decodeHeaderFrame decodes the stream's first ADTS frame purely to
// discover sample rate and channel count, stashing its samples so the
// first ReadPacket call doesn't lose them.
func (a *aacSource) decodeHeaderFrame() error {
	frame, err := readADTSFrame(a.r)
	if err != nil {
		return err
	}
	samples, err := a.dec.DecodeFrame(frame)
	if err != nil {
		return err
	}
	a.sampleRate = int(a.dec.SampleRate())
	a.channels = int(a.dec.Channels())
	a.scratch = toStereoInterleaved(samples, a.channels)
	return nil
}

func (a *aacSource) SampleRate() int { return a.sampleRate }

func (a *aacSource) ReadPacket(buf []float32) (int, error) {
	out := buf[:0]
	wantFrames := len(buf) / 2

	for len(out)/2 < wantFrames {
		if len(a.scratch) > 0 {
			n := copy(buf[len(out):], a.scratch)
			out = buf[:len(out)+n]
			a.scratch = a.scratch[n:]
			continue
		}

		frame, err := readADTSFrame(a.r)
		if err != nil {
			if err == io.EOF {
				return len(out) / 2, io.EOF
			}
			return len(out) / 2, err
		}
		samples, err := a.dec.DecodeFrame(frame)
		if err != nil {
			return len(out) / 2, err
		}
		a.scratch = toStereoInterleaved(samples, a.channels)
	}

	return len(out) / 2, nil
}

func (a *aacSource) Close() error {
	a.dec.Close()
	return a.file.Close()
}

// readADTSFrame reads one ADTS frame (header + payload) from r, parsing
// the 13-bit frame-length field spanning header bytes 3-5.
func readADTSFrame(r *bufio.Reader) ([]byte, error) {
	hdr := make([]byte, adtsHeaderLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	frameLen := (int(hdr[3]&0x03) << 11) | (int(hdr[4]) << 3) | (int(hdr[5]) >> 5)
	payloadLen := frameLen - adtsHeaderLen
	if payloadLen <= 0 {
		return nil, io.ErrUnexpectedEOF
	}

	out := make([]byte, frameLen)
	copy(out, hdr)
	if _, err := io.ReadFull(r, out[adtsHeaderLen:]); err != nil {
		return nil, err
	}
	return out, nil
}

// toStereoInterleaved converts planar per-channel float32 samples (as
// returned by the decoder's frame output) into interleaved stereo,
// duplicating mono and keeping only the front pair of anything wider.
func toStereoInterleaved(planar [][]float32, channels int) []float32 {
	if channels == 0 || len(planar) == 0 {
		return nil
	}
	n := len(planar[0])
	out := make([]float32, n*2)
	switch {
	case channels == 1:
		monoToStereo(planar[0], out)
	default:
		l, r := planar[0], planar[1]
		for i := 0; i < n; i++ {
			out[i*2] = l[i]
			out[i*2+1] = r[i]
		}
	}
	return out
}
