/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package decoder implements the decoder-buffer chain pipeline: Decoder ->
// Resampler -> Fader -> Ring Buffer, the buffer manager that owns the
// fixed array of chains, and the single-threaded decoder worker that
// services them fairly under backpressure.
package decoder

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Format identifies a container/codec this core can decode.
type Format string

const (
	FormatMP3    Format = "mp3"
	FormatFLAC   Format = "flac"
	FormatAAC    Format = "aac"
	FormatVorbis Format = "vorbis"
	FormatOpus   Format = "opus"
	FormatWAV    Format = "wav"
)

// ErrUnsupportedFormat is returned when a file extension does not map to a
// known decode backend.
var ErrUnsupportedFormat = errors.New("decoder: unsupported audio format")

// Source produces interleaved stereo float32 PCM frames from an audio
// file at its native sample rate. Implementations wrap one third-party
// decode backend. ReadPacket returns io.EOF once every sample has been
// produced (with n > 0 on the final partial read if applicable).
type Source interface {
	// SampleRate is the native sample rate of the decoded stream.
	SampleRate() int
	// ReadPacket decodes up to len(buf)/2 frames into buf, returning the
	// number of frames actually decoded.
	ReadPacket(buf []float32) (int, error)
	// Close releases any underlying file handles or decoder state.
	Close() error
}

// DetectFormat maps a file path's extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return FormatMP3, nil
	case ".flac":
		return FormatFLAC, nil
	case ".aac", ".adts":
		return FormatAAC, nil
	case ".ogg":
		return FormatVorbis, nil
	case ".opus":
		return FormatOpus, nil
	case ".wav", ".wave":
		return FormatWAV, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Open opens path, sample-accurately seeking to startSample (in the
// source's native sample rate) by decoding and discarding leading frames.
// Seek is bypassed entirely (no discard loop at all) when startSample is
// 0.
func Open(path string, startSample int64) (Source, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var src Source
	switch format {
	case FormatMP3:
		src, err = openMP3(path)
	case FormatFLAC:
		src, err = openFLAC(path)
	case FormatAAC:
		src, err = openAAC(path)
	case FormatVorbis:
		src, err = openVorbis(path)
	case FormatOpus:
		src, err = openOpus(path)
	case FormatWAV:
		src, err = openWAV(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if startSample <= 0 {
		return src, nil
	}

	if err := discardFrames(src, startSample); err != nil {
		src.Close()
		return nil, fmt.Errorf("seek to sample %d: %w", startSample, err)
	}
	return src, nil
}

// discardFrames decodes and throws away exactly n frames (or until EOF).
// Every backend here is seeked the same way, by decode-and-discard, so
// none needs format-specific seek support (no MP3 frame-table scan, no
// OGG page-restart logic).
func discardFrames(src Source, n int64) error {
	buf := make([]float32, 4096) // 2048 frames
	remaining := n
	for remaining > 0 {
		want := int64(len(buf) / 2)
		if remaining < want {
			want = remaining
		}
		got, err := src.ReadPacket(buf[:want*2])
		remaining -= int64(got)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if got == 0 {
			return nil
		}
	}
	return nil
}

// monoToStereo duplicates a mono sample buffer into an interleaved stereo
// buffer, used by the AAC backend for mono streams (the other backends
// duplicate mono samples inline).
func monoToStereo(mono []float32, stereo []float32) {
	for i, v := range mono {
		stereo[i*2] = v
		stereo[i*2+1] = v
	}
}
