/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decoder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// errBadOggPage is returned by oggPageReader when a capture pattern does
// not match; the Opus backend treats it as a fatal decode error.
var errBadOggPage = errors.New("decoder: invalid ogg page header")

// oggPageReader demuxes an Ogg bitstream into its constituent packets,
// reassembling packets split across page boundaries via the lacing table.
// gopkg.in/hraban/opus.v2 only decodes already-framed Opus packets, so
// Ogg Opus files need this before they can reach the decoder.
type oggPageReader struct {
	r       *bufio.Reader
	pending []byte // bytes of a packet still being assembled across pages
}

func newOggPageReader(r io.Reader) *oggPageReader {
	return &oggPageReader{r: bufio.NewReaderSize(r, 8192)}
}

// NextPacket returns the next complete Ogg packet payload.
func (o *oggPageReader) NextPacket() ([]byte, error) {
	for {
		segments, continued, err := o.readPageHeader()
		if err != nil {
			return nil, err
		}

		for _, seg := range segments {
			buf := make([]byte, len(seg))
			copy(buf, seg)

			if continued && len(o.pending) > 0 {
				o.pending = append(o.pending, buf...)
			} else {
				o.pending = buf
			}

			// A segment shorter than 255 bytes terminates the packet; a
			// segment of exactly 255 continues into the next lacing entry.
			if len(seg) < 255 {
				out := o.pending
				o.pending = nil
				if len(out) > 0 {
					return out, nil
				}
			}
			continued = false
		}
	}
}

// readPageHeader reads one Ogg page header plus its segment table and
// returns the page's segments as byte slices still grouped by the lacing
// boundaries recorded in the table (a single packet may span several).
func (o *oggPageReader) readPageHeader() (segments [][]byte, continued bool, err error) {
	var hdr [27]byte
	if _, err := io.ReadFull(o.r, hdr[:]); err != nil {
		return nil, false, err
	}
	if string(hdr[0:4]) != "OggS" {
		return nil, false, errBadOggPage
	}

	headerType := hdr[5]
	continued = headerType&0x01 != 0
	numSegments := int(hdr[26])

	table := make([]byte, numSegments)
	if _, err := io.ReadFull(o.r, table); err != nil {
		return nil, false, err
	}

	// Collapse the lacing table into segments, where a run of 255-byte
	// entries followed by a shorter one (or end of table) forms one
	// logical lacing value per lacing rules; we keep this simple since
	// NextPacket re-derives packet boundaries from individual seg lengths.
	segments = make([][]byte, 0, numSegments)
	for _, segLen := range table {
		buf := make([]byte, segLen)
		if segLen > 0 {
			if _, err := io.ReadFull(o.r, buf); err != nil {
				return nil, false, err
			}
		}
		segments = append(segments, buf)
	}
	return segments, continued, nil
}

// oggSerialOf reads the stream serial number from a page header without
// consuming the reader; unused by the simple single-stream Opus path but
// kept for clarity of the header layout.
func oggSerialOf(hdr []byte) uint32 {
	return binary.LittleEndian.Uint32(hdr[14:18])
}
