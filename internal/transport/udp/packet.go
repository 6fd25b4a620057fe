// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

/*
Frame packet layout (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Per-transport, +1/packet|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Bin Width         | float32        | 4            | Hz between bins         |
| First Bin         | float32        | 4            | Frequency of bin 0 (Hz) |
| Peak Frequency    | float32        | 4            | Hz, or -1 for no peak   |
| Magnitude Count   | uint16         | 2            | Number of floats (N)    |
| Magnitudes        | []float32      | N * 4        | Normalized magnitudes   |
+-----------------------------------------------------------------------------+
*/

// HeaderSize is the fixed part of a packet.
const HeaderSize = 4 + 8 + 4 + 4 + 4 + 2

// MaxMagnitudes is the largest spectrum one packet can carry.
const MaxMagnitudes = math.MaxUint16

// Packet is the decoded form of one frame packet.
type Packet struct {
	Seq        uint32
	Timestamp  int64
	BinWidth   float32
	FirstBin   float32
	Peak       float32 // -1: no peak
	Magnitudes []float32
}

// HasPeak reports whether the packet carries a peak.
func (p Packet) HasPeak() bool { return p.Peak >= 0 }

// encode appends p to buf.
func (p Packet) encode(buf *bytes.Buffer) error {
	if len(p.Magnitudes) > MaxMagnitudes {
		return fmt.Errorf("spectrum of %d bins does not fit a packet", len(p.Magnitudes))
	}
	err := binary.Write(buf, binary.BigEndian, p.Seq)
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, p.Timestamp)
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, [3]float32{p.BinWidth, p.FirstBin, p.Peak})
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint16(len(p.Magnitudes)))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, p.Magnitudes)
	}
	return err
}

// Decode parses a frame packet.
func Decode(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, errors.New("packet shorter than header")
	}
	var p Packet
	p.Seq = binary.BigEndian.Uint32(data[0:])
	p.Timestamp = int64(binary.BigEndian.Uint64(data[4:]))
	p.BinWidth = math.Float32frombits(binary.BigEndian.Uint32(data[12:]))
	p.FirstBin = math.Float32frombits(binary.BigEndian.Uint32(data[16:]))
	p.Peak = math.Float32frombits(binary.BigEndian.Uint32(data[20:]))
	n := int(binary.BigEndian.Uint16(data[24:]))

	body := data[HeaderSize:]
	if len(body) != n*4 {
		return Packet{}, fmt.Errorf("packet declares %d magnitudes but carries %d bytes", n, len(body))
	}
	p.Magnitudes = make([]float32, n)
	for i := range p.Magnitudes {
		p.Magnitudes[i] = math.Float32frombits(binary.BigEndian.Uint32(body[i*4:]))
	}
	return p, nil
}
