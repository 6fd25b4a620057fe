// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"linein/internal/analysis"
	applog "linein/internal/log"
	"linein/internal/transport"
)

// Publisher packs analysis frames into binary packets and sends them with
// a UDPSender. Frames arriving faster than the interval are dropped, so
// the analysis tick can run faster than the network rate.
type Publisher struct {
	sender   *UDPSender
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	lastSent    time.Time
	sequenceNum uint32

	// Reused per packet.
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewPublisher wraps sender. Intervals <= 0 default to 16ms (~60Hz).
func NewPublisher(interval time.Duration, sender *UDPSender) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)

	return &Publisher{
		sender:       sender,
		interval:     interval,
		now:          time.Now,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Dial creates the sender and publisher for targetAddress.
func Dial(targetAddress string, interval time.Duration) (*Publisher, error) {
	sender, err := NewUDPSender(targetAddress)
	if err != nil {
		return nil, err
	}
	p, err := NewPublisher(interval, sender)
	if err != nil {
		sender.Close()
		return nil, err
	}
	return p, nil
}

// Send publishes an analysis.Frame. Empty frames and other values are
// ignored.
func (p *Publisher) Send(data any) error {
	frame, ok := data.(analysis.Frame)
	if !ok || frame.Empty() {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !p.lastSent.IsZero() && now.Sub(p.lastSent) < p.interval {
		return nil
	}

	if cap(p.f32Buffer) < len(frame.Spectrum) {
		p.f32Buffer = make([]float32, len(frame.Spectrum))
	}
	mags := p.f32Buffer[:len(frame.Spectrum)]
	for i, b := range frame.Spectrum {
		mags[i] = float32(b.Magnitude)
	}

	pkt := Packet{
		Seq:        p.sequenceNum + 1,
		Timestamp:  now.UnixNano(),
		FirstBin:   float32(frame.Spectrum[0].Frequency),
		Peak:       -1,
		Magnitudes: mags,
	}
	if len(frame.Spectrum) > 1 {
		pkt.BinWidth = float32(frame.Spectrum[1].Frequency - frame.Spectrum[0].Frequency)
	}
	if frame.Peak != nil {
		pkt.Peak = float32(frame.Peak.Frequency)
	}

	p.packetBuffer.Reset()
	if err := pkt.encode(p.packetBuffer); err != nil {
		return fmt.Errorf("UDPPublisher: packing frame: %w", err)
	}
	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		return err
	}
	p.sequenceNum = pkt.Seq
	p.lastSent = now
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", pkt.Seq, p.packetBuffer.Len())
	return nil
}

// Close closes the sender.
func (p *Publisher) Close() error {
	return p.sender.Close()
}

var _ transport.Transport = (*Publisher)(nil)
