package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"wifiwatch/internal/logging"
	"wifiwatch/internal/models"
)

const captureReadBlock = 250 * time.Millisecond

type liveCapture struct {
	handle *pcap.Handle
	iface  string
	cancel context.CancelFunc
	done   chan struct{}
}

// StartCapture opens iface and begins buffering decoded packets until
// StopCapture. Only one capture runs at a time.
func (p *Pcap) StartCapture(ctx context.Context, iface string) error {
	p.capMu.Lock()
	defer p.capMu.Unlock()
	if p.capture != nil {
		return ErrAlreadyCapturing
	}

	handle, err := pcap.OpenLive(iface, int32(p.cfg.SnapLen), p.cfg.Promiscuous, captureReadBlock)
	if err != nil {
		return fmt.Errorf("open %s: %w", iface, err)
	}
	if p.cfg.BPF != "" {
		if err := handle.SetBPFFilter(p.cfg.BPF); err != nil {
			handle.Close()
			return fmt.Errorf("set filter %q: %w", p.cfg.BPF, err)
		}
	}

	p.pendMu.Lock()
	p.pending = nil
	p.dropped = 0
	p.pendMu.Unlock()

	readCtx, cancel := context.WithCancel(context.Background())
	lc := &liveCapture{handle: handle, iface: iface, cancel: cancel, done: make(chan struct{})}
	p.capture = lc

	go func() {
		defer close(lc.done)
		p.readLoop(readCtx, handle, handle.LinkType())
	}()

	p.log.Info(ctx, "capture started", logging.String("interface", iface), logging.String("filter", p.cfg.BPF))
	return nil
}

// StopCapture ends the running capture. Packets read before the stop stay
// available to the next PollLatestPackets.
func (p *Pcap) StopCapture(ctx context.Context) error {
	p.capMu.Lock()
	lc := p.capture
	p.capture = nil
	p.capMu.Unlock()
	if lc == nil {
		return ErrNotCapturing
	}

	lc.cancel()
	select {
	case <-lc.done:
	case <-ctx.Done():
		// reader exits on its next read timeout
	}
	lc.handle.Close()

	p.pendMu.Lock()
	dropped := p.dropped
	p.pendMu.Unlock()
	p.log.Info(ctx, "capture stopped", logging.String("interface", lc.iface), logging.Int("dropped", dropped))
	return nil
}

// PollLatestPackets hands over every packet buffered since the previous poll.
func (p *Pcap) PollLatestPackets(context.Context) ([]models.PacketRecord, error) {
	p.capMu.Lock()
	running := p.capture != nil
	p.capMu.Unlock()

	p.pendMu.Lock()
	defer p.pendMu.Unlock()
	if !running && len(p.pending) == 0 {
		return nil, ErrNotCapturing
	}
	out := p.pending
	p.pending = nil
	return out, nil
}

// readLoop decodes packets from r into the pending buffer until ctx ends or
// the source is exhausted.
func (p *Pcap) readLoop(ctx context.Context, r packetReader, link gopacket.Decoder) {
	for ctx.Err() == nil {
		data, ci, err := r.ReadPacketData()
		switch {
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		case errors.Is(err, io.EOF), errors.Is(err, pcap.NextErrorNoMorePackets):
			return
		case err != nil:
			if ctx.Err() == nil {
				p.log.Warn(ctx, "capture read failed", logging.Err(err))
			}
			return
		}
		p.enqueue(DecodePacket(data, ci, link))
	}
}

func (p *Pcap) enqueue(rec models.PacketRecord) {
	p.pendMu.Lock()
	defer p.pendMu.Unlock()
	if len(p.pending) >= p.cfg.MaxPending {
		p.pending = p.pending[1:]
		p.dropped++
	}
	p.pending = append(p.pending, rec)
}
