package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"wifiwatch/internal/logging"
	"wifiwatch/internal/models"
)

const (
	scanSnapLen   = 2048
	scanReadBlock = 100 * time.Millisecond
	beaconFilter  = "type mgt subtype beacon"
)

// openMonitor opens iface in monitor mode with radiotap framing.
func openMonitor(iface string) (*pcap.Handle, error) {
	inactive, err := pcap.NewInactiveHandle(iface)
	if err != nil {
		return nil, err
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(scanSnapLen); err != nil {
		return nil, err
	}
	if err := inactive.SetPromisc(true); err != nil {
		return nil, err
	}
	if err := inactive.SetTimeout(scanReadBlock); err != nil {
		return nil, err
	}
	if err := inactive.SetRFMon(true); err != nil {
		return nil, fmt.Errorf("monitor mode: %w", err)
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, err
	}
	if err := handle.SetLinkType(layers.LinkTypeIEEE80211Radio); err != nil {
		handle.Close()
		return nil, fmt.Errorf("radiotap link type: %w", err)
	}
	if err := handle.SetBPFFilter(beaconFilter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("beacon filter: %w", err)
	}
	return handle, nil
}

// packetReader is the part of *pcap.Handle the scan loop reads from.
type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Scan listens for beacons on the scan interface for ScanDuration and
// returns every network heard within the freshness window. Subscribers
// receive the accumulated set every ProgressInterval.
func (p *Pcap) Scan(ctx context.Context) ([]models.NetworkRecord, error) {
	if p.cfg.ScanInterface == "" {
		return nil, ErrNoScanInterface
	}
	if !p.scanMu.TryLock() {
		return nil, ErrScanBusy
	}
	defer p.scanMu.Unlock()

	handle, err := openMonitor(p.cfg.ScanInterface)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p.cfg.ScanInterface, err)
	}
	defer handle.Close()

	p.log.Info(ctx, "scan started",
		logging.String("interface", p.cfg.ScanInterface),
		logging.Any("duration", p.cfg.ScanDuration))

	table, err := p.collect(ctx, handle, time.Now)
	out := table.fresh(time.Now())
	if err != nil {
		p.log.Warn(ctx, "scan ended early", logging.Int("networks", len(out)), logging.Err(err))
		return out, err
	}
	p.log.Info(ctx, "scan finished", logging.Int("networks", len(out)))
	return out, nil
}

// collect reads beacons from r until the scan duration elapses or ctx ends.
// The table is returned on every path, holding what was heard so far.
func (p *Pcap) collect(ctx context.Context, r packetReader, now func() time.Time) (*beaconTable, error) {
	table := newBeaconTable(p.cfg.Freshness)
	start := now()
	deadline := start.Add(p.cfg.ScanDuration)
	nextProgress := start.Add(p.cfg.ProgressInterval)

	for {
		if err := ctx.Err(); err != nil {
			return table, err
		}
		t := now()
		if !t.Before(deadline) {
			return table, nil
		}
		if !t.Before(nextProgress) {
			p.broadcast(table.fresh(t))
			nextProgress = t.Add(p.cfg.ProgressInterval)
		}

		data, _, err := r.ReadPacketData()
		switch {
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		case err != nil:
			return table, fmt.Errorf("read beacon: %w", err)
		}
		if b, ok := decodeBeacon(data); ok {
			table.observe(b, now())
		}
	}
}
