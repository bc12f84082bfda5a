package channels

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"wifiwatch/internal/logging"
	"wifiwatch/internal/metrics"
	"wifiwatch/internal/models"
)

// ErrUnknownNetwork is returned when selecting a BSSID that is not in the current set.
var ErrUnknownNetwork = errors.New("unknown network")

// Source produces raw per-channel occupancy for a set of networks.
type Source interface {
	ChannelOccupancy(ctx context.Context, networks []models.NetworkRecord) ([]models.ChannelMetric, error)
}

// Board keeps the channel reports for the current network set, or for a single
// selected network. Reports are only recomputed through Recompute and Select.
type Board struct {
	source  Source
	log     logging.Logger
	metrics *metrics.Recorder

	// computeMu serializes recomputations so an older result never
	// overwrites a newer one.
	computeMu sync.Mutex

	mu       sync.Mutex
	networks []models.NetworkRecord
	selected string
	reports  []Report
}

// NewBoard creates a Board whose reports start at zero occupancy.
func NewBoard(source Source, log logging.Logger, rec *metrics.Recorder) *Board {
	if source == nil {
		source = LocalSource{}
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Board{
		source:  source,
		log:     log.With(logging.String("component", "channels")),
		metrics: rec,
		reports: Aggregate(nil),
	}
}

// Recompute replaces the network set and recomputes the reports. A selection
// whose network is no longer present is dropped. When the occupancy source
// fails the previous reports are kept and the error is returned.
func (b *Board) Recompute(ctx context.Context, networks []models.NetworkRecord) error {
	b.computeMu.Lock()
	defer b.computeMu.Unlock()

	nets := append([]models.NetworkRecord(nil), networks...)

	b.mu.Lock()
	b.networks = nets
	if b.selected != "" && find(nets, b.selected) < 0 {
		b.selected = ""
	}
	selected := b.selected
	b.mu.Unlock()

	return b.compute(ctx, view(nets, selected))
}

// Select narrows the reports to the network with the given BSSID. An empty
// BSSID returns to the full set.
func (b *Board) Select(ctx context.Context, bssid string) error {
	b.computeMu.Lock()
	defer b.computeMu.Unlock()

	b.mu.Lock()
	nets := b.networks
	if bssid != "" && find(nets, bssid) < 0 {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownNetwork, bssid)
	}
	b.selected = bssid
	b.mu.Unlock()

	return b.compute(ctx, view(nets, bssid))
}

// Selected returns the selected BSSID, or "" when showing the full set.
func (b *Board) Selected() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selected
}

// Reports returns a copy of the latest reports, always 13 entries.
func (b *Board) Reports() []Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Report(nil), b.reports...)
}

// Best returns the least occupied channel of the latest reports.
func (b *Board) Best() Report {
	r, _ := Best(b.Reports())
	return r
}

func (b *Board) compute(ctx context.Context, input []models.NetworkRecord) error {
	raw, err := b.source.ChannelOccupancy(ctx, input)
	if err != nil {
		b.log.Warn(ctx, "channel occupancy unavailable", logging.Err(err))
		return fmt.Errorf("channel occupancy: %w", err)
	}
	reports := Aggregate(raw)

	b.mu.Lock()
	b.reports = reports
	b.mu.Unlock()

	for _, r := range reports {
		b.metrics.SetOccupancy(r.Channel, r.Occupancy)
	}
	b.log.Debug(ctx, "channel reports recomputed", logging.Int("networks", len(input)))
	return nil
}

func view(networks []models.NetworkRecord, selected string) []models.NetworkRecord {
	if selected == "" {
		return networks
	}
	if i := find(networks, selected); i >= 0 {
		return []models.NetworkRecord{networks[i]}
	}
	return nil
}

func find(networks []models.NetworkRecord, bssid string) int {
	for i, n := range networks {
		if n.BSSID == bssid {
			return i
		}
	}
	return -1
}
