package channels

import (
	"context"

	"wifiwatch/internal/models"
)

// Estimate derives raw occupancy for channels 1..13 from a network set.
// A channel's occupancy is its share of all networks weighted by the mean
// signal quality of the networks on it, so a few strong neighbours weigh more
// than many faint ones.
func Estimate(networks []models.NetworkRecord) []models.ChannelMetric {
	var count, quality [models.ChannelCount]int
	for _, n := range networks {
		if !n.HasChannel() {
			continue
		}
		idx := n.Channel - models.MinChannel
		count[idx]++
		quality[idx] += n.SignalQuality
	}

	total := float64(len(networks))
	metrics := make([]models.ChannelMetric, models.ChannelCount)
	for i := range metrics {
		var occupancy float64
		if count[i] > 0 && total > 0 {
			avg := float64(quality[i]) / float64(count[i])
			occupancy = (float64(count[i]) / total) * (avg / 100)
		}
		metrics[i] = models.ChannelMetric{Channel: i + models.MinChannel, Occupancy: occupancy}
	}
	return metrics
}

// LocalSource computes occupancy in-process with Estimate.
type LocalSource struct{}

// ChannelOccupancy implements Source.
func (LocalSource) ChannelOccupancy(_ context.Context, networks []models.NetworkRecord) ([]models.ChannelMetric, error) {
	return Estimate(networks), nil
}
