package models

// Channel domain covered by occupancy reporting (2.4GHz, ETSI plan).
const (
	MinChannel   = 1
	MaxChannel   = 13
	ChannelCount = MaxChannel - MinChannel + 1
)

// ChannelMetric is the raw congestion figure for one channel.
type ChannelMetric struct {
	Channel   int
	Occupancy float64 // 0.0-1.0
}
