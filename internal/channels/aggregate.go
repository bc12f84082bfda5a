package channels

import (
	"math"

	"wifiwatch/internal/models"
)

// Quality grades a channel by how congested it is.
type Quality string

const (
	QualityExcellent Quality = "Excellent"
	QualityGood      Quality = "Good"
	QualityFair      Quality = "Fair"
	QualityPoor      Quality = "Poor"
)

// Recommendation tells the user whether to put an access point on a channel.
type Recommendation string

const (
	Recommended Recommendation = "Recommended - low congestion"
	UseCaution  Recommendation = "Usable - moderate congestion"
	Avoid       Recommendation = "Avoid - high congestion"
)

// Occupancy thresholds shared by Classify and Recommend.
const (
	excellentBelow = 0.3
	goodBelow      = 0.5
	fairBelow      = 0.7
)

// Report is a ChannelMetric with its derived grading.
type Report struct {
	Channel        int
	Occupancy      float64
	Quality        Quality
	Recommendation Recommendation
}

// Classify grades an occupancy value.
func Classify(occupancy float64) Quality {
	switch {
	case occupancy < excellentBelow:
		return QualityExcellent
	case occupancy < goodBelow:
		return QualityGood
	case occupancy < fairBelow:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Recommend maps an occupancy value to a channel recommendation.
func Recommend(occupancy float64) Recommendation {
	switch {
	case occupancy < excellentBelow:
		return Recommended
	case occupancy >= fairBelow:
		return Avoid
	default:
		return UseCaution
	}
}

// Aggregate normalizes raw metrics onto the fixed channel domain. The result
// always has one report per channel 1..13 in ascending order; channels with no
// input get occupancy 0. Out-of-band channels are dropped, values are clamped
// to [0,1], and a channel listed twice keeps its last value.
func Aggregate(raw []models.ChannelMetric) []Report {
	var occ [models.ChannelCount]float64
	for _, m := range raw {
		if m.Channel < models.MinChannel || m.Channel > models.MaxChannel {
			continue
		}
		occ[m.Channel-models.MinChannel] = clamp(m.Occupancy)
	}

	reports := make([]Report, models.ChannelCount)
	for i, o := range occ {
		reports[i] = Report{
			Channel:        i + models.MinChannel,
			Occupancy:      o,
			Quality:        Classify(o),
			Recommendation: Recommend(o),
		}
	}
	return reports
}

// Best returns the least occupied channel, preferring the lowest channel on ties.
func Best(reports []Report) (Report, bool) {
	if len(reports) == 0 {
		return Report{}, false
	}
	best := reports[0]
	for _, r := range reports[1:] {
		if r.Occupancy < best.Occupancy {
			best = r
		}
	}
	return best, true
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
