package metrics

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder bundles the prometheus collectors for scan and capture sessions.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	gatherer prometheus.Gatherer

	Scans              *prometheus.CounterVec
	NetworksDiscovered prometheus.Gauge
	ChannelOccupancy   *prometheus.GaugeVec
	CaptureSessions    *prometheus.CounterVec
	CapturePolls       *prometheus.CounterVec
	CapturedPackets    prometheus.Counter
	CaptureBuffer      prometheus.Gauge
	CaptureAlerts      *prometheus.CounterVec
}

// New registers the wifiwatch collectors against reg, defaulting to the
// global registry when nil.
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	r := &Recorder{
		gatherer: gatherer,
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wifiwatch_scans_total",
			Help: "Scan sessions, labeled by result (ok, failed, rejected).",
		}, []string{"result"}),
		NetworksDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wifiwatch_networks_discovered",
			Help: "Distinct access points in the current scan snapshot.",
		}),
		ChannelOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wifiwatch_channel_occupancy",
			Help: "Latest computed occupancy (0-1) per 2.4GHz channel.",
		}, []string{"channel"}),
		CaptureSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wifiwatch_capture_sessions_total",
			Help: "Capture start attempts, labeled by result (started, failed).",
		}, []string{"result"}),
		CapturePolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wifiwatch_capture_polls_total",
			Help: "Capture poll ticks, labeled by result (ok, failed).",
		}, []string{"result"}),
		CapturedPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wifiwatch_captured_packets_total",
			Help: "Packets appended to the capture buffer.",
		}),
		CaptureBuffer: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wifiwatch_capture_buffer_packets",
			Help: "Packets currently held in the capture buffer.",
		}),
		CaptureAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wifiwatch_capture_alerts_total",
			Help: "Traffic alerts raised on captured packets, labeled by kind.",
		}, []string{"kind"}),
	}

	collectors := []struct {
		name string
		c    prometheus.Collector
	}{
		{"wifiwatch_scans_total", r.Scans},
		{"wifiwatch_networks_discovered", r.NetworksDiscovered},
		{"wifiwatch_channel_occupancy", r.ChannelOccupancy},
		{"wifiwatch_capture_sessions_total", r.CaptureSessions},
		{"wifiwatch_capture_polls_total", r.CapturePolls},
		{"wifiwatch_captured_packets_total", r.CapturedPackets},
		{"wifiwatch_capture_buffer_packets", r.CaptureBuffer},
		{"wifiwatch_capture_alerts_total", r.CaptureAlerts},
	}
	for _, c := range collectors {
		if err := reg.Register(c.c); err != nil {
			return nil, fmt.Errorf("register %s: %w", c.name, err)
		}
	}
	return r, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (r *Recorder) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if r != nil && r.gatherer != nil {
		gatherer = r.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ScanFinished counts one scan outcome: "ok", "failed" or "rejected".
func (r *Recorder) ScanFinished(result string) {
	if r == nil {
		return
	}
	r.Scans.WithLabelValues(result).Inc()
}

// SetNetworks records the size of the latest network snapshot.
func (r *Recorder) SetNetworks(n int) {
	if r == nil {
		return
	}
	r.NetworksDiscovered.Set(float64(n))
}

// SetOccupancy records the occupancy of one channel.
func (r *Recorder) SetOccupancy(channel int, occupancy float64) {
	if r == nil {
		return
	}
	r.ChannelOccupancy.WithLabelValues(strconv.Itoa(channel)).Set(occupancy)
}

// CaptureStarted counts a capture start attempt.
func (r *Recorder) CaptureStarted(ok bool) {
	if r == nil {
		return
	}
	result := "started"
	if !ok {
		result = "failed"
	}
	r.CaptureSessions.WithLabelValues(result).Inc()
}

// PollFinished counts one poll tick and the packets it appended.
func (r *Recorder) PollFinished(packets int, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.CapturePolls.WithLabelValues("failed").Inc()
		return
	}
	r.CapturePolls.WithLabelValues("ok").Inc()
	r.CapturedPackets.Add(float64(packets))
}

// SetBuffered records how many packets the capture buffer holds.
func (r *Recorder) SetBuffered(n int) {
	if r == nil {
		return
	}
	r.CaptureBuffer.Set(float64(n))
}

// AlertRaised counts one traffic alert of the given kind.
func (r *Recorder) AlertRaised(kind string) {
	if r == nil {
		return
	}
	r.CaptureAlerts.WithLabelValues(kind).Inc()
}
