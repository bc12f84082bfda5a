package capture

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"wifiwatch/internal/models"
)

// AlertKind names the pattern an alert was raised for.
type AlertKind string

const (
	AlertBroadcastStorm AlertKind = "BROADCAST_STORM"
	AlertPlaintext      AlertKind = "PLAINTEXT_PROTOCOL"
	AlertFlood          AlertKind = "POSSIBLE_DOS"
)

// DetectorConfig holds the thresholds of a Detector.
type DetectorConfig struct {
	BroadcastThreshold int           // broadcasts per second
	FloodThreshold     int           // packets per second from one source
	PlaintextCooldown  time.Duration // per source and port
	Retention          time.Duration // idle sources are forgotten after this
	MaxAlerts          int
}

// DefaultDetectorConfig returns the thresholds used by NewManager.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		BroadcastThreshold: 50,
		FloodThreshold:     500,
		PlaintextCooldown:  10 * time.Second,
		Retention:          5 * time.Minute,
		MaxAlerts:          20,
	}
}

// Alert is one suspicious pattern seen in captured traffic.
type Alert struct {
	Kind      AlertKind
	Source    string
	Message   string
	Timestamp time.Time
}

var plaintextPorts = map[int]string{
	21: "FTP",
	23: "Telnet",
	80: "HTTP",
}

type window struct {
	start time.Time
	count int
}

// hit counts one event at t in a one-second window and reports the count.
func (w *window) hit(t time.Time) int {
	if w.start.IsZero() || t.Sub(w.start) > time.Second || t.Before(w.start) {
		w.start = t
		w.count = 0
	}
	w.count++
	return w.count
}

// Detector watches packets for broadcast storms, plaintext protocols and
// single-source floods. Windows run on packet timestamps, so a batch
// delivered late is judged by when it was captured. It is not safe for
// concurrent use.
type Detector struct {
	cfg DetectorConfig

	broadcast window
	sources   map[string]*window
	plaintext map[string]time.Time
	alerts    []Alert
	swept     time.Time
}

// NewDetector creates a detector with cfg; zero fields take the defaults.
func NewDetector(cfg DetectorConfig) *Detector {
	def := DefaultDetectorConfig()
	if cfg.BroadcastThreshold <= 0 {
		cfg.BroadcastThreshold = def.BroadcastThreshold
	}
	if cfg.FloodThreshold <= 0 {
		cfg.FloodThreshold = def.FloodThreshold
	}
	if cfg.PlaintextCooldown <= 0 {
		cfg.PlaintextCooldown = def.PlaintextCooldown
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = def.MaxAlerts
	}
	d := &Detector{cfg: cfg}
	d.Reset()
	return d
}

// Reset forgets all windows and alerts.
func (d *Detector) Reset() {
	d.broadcast = window{}
	d.sources = make(map[string]*window)
	d.plaintext = make(map[string]time.Time)
	d.alerts = nil
	d.swept = time.Time{}
}

func (d *Detector) sweep(now time.Time) {
	if d.swept.IsZero() {
		d.swept = now
		return
	}
	if now.Sub(d.swept) < d.cfg.Retention {
		return
	}
	for src, w := range d.sources {
		if now.Sub(w.start) > d.cfg.Retention {
			delete(d.sources, src)
		}
	}
	for key, last := range d.plaintext {
		if now.Sub(last) > d.cfg.Retention {
			delete(d.plaintext, key)
		}
	}
	d.swept = now
}

// Observe runs every rule over pkts in capture order and returns the
// alerts raised.
func (d *Detector) Observe(pkts []models.PacketRecord) []Alert {
	ordered := append([]models.PacketRecord(nil), pkts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var raised []Alert
	for _, p := range ordered {
		raised = append(raised, d.observe(p)...)
	}
	return raised
}

func (d *Detector) observe(p models.PacketRecord) []Alert {
	d.sweep(p.Timestamp)
	var raised []Alert

	if strings.EqualFold(p.DstMAC, "FF:FF:FF:FF:FF:FF") {
		if n := d.broadcast.hit(p.Timestamp); n > d.cfg.BroadcastThreshold {
			raised = append(raised, d.raise(Alert{
				Kind:      AlertBroadcastStorm,
				Source:    "Network",
				Message:   fmt.Sprintf("Broadcast storm: %d broadcasts in 1 second", n),
				Timestamp: p.Timestamp,
			}))
			d.broadcast = window{}
		}
	}

	if name, ok := plaintextPorts[p.DstPort]; ok && p.SrcIP != "" {
		key := fmt.Sprintf("%s:%d", p.SrcIP, p.DstPort)
		last, seen := d.plaintext[key]
		if !seen || p.Timestamp.Sub(last) > d.cfg.PlaintextCooldown {
			d.plaintext[key] = p.Timestamp
			raised = append(raised, d.raise(Alert{
				Kind:      AlertPlaintext,
				Source:    p.SrcIP,
				Message:   fmt.Sprintf("Plaintext %s traffic on port %d from %s", name, p.DstPort, p.SrcIP),
				Timestamp: p.Timestamp,
			}))
		}
	}

	if p.SrcIP != "" {
		w, ok := d.sources[p.SrcIP]
		if !ok {
			w = &window{}
			d.sources[p.SrcIP] = w
		}
		if n := w.hit(p.Timestamp); n > d.cfg.FloodThreshold {
			raised = append(raised, d.raise(Alert{
				Kind:      AlertFlood,
				Source:    p.SrcIP,
				Message:   fmt.Sprintf("High packet rate from %s: %d pps", p.SrcIP, n),
				Timestamp: p.Timestamp,
			}))
			*w = window{}
		}
	}
	return raised
}

func (d *Detector) raise(a Alert) Alert {
	d.alerts = append(d.alerts, a)
	if len(d.alerts) > d.cfg.MaxAlerts {
		d.alerts = d.alerts[len(d.alerts)-d.cfg.MaxAlerts:]
	}
	return a
}

// Alerts returns up to limit of the most recent alerts, newest last.
func (d *Detector) Alerts(limit int) []Alert {
	start := 0
	if limit > 0 && len(d.alerts) > limit {
		start = len(d.alerts) - limit
	}
	return append([]Alert(nil), d.alerts[start:]...)
}
