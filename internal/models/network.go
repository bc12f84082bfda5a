package models

import "time"

// SecurityKind is the protection advertised by an access point's beacons.
type SecurityKind string

const (
	SecurityOpen    SecurityKind = "Open"
	SecurityWEP     SecurityKind = "WEP"
	SecurityWPA     SecurityKind = "WPA"
	SecurityWPA2    SecurityKind = "WPA2"
	SecurityUnknown SecurityKind = "Unknown"
)

// NetworkRecord is the latest observation of a single access point.
type NetworkRecord struct {
	BSSID         string // identity, e.g. "AA:BB:CC:DD:EE:FF"
	SSID          string
	SignalQuality int // 0-100
	Frequency     int // MHz
	Channel       int // 0 when unknown
	Security      SecurityKind
	AvgSignal     int // running average, dBm
	BeaconCount   int
	LastSeen      time.Time
}

// HasChannel reports whether the record carries a channel in the 2.4GHz band plan.
func (n NetworkRecord) HasChannel() bool {
	return n.Channel >= MinChannel && n.Channel <= MaxChannel
}
