package engine

import (
	"bytes"
	"sort"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"wifiwatch/internal/models"
)

// beacon is what one 802.11 beacon frame tells us about its access point.
type beacon struct {
	BSSID     string
	SSID      string
	Frequency int
	Channel   int
	Security  models.SecurityKind
	Signal    int // dBm
	HasSignal bool
}

// capability bit for WEP/WPA privacy in the beacon fixed parameters.
const capabilityPrivacy = 0x0010

var wpaOUI = []byte{0x00, 0x50, 0xf2, 0x01}

// decodeBeacon parses a radiotap-framed 802.11 frame. It reports false for
// anything that is not a beacon from a named (non-hidden) network.
func decodeBeacon(data []byte) (beacon, bool) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeRadioTap, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	dot11, ok := pkt.Layer(layers.LayerTypeDot11).(*layers.Dot11)
	if !ok || dot11.Type != layers.Dot11TypeMgmtBeacon {
		return beacon{}, false
	}
	mgmt, ok := pkt.Layer(layers.LayerTypeDot11MgmtBeacon).(*layers.Dot11MgmtBeacon)
	if !ok {
		return beacon{}, false
	}

	b := beacon{BSSID: strings.ToUpper(dot11.Address3.String())}

	if rt, ok := pkt.Layer(layers.LayerTypeRadioTap).(*layers.RadioTap); ok {
		if rt.Present.Channel() {
			b.Frequency = int(rt.ChannelFrequency)
		}
		if rt.Present.DBMAntennaSignal() {
			b.Signal = int(rt.DBMAntennaSignal)
			b.HasSignal = true
		}
	}

	var rsn, wpa bool
	for _, l := range pkt.Layers() {
		ie, ok := l.(*layers.Dot11InformationElement)
		if !ok {
			continue
		}
		switch ie.ID {
		case layers.Dot11InformationElementIDSSID:
			b.SSID = string(ie.Info)
		case layers.Dot11InformationElementIDDSSet:
			if len(ie.Info) > 0 {
				b.Channel = int(ie.Info[0])
			}
		case layers.Dot11InformationElementIDRSNInfo:
			rsn = true
		case layers.Dot11InformationElementIDVendor:
			if bytes.Equal(ie.OUI, wpaOUI) {
				wpa = true
			}
		}
	}

	if strings.Trim(b.SSID, "\x00") == "" {
		return beacon{}, false
	}
	if b.Channel == 0 {
		b.Channel = frequencyToChannel(b.Frequency)
	}

	switch {
	case rsn:
		b.Security = models.SecurityWPA2
	case wpa:
		b.Security = models.SecurityWPA
	case mgmt.Flags&capabilityPrivacy != 0:
		b.Security = models.SecurityWEP
	default:
		b.Security = models.SecurityOpen
	}
	return b, true
}

// frequencyToChannel maps a centre frequency in MHz to its channel number,
// or 0 when unknown.
func frequencyToChannel(mhz int) int {
	switch {
	case mhz == 2484:
		return 14
	case mhz >= 2412 && mhz <= 2472:
		return (mhz - 2407) / 5
	case mhz >= 5160 && mhz <= 5885:
		return (mhz - 5000) / 5
	default:
		return 0
	}
}

// signalQuality maps dBm onto 0-100: -100dBm and below is 0, -50dBm and above is 100.
func signalQuality(dbm int) int {
	q := (dbm + 100) * 2
	if q < 0 {
		return 0
	}
	if q > 100 {
		return 100
	}
	return q
}

// beaconTable accumulates beacons by BSSID for one scan.
type beaconTable struct {
	freshness time.Duration
	networks  map[string]*models.NetworkRecord
}

func newBeaconTable(freshness time.Duration) *beaconTable {
	return &beaconTable{freshness: freshness, networks: make(map[string]*models.NetworkRecord)}
}

func (t *beaconTable) observe(b beacon, at time.Time) {
	n, ok := t.networks[b.BSSID]
	if !ok {
		n = &models.NetworkRecord{BSSID: b.BSSID}
		t.networks[b.BSSID] = n
	}
	n.SSID = b.SSID
	n.Security = b.Security
	if b.Frequency != 0 {
		n.Frequency = b.Frequency
	}
	if b.Channel != 0 {
		n.Channel = b.Channel
	}
	n.LastSeen = at
	n.BeaconCount++

	if b.HasSignal {
		n.SignalQuality = signalQuality(b.Signal)
		if n.BeaconCount > 1 {
			n.AvgSignal = (n.AvgSignal*(n.BeaconCount-1) + b.Signal) / n.BeaconCount
		} else {
			n.AvgSignal = b.Signal
		}
	}
}

// fresh returns copies of networks heard within the freshness window, by BSSID.
func (t *beaconTable) fresh(now time.Time) []models.NetworkRecord {
	out := make([]models.NetworkRecord, 0, len(t.networks))
	for _, n := range t.networks {
		if t.freshness > 0 && now.Sub(n.LastSeen) >= t.freshness {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BSSID < out[j].BSSID })
	return out
}
