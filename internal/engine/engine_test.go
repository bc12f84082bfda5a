package engine

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/stretchr/testify/require"

	"wifiwatch/internal/models"
)

var (
	bssidA = []byte{0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x01}
	bssidB = []byte{0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x02}
)

func ie(id byte, data ...byte) []byte {
	return append([]byte{id, byte(len(data))}, data...)
}

func ssid(name string) []byte { return ie(0, []byte(name)...) }

// beaconFrame builds a radiotap (channel + dBm signal) framed beacon.
func beaconFrame(freq uint16, dbm int8, bssid []byte, capability uint16, elems ...[]byte) []byte {
	rt := []byte{0, 0, 13, 0, 0x28, 0, 0, 0, 0, 0, 0xa0, 0x00, byte(dbm)}
	binary.LittleEndian.PutUint16(rt[8:], freq)

	hdr := []byte{0x80, 0x00, 0, 0}
	hdr = append(hdr, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	hdr = append(hdr, bssid...)
	hdr = append(hdr, bssid...)
	hdr = append(hdr, 0x10, 0x00)

	fixed := make([]byte, 12)
	fixed[8] = 0x64
	binary.LittleEndian.PutUint16(fixed[10:], capability)

	out := append(rt, hdr...)
	out = append(out, fixed...)
	for _, e := range elems {
		out = append(out, e...)
	}
	return out
}

func TestDecodeBeaconSecurity(t *testing.T) {
	rsn := ie(48, 0x01, 0x00, 0x00, 0x0f, 0xac, 0x04)
	wpa := ie(221, 0x00, 0x50, 0xf2, 0x01, 0x01, 0x00)

	cases := []struct {
		name  string
		frame []byte
		want  models.SecurityKind
	}{
		{"rsn", beaconFrame(2437, -40, bssidA, 0x0011, ssid("home"), ie(3, 6), rsn), models.SecurityWPA2},
		{"wpa", beaconFrame(2437, -40, bssidA, 0x0011, ssid("home"), wpa), models.SecurityWPA},
		{"rsn wins over wpa", beaconFrame(2437, -40, bssidA, 0x0011, ssid("home"), wpa, rsn), models.SecurityWPA2},
		{"privacy bit", beaconFrame(2437, -40, bssidA, 0x0011, ssid("home")), models.SecurityWEP},
		{"open", beaconFrame(2437, -40, bssidA, 0x0001, ssid("cafe")), models.SecurityOpen},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b, ok := decodeBeacon(c.frame)
			require.True(t, ok)
			require.Equal(t, c.want, b.Security)
		})
	}
}

func TestDecodeBeaconFields(t *testing.T) {
	b, ok := decodeBeacon(beaconFrame(2437, -60, bssidA, 0x0001, ssid("cafe"), ie(3, 6)))
	require.True(t, ok)
	require.Equal(t, "AA:BB:CC:00:00:01", b.BSSID)
	require.Equal(t, "cafe", b.SSID)
	require.Equal(t, 2437, b.Frequency)
	require.Equal(t, 6, b.Channel)
	require.True(t, b.HasSignal)
	require.Equal(t, -60, b.Signal)
}

func TestDecodeBeaconChannelFromFrequency(t *testing.T) {
	b, ok := decodeBeacon(beaconFrame(2462, -50, bssidA, 0x0001, ssid("cafe")))
	require.True(t, ok)
	require.Equal(t, 11, b.Channel)
}

func TestDecodeBeaconRejects(t *testing.T) {
	_, ok := decodeBeacon(beaconFrame(2437, -40, bssidA, 0x0001, ssid("")))
	require.False(t, ok, "hidden network accepted")

	_, ok = decodeBeacon(beaconFrame(2437, -40, bssidA, 0x0001, ssid("\x00\x00\x00")))
	require.False(t, ok, "nulled SSID accepted")

	probe := beaconFrame(2437, -40, bssidA, 0x0001, ssid("cafe"))
	probe[13] = 0x40
	_, ok = decodeBeacon(probe)
	require.False(t, ok, "probe request accepted")

	_, ok = decodeBeacon([]byte{0x00, 0x01})
	require.False(t, ok)
}

func TestFrequencyToChannel(t *testing.T) {
	cases := map[int]int{2412: 1, 2437: 6, 2472: 13, 2484: 14, 5180: 36, 5745: 149, 0: 0, 900: 0}
	for mhz, want := range cases {
		if got := frequencyToChannel(mhz); got != want {
			t.Errorf("frequencyToChannel(%d) = %d, want %d", mhz, got, want)
		}
	}
}

func TestSignalQuality(t *testing.T) {
	cases := map[int]int{-110: 0, -100: 0, -75: 50, -50: 100, -20: 100}
	for dbm, want := range cases {
		if got := signalQuality(dbm); got != want {
			t.Errorf("signalQuality(%d) = %d, want %d", dbm, got, want)
		}
	}
}

func TestBeaconTableFreshness(t *testing.T) {
	now := time.Unix(1700000000, 0)
	table := newBeaconTable(10 * time.Second)
	table.observe(beacon{BSSID: "B", SSID: "b", Channel: 1, Signal: -50, HasSignal: true}, now.Add(-20*time.Second))
	table.observe(beacon{BSSID: "A", SSID: "a", Channel: 6, Signal: -50, HasSignal: true}, now.Add(-time.Second))
	table.observe(beacon{BSSID: "A", SSID: "a", Channel: 6, Signal: -70, HasSignal: true}, now)

	got := table.fresh(now)
	require.Len(t, got, 1)
	require.Equal(t, "A", got[0].BSSID)
	require.Equal(t, 2, got[0].BeaconCount)
	require.Equal(t, -60, got[0].AvgSignal)
	require.Equal(t, 60, got[0].SignalQuality)

	table.freshness = 0
	require.Len(t, table.fresh(now), 2)
}

// scriptedReader replays frames and advances a fake clock on every read.
type scriptedReader struct {
	frames [][]byte
	now    time.Time
	step   time.Duration
	end    error
	// drained runs once when the scripted frames run out.
	drained func()
}

func (r *scriptedReader) clock() time.Time { return r.now }

func (r *scriptedReader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	r.now = r.now.Add(r.step)
	if len(r.frames) == 0 {
		if r.drained != nil {
			r.drained()
			r.drained = nil
		}
		if r.end != nil {
			return nil, gopacket.CaptureInfo{}, r.end
		}
		return nil, gopacket.CaptureInfo{}, pcap.NextErrorTimeoutExpired
	}
	f := r.frames[0]
	r.frames = r.frames[1:]
	return f, gopacket.CaptureInfo{Timestamp: r.now, Length: len(f), CaptureLength: len(f)}, nil
}

func TestCollectBroadcastsProgress(t *testing.T) {
	p := New(Config{ScanInterface: "wlan0mon", ScanDuration: time.Second, ProgressInterval: 300 * time.Millisecond}, nil)
	progress, cancel := p.SubscribeProgress()
	defer cancel()

	r := &scriptedReader{
		now:  time.Unix(1700000000, 0),
		step: 100 * time.Millisecond,
		frames: [][]byte{
			beaconFrame(2412, -50, bssidA, 0x0001, ssid("one"), ie(3, 1)),
			beaconFrame(2437, -60, bssidB, 0x0011, ssid("two"), ie(3, 6)),
			beaconFrame(2412, -70, bssidA, 0x0001, ssid("one"), ie(3, 1)),
		},
	}

	table, err := p.collect(context.Background(), r, r.clock)
	require.NoError(t, err)

	final := table.fresh(r.now)
	require.Len(t, final, 2)
	require.Equal(t, "AA:BB:CC:00:00:01", final[0].BSSID)
	require.Equal(t, 2, final[0].BeaconCount)
	require.Equal(t, 1, final[0].Channel)
	require.Equal(t, models.SecurityWEP, final[1].Security)

	select {
	case batch := <-progress:
		require.Len(t, batch, 2)
	default:
		t.Fatal("no progress batch broadcast")
	}
}

func TestCollectHonoursCancel(t *testing.T) {
	p := New(Config{ScanDuration: time.Hour, ProgressInterval: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &scriptedReader{
		now:     time.Unix(1700000000, 0),
		step:    time.Millisecond,
		frames:  [][]byte{beaconFrame(2437, -55, bssidA, 0x0001, ssid("late"), ie(3, 6))},
		drained: cancel,
	}
	table, err := p.collect(ctx, r, r.clock)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, table)

	heard := table.fresh(r.now)
	require.Len(t, heard, 1, "networks heard before cancel must be kept")
	require.Equal(t, "late", heard[0].SSID)
}

func TestCollectCancelledBeforeFirstRead(t *testing.T) {
	p := New(Config{ScanDuration: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &scriptedReader{now: time.Unix(0, 0), step: time.Millisecond}
	table, err := p.collect(ctx, r, r.clock)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, table.fresh(r.now))
}

func TestCollectReadError(t *testing.T) {
	p := New(Config{ScanDuration: time.Hour, ProgressInterval: time.Hour}, nil)
	r := &scriptedReader{
		now:    time.Unix(1700000000, 0),
		step:   time.Millisecond,
		frames: [][]byte{beaconFrame(2412, -60, bssidB, 0x0001, ssid("kept"), ie(3, 1))},
		end:    io.ErrUnexpectedEOF,
	}
	table, err := p.collect(context.Background(), r, r.clock)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Len(t, table.fresh(r.now), 1)
}

func TestScanPreconditions(t *testing.T) {
	_, err := New(Config{}, nil).Scan(context.Background())
	require.ErrorIs(t, err, ErrNoScanInterface)

	p := New(Config{ScanInterface: "wlan0mon"}, nil)
	p.scanMu.Lock()
	_, err = p.Scan(context.Background())
	p.scanMu.Unlock()
	require.ErrorIs(t, err, ErrScanBusy)
}

func TestSubscribeProgressCancel(t *testing.T) {
	p := New(Config{}, nil)
	ch, cancel := p.SubscribeProgress()
	cancel()
	cancel()

	_, open := <-ch
	require.False(t, open)
	p.broadcast([]models.NetworkRecord{{BSSID: "A"}})
}

var (
	macA = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	macB = net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb}
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func tcpFrame(t *testing.T, dst layers.TCPPort, payload string) []byte {
	eth := &layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IP{192, 168, 1, 10}, DstIP: net.IP{93, 184, 216, 34}}
	tcp := &layers.TCP{SrcPort: 51000, DstPort: dst, Seq: 1, PSH: true, ACK: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, eth, ip, tcp, gopacket.Payload(payload))
}

func TestDecodePacketTCPWithHTTP(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	data := tcpFrame(t, 80, "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")

	rec := DecodePacket(data, gopacket.CaptureInfo{Timestamp: ts}, layers.LinkTypeEthernet)
	require.Equal(t, ts, rec.Timestamp)
	require.Equal(t, "00:11:22:33:44:55", rec.SrcMAC)
	require.Equal(t, "66:77:88:99:AA:BB", rec.DstMAC)
	require.Equal(t, "192.168.1.10", rec.SrcIP)
	require.Equal(t, "93.184.216.34", rec.DstIP)
	require.Equal(t, "TCP", rec.Protocol)
	require.Equal(t, 51000, rec.SrcPort)
	require.Equal(t, 80, rec.DstPort)
	require.Equal(t, len(data), rec.Length)
	require.Contains(t, rec.Payload, "Host: example.com")
}

func TestDecodePacketNonHTTPHasNoPayload(t *testing.T) {
	rec := DecodePacket(tcpFrame(t, 443, "\x16\x03\x01"), gopacket.CaptureInfo{}, layers.LinkTypeEthernet)
	require.Equal(t, 443, rec.DstPort)
	require.Empty(t, rec.Payload)
}

func TestDecodePacketUDPAndARP(t *testing.T) {
	eth := &layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 53}}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	rec := DecodePacket(serialize(t, eth, ip, udp, gopacket.Payload("q")), gopacket.CaptureInfo{}, layers.LinkTypeEthernet)
	require.Equal(t, "UDP", rec.Protocol)
	require.Equal(t, 53, rec.DstPort)

	arpEth := &layers.Ethernet{SrcMAC: macA, DstMAC: net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: macA, SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress: make([]byte, 6), DstProtAddress: []byte{10, 0, 0, 2},
	}
	rec = DecodePacket(serialize(t, arpEth, arp), gopacket.CaptureInfo{}, layers.LinkTypeEthernet)
	require.Equal(t, "ARP", rec.Protocol)
	require.Empty(t, rec.SrcIP)
	require.False(t, rec.HasPorts())
}

func TestDecodePacketOtherProtocols(t *testing.T) {
	eth := &layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocol(253),
		SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 2}}
	rec := DecodePacket(serialize(t, eth, ip, gopacket.Payload{0, 0, 0, 0}), gopacket.CaptureInfo{}, layers.LinkTypeEthernet)
	require.Equal(t, "IPv4 (253)", rec.Protocol)

	raw := &layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetType(0x88b5)}
	rec = DecodePacket(serialize(t, raw, gopacket.Payload{1, 2, 3, 4}), gopacket.CaptureInfo{}, layers.LinkTypeEthernet)
	require.Equal(t, "Unknown (0x88b5)", rec.Protocol)
}

func TestReadLoopBuffersAndCaps(t *testing.T) {
	p := New(Config{MaxPending: 2}, nil)
	r := &scriptedReader{
		now:    time.Unix(1700000000, 0),
		step:   time.Millisecond,
		frames: [][]byte{tcpFrame(t, 80, "a"), tcpFrame(t, 81, "b"), tcpFrame(t, 82, "c")},
		end:    io.EOF,
	}
	p.readLoop(context.Background(), r, layers.LinkTypeEthernet)

	// no capture running, but buffered packets are still handed over once
	got, err := p.PollLatestPackets(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 81, got[0].DstPort)
	require.Equal(t, 82, got[1].DstPort)
	require.Equal(t, 1, p.dropped)

	_, err = p.PollLatestPackets(context.Background())
	require.ErrorIs(t, err, ErrNotCapturing)
}

func TestStopWithoutCapture(t *testing.T) {
	require.ErrorIs(t, New(Config{}, nil).StopCapture(context.Background()), ErrNotCapturing)
}

func TestDecodePacketUnknownLinkPayload(t *testing.T) {
	// Raw link carrying bytes that are neither IPv4 nor IPv6.
	data := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}
	rec := DecodePacket(data, gopacket.CaptureInfo{}, layers.LinkTypeRaw)
	require.Equal(t, "Unknown", rec.Protocol)
	require.Empty(t, rec.SrcIP)
	require.Equal(t, len(data), rec.Length)
}
