package console

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wifiwatch/internal/capture"
	"wifiwatch/internal/channels"
	"wifiwatch/internal/models"
	"wifiwatch/internal/scan"
)

type fakeEngine struct {
	mu        sync.Mutex
	progress  [][]models.NetworkRecord
	final     []models.NetworkRecord
	scanErr   error
	sub       chan []models.NetworkRecord
	ifaces    []string
	ifaceErr  error
	capturing string
	packets   [][]models.PacketRecord
}

func (f *fakeEngine) Scan(context.Context) ([]models.NetworkRecord, error) {
	f.mu.Lock()
	sub := f.sub
	progress := f.progress
	f.mu.Unlock()
	for _, b := range progress {
		sub <- b
	}
	return f.final, f.scanErr
}

func (f *fakeEngine) SubscribeProgress() (<-chan []models.NetworkRecord, func()) {
	ch := make(chan []models.NetworkRecord, 16)
	f.mu.Lock()
	f.sub = ch
	f.mu.Unlock()
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

func (f *fakeEngine) ListInterfaces(context.Context) ([]string, error) {
	return f.ifaces, f.ifaceErr
}

func (f *fakeEngine) StartCapture(_ context.Context, iface string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capturing = iface
	return nil
}

func (f *fakeEngine) StopCapture(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capturing = ""
	return nil
}

func (f *fakeEngine) PollLatestPackets(context.Context) ([]models.PacketRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.packets) == 0 {
		return nil, nil
	}
	b := f.packets[0]
	f.packets = f.packets[1:]
	return b, nil
}

func (f *fakeEngine) ChannelOccupancy(ctx context.Context, networks []models.NetworkRecord) ([]models.ChannelMetric, error) {
	return channels.LocalSource{}.ChannelOccupancy(ctx, networks)
}

func network(bssid, ssid string, ch, quality int) models.NetworkRecord {
	return models.NetworkRecord{BSSID: bssid, SSID: ssid, Channel: ch, SignalQuality: quality}
}

func packets(n int) []models.PacketRecord {
	base := time.Unix(1700000000, 0)
	out := make([]models.PacketRecord, n)
	for i := range out {
		out[i] = models.PacketRecord{Timestamp: base.Add(time.Duration(i) * time.Second), Protocol: "TCP", SrcIP: "10.0.0.1", Length: 60}
	}
	return out
}

func TestScanMergesAndOrdersForDisplay(t *testing.T) {
	eng := &fakeEngine{
		progress: [][]models.NetworkRecord{
			{network("A", "alpha", 6, 80)},
			{network("B", "bravo", 6, 60)},
			{network("A", "alpha", 11, 90)},
		},
		final: []models.NetworkRecord{network("C", "charlie", 1, 50), network("D", "hidden-chan", 0, 40)},
	}
	c := New(eng, Options{Interface: "eth0"})
	t.Cleanup(c.Close)

	require.NoError(t, c.BeginScan(context.Background()))
	require.False(t, c.Scanning())
	require.NoError(t, c.LastError())

	nets := c.Networks()
	require.Len(t, nets, 4)
	require.Equal(t, []string{"C", "B", "A", "D"}, []string{nets[0].BSSID, nets[1].BSSID, nets[2].BSSID, nets[3].BSSID})
	require.Equal(t, 11, nets[2].Channel)

	reports := c.Channels()
	require.Len(t, reports, models.ChannelCount)
	require.Greater(t, reports[10].Occupancy, 0.0)
	require.InDelta(t, 0.15, reports[5].Occupancy, 1e-9, "channel 6 holds B only after A moved")

	select {
	case <-c.Changes():
	default:
		t.Fatal("no change signalled")
	}
}

func TestScanFailureIsRecorded(t *testing.T) {
	boom := errors.New("radio unavailable")
	eng := &fakeEngine{
		progress: [][]models.NetworkRecord{{network("A", "alpha", 6, 80)}},
		scanErr:  boom,
	}
	c := New(eng, Options{})

	err := c.BeginScan(context.Background())
	require.ErrorIs(t, err, scan.ErrScanFailure)
	require.ErrorIs(t, c.LastError(), boom)
	require.Len(t, c.Networks(), 1)
}

func TestSelectNetwork(t *testing.T) {
	eng := &fakeEngine{final: []models.NetworkRecord{network("A", "alpha", 6, 80), network("B", "bravo", 1, 80)}}
	c := New(eng, Options{})
	require.NoError(t, c.BeginScan(context.Background()))

	require.NoError(t, c.SelectNetwork(context.Background(), "A"))
	require.Equal(t, "A", c.Selected())
	reports := c.Channels()
	require.InDelta(t, 0.8, reports[5].Occupancy, 1e-9)
	require.Zero(t, reports[0].Occupancy)

	err := c.SelectNetwork(context.Background(), "Z")
	require.ErrorIs(t, err, channels.ErrUnknownNetwork)
	require.ErrorIs(t, c.LastError(), channels.ErrUnknownNetwork)
	require.Equal(t, "A", c.Selected())

	require.NoError(t, c.SelectNetwork(context.Background(), ""))
	require.Empty(t, c.Selected())
	require.NoError(t, c.LastError())
}

func TestCapturePaging(t *testing.T) {
	eng := &fakeEngine{packets: [][]models.PacketRecord{packets(25)}}
	c := New(eng, Options{Interface: "eth0", PollInterval: 5 * time.Millisecond, PageSize: 10})
	t.Cleanup(c.Close)

	require.NoError(t, c.StartCapture(context.Background(), ""))
	require.Equal(t, capture.Capturing, c.CaptureStatus().Status)
	require.Eventually(t, func() bool { return c.CaptureStatus().Packets == 25 }, time.Second, time.Millisecond)

	page := c.Page()
	require.Equal(t, 1, page.Number)
	require.Equal(t, 3, page.Total)
	require.True(t, page.Records[0].Timestamp.After(page.Records[1].Timestamp))

	require.False(t, c.PrevPage())
	require.True(t, c.NextPage())
	require.True(t, c.NextPage())
	require.False(t, c.NextPage())
	page = c.Page()
	require.Equal(t, 3, page.Number)
	require.Len(t, page.Records, 5)

	sum := c.Summary(5)
	require.Equal(t, 25, sum.Packets)

	require.NoError(t, c.StopCapture(context.Background()))
	require.Equal(t, 3, c.Page().Number, "stop keeps the buffer browsable")
	require.NoError(t, c.StopCapture(context.Background()))
}

func TestSetInterfaceWhileCapturingResetsView(t *testing.T) {
	eng := &fakeEngine{packets: [][]models.PacketRecord{packets(25)}}
	c := New(eng, Options{Interface: "eth0", PollInterval: 5 * time.Millisecond, PageSize: 10})
	t.Cleanup(c.Close)

	require.NoError(t, c.StartCapture(context.Background(), ""))
	require.Eventually(t, func() bool { return c.CaptureStatus().Packets == 25 }, time.Second, time.Millisecond)
	c.NextPage()

	require.NoError(t, c.SetInterface(context.Background(), "wlan0"))
	require.Equal(t, "wlan0", c.Interface())
	require.Equal(t, capture.Idle, c.CaptureStatus().Status)
	page := c.Page()
	require.Equal(t, 1, page.Number)
	require.Empty(t, page.Records)
}

func TestListAndCycleInterfaces(t *testing.T) {
	eng := &fakeEngine{ifaces: []string{"eth0", "lo", "wlan0"}}
	c := New(eng, Options{Interface: "lo"})

	ifaces, err := c.ListInterfaces(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"eth0", "lo", "wlan0"}, ifaces)

	require.NoError(t, c.CycleInterface(context.Background()))
	require.Equal(t, "wlan0", c.Interface())
	require.NoError(t, c.CycleInterface(context.Background()))
	require.Equal(t, "eth0", c.Interface())
}

func TestListInterfacesFailure(t *testing.T) {
	eng := &fakeEngine{ifaceErr: errors.New("no permission")}
	c := New(eng, Options{})

	_, err := c.ListInterfaces(context.Background())
	require.ErrorIs(t, err, ErrInterfaceList)
	require.ErrorIs(t, c.LastError(), ErrInterfaceList)
	require.ErrorIs(t, c.CycleInterface(context.Background()), ErrInterfaceList)
}
