package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/gopacket/pcap"

	"wifiwatch/internal/channels"
	"wifiwatch/internal/logging"
	"wifiwatch/internal/models"
)

var (
	ErrAlreadyCapturing = errors.New("engine: capture already running")
	ErrNotCapturing     = errors.New("engine: no capture running")
	ErrScanBusy         = errors.New("engine: scan already running")
	ErrNoScanInterface  = errors.New("engine: no scan interface configured")
)

// Engine is the radio and capture backend the console consumes.
type Engine interface {
	Scan(ctx context.Context) ([]models.NetworkRecord, error)
	SubscribeProgress() (<-chan []models.NetworkRecord, func())
	ListInterfaces(ctx context.Context) ([]string, error)
	StartCapture(ctx context.Context, iface string) error
	StopCapture(ctx context.Context) error
	PollLatestPackets(ctx context.Context) ([]models.PacketRecord, error)
	ChannelOccupancy(ctx context.Context, networks []models.NetworkRecord) ([]models.ChannelMetric, error)
}

// Config controls the libpcap-backed engine.
type Config struct {
	// ScanInterface must support monitor mode with radiotap headers.
	ScanInterface    string
	ScanDuration     time.Duration
	ProgressInterval time.Duration
	// Freshness drops networks not heard from within the window. Zero keeps all.
	Freshness time.Duration

	SnapLen     int
	Promiscuous bool
	BPF         string
	// MaxPending caps packets held between polls; the oldest are dropped first.
	MaxPending int
}

func applyDefaults(cfg Config) Config {
	if cfg.ScanDuration <= 0 {
		cfg.ScanDuration = 10 * time.Second
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 500 * time.Millisecond
	}
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = 65535
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 50000
	}
	return cfg
}

// Pcap implements Engine on top of libpcap via gopacket.
type Pcap struct {
	cfg Config
	log logging.Logger

	subMu   sync.Mutex
	subs    map[int]chan []models.NetworkRecord
	nextSub int

	scanMu sync.Mutex

	capMu   sync.Mutex
	capture *liveCapture

	pendMu  sync.Mutex
	pending []models.PacketRecord
	dropped int
}

// New creates a libpcap-backed engine.
func New(cfg Config, log logging.Logger) *Pcap {
	if log == nil {
		log = logging.Noop()
	}
	return &Pcap{
		cfg:  applyDefaults(cfg),
		log:  log.With(logging.String("component", "engine")),
		subs: make(map[int]chan []models.NetworkRecord),
	}
}

// ListInterfaces returns the names of all capture-capable devices.
func (p *Pcap) ListInterfaces(ctx context.Context) ([]string, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("find devices: %w", err)
	}
	names := make([]string, 0, len(devs))
	for _, d := range devs {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	p.log.Debug(ctx, "listed devices", logging.Int("count", len(names)))
	return names, nil
}

// ChannelOccupancy estimates occupancy in-process.
func (p *Pcap) ChannelOccupancy(ctx context.Context, networks []models.NetworkRecord) ([]models.ChannelMetric, error) {
	return channels.LocalSource{}.ChannelOccupancy(ctx, networks)
}

// SubscribeProgress registers for intermediate scan batches. The cancel func
// unregisters and closes the channel; it is safe to call more than once.
// Batches are dropped for a subscriber that is not keeping up.
func (p *Pcap) SubscribeProgress() (<-chan []models.NetworkRecord, func()) {
	ch := make(chan []models.NetworkRecord, 8)

	p.subMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subs, id)
			close(ch)
			p.subMu.Unlock()
		})
	}
}

func (p *Pcap) broadcast(batch []models.NetworkRecord) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subs {
		out := append([]models.NetworkRecord(nil), batch...)
		select {
		case ch <- out:
		default:
		}
	}
}
