package console

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"wifiwatch/internal/capture"
	"wifiwatch/internal/channels"
	"wifiwatch/internal/logging"
	"wifiwatch/internal/metrics"
	"wifiwatch/internal/models"
	"wifiwatch/internal/netstore"
	"wifiwatch/internal/reporting"
	"wifiwatch/internal/scan"
)

// ErrInterfaceList wraps a failure to enumerate capture interfaces.
var ErrInterfaceList = errors.New("interface list failed")

// Engine is everything the console needs from the radio and capture backend.
type Engine interface {
	scan.Engine
	capture.Engine
	channels.Source
	ListInterfaces(ctx context.Context) ([]string, error)
}

// Options configures a Console. Zero values fall back to package defaults.
type Options struct {
	Interface    string
	PollInterval time.Duration
	PageSize     int
	ReportDir    string
	Log          logging.Logger
	Metrics      *metrics.Recorder
}

// Console is the state a presentation layer renders and the commands it
// issues. Every command records its failure as the last error so a UI can
// show it without tracking errors itself.
type Console struct {
	engine Engine
	log    logging.Logger

	store   *netstore.Store
	board   *channels.Board
	scans   *scan.Coordinator
	capture *capture.Manager

	reportDir string

	mu         sync.Mutex
	pager      *capture.Pager
	interfaces []string
	lastErr    error

	changes chan struct{}
}

// New wires a console around engine.
func New(engine Engine, opts Options) *Console {
	log := opts.Log
	if log == nil {
		log = logging.Noop()
	}
	store := netstore.New()
	board := channels.NewBoard(engine, log, opts.Metrics)

	c := &Console{
		engine:  engine,
		log:     log.With(logging.String("component", "console")),
		store:   store,
		board:   board,
		scans:   scan.NewCoordinator(engine, store, board, log, opts.Metrics),
		capture: capture.NewManager(engine, opts.Interface, opts.PollInterval, log, opts.Metrics),
		pager:   capture.NewPager(opts.PageSize),
		changes: make(chan struct{}, 1),

		reportDir: opts.ReportDir,
	}
	c.scans.OnUpdate(func([]models.NetworkRecord) { c.notify() })
	c.capture.OnChange(c.notify)
	return c
}

// Changes is signalled after any state change. Signals coalesce: a reader
// that falls behind sees one pending signal, not one per change.
func (c *Console) Changes() <-chan struct{} {
	return c.changes
}

// Networks returns the discovered networks ordered for display: by channel,
// then SSID, with networks of unknown channel last.
func (c *Console) Networks() []models.NetworkRecord {
	nets := c.store.Snapshot()
	sort.SliceStable(nets, func(i, j int) bool {
		a, b := nets[i], nets[j]
		if a.HasChannel() != b.HasChannel() {
			return a.HasChannel()
		}
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.SSID < b.SSID
	})
	return nets
}

// Scanning reports whether a scan is running.
func (c *Console) Scanning() bool {
	return c.scans.Status() == scan.Scanning
}

// Channels returns the 13 channel reports for the full set or the selection.
func (c *Console) Channels() []channels.Report {
	return c.board.Reports()
}

// BestChannel returns the least congested channel.
func (c *Console) BestChannel() channels.Report {
	return c.board.Best()
}

// Selected returns the BSSID the channel view is narrowed to, if any.
func (c *Console) Selected() string {
	return c.board.Selected()
}

// CaptureStatus returns the capture session state.
func (c *Console) CaptureStatus() capture.Session {
	return c.capture.Session()
}

// Page returns the packet page currently on display.
func (c *Console) Page() capture.Page {
	pkts := c.capture.Packets()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pager.Page(pkts)
}

// Summary aggregates the whole packet buffer.
func (c *Console) Summary(talkers int) capture.Summary {
	return capture.Summarize(c.capture.Packets(), talkers)
}

// Alerts returns up to limit of the latest traffic alerts, newest last.
func (c *Console) Alerts(limit int) []capture.Alert {
	return c.capture.Alerts(limit)
}

// Interface returns the current capture target.
func (c *Console) Interface() string {
	return c.capture.Session().Interface
}

// Interfaces returns the interfaces found by the last ListInterfaces call.
func (c *Console) Interfaces() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.interfaces...)
}

// LastError returns the most recent command failure, or nil if the last
// command succeeded.
func (c *Console) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// BeginScan runs one scan and blocks until it finishes.
func (c *Console) BeginScan(ctx context.Context) error {
	return c.record(c.scans.BeginScan(ctx))
}

// SelectNetwork narrows the channel view to one network; "" clears the selection.
func (c *Console) SelectNetwork(ctx context.Context, bssid string) error {
	return c.record(c.board.Select(ctx, bssid))
}

// StartCapture starts a session on iface, or on the current target when
// iface is empty. The view returns to page 1.
func (c *Console) StartCapture(ctx context.Context, iface string) error {
	err := c.capture.Start(ctx, iface)
	if err == nil {
		c.mu.Lock()
		c.pager.Reset()
		c.mu.Unlock()
	}
	return c.record(err)
}

// StopCapture ends the session. The buffer stays browsable.
func (c *Console) StopCapture(ctx context.Context) error {
	return c.record(c.capture.Stop(ctx))
}

// NextPage moves the packet view one page on, if there is one.
func (c *Console) NextPage() bool {
	n := len(c.capture.Packets())
	c.mu.Lock()
	moved := c.pager.Next(n)
	c.mu.Unlock()
	if moved {
		c.notify()
	}
	return moved
}

// PrevPage moves the packet view one page back, if there is one.
func (c *Console) PrevPage() bool {
	c.mu.Lock()
	moved := c.pager.Prev()
	c.mu.Unlock()
	if moved {
		c.notify()
	}
	return moved
}

// SetInterface changes the capture target. A running capture on another
// interface is stopped and its packets discarded.
func (c *Console) SetInterface(ctx context.Context, iface string) error {
	reset, err := c.capture.SetInterface(ctx, iface)
	if reset {
		c.mu.Lock()
		c.pager.Reset()
		c.mu.Unlock()
	}
	return c.record(err)
}

// CycleInterface moves the capture target to the next listed interface.
func (c *Console) CycleInterface(ctx context.Context) error {
	ifaces := c.Interfaces()
	if len(ifaces) == 0 {
		var err error
		if ifaces, err = c.ListInterfaces(ctx); err != nil {
			return err
		}
	}
	if len(ifaces) == 0 {
		return nil
	}
	current := c.Interface()
	next := ifaces[0]
	for i, name := range ifaces {
		if name == current {
			next = ifaces[(i+1)%len(ifaces)]
			break
		}
	}
	return c.SetInterface(ctx, next)
}

// ListInterfaces asks the engine for capture interfaces and remembers them.
func (c *Console) ListInterfaces(ctx context.Context) ([]string, error) {
	ifaces, err := c.engine.ListInterfaces(ctx)
	if err != nil {
		c.log.Error(ctx, "interface list failed", logging.Err(err))
		return nil, c.record(fmt.Errorf("%w: %w", ErrInterfaceList, err))
	}
	c.mu.Lock()
	c.interfaces = append([]string(nil), ifaces...)
	c.mu.Unlock()
	return ifaces, c.record(nil)
}

// WriteReport exports the current session as an HTML report and returns its path.
func (c *Console) WriteReport(ctx context.Context) (string, error) {
	path, err := reporting.GenerateSessionReport(c.reportDir, reporting.Session{
		Interface: c.Interface(),
		Networks:  c.Networks(),
		Channels:  c.Channels(),
		Best:      c.BestChannel(),
		Capture:   c.Summary(10),
		Alerts:    c.Alerts(0),
	})
	if err != nil {
		c.log.Error(ctx, "report failed", logging.Err(err))
		return "", c.record(fmt.Errorf("write report: %w", err))
	}
	c.log.Info(ctx, "report written", logging.String("path", path))
	return path, c.record(nil)
}

// Close stops polling and releases the capture session.
func (c *Console) Close() {
	c.capture.Close()
}

func (c *Console) record(err error) error {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.notify()
	return err
}

func (c *Console) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}
