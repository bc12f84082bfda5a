package capture

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"wifiwatch/internal/logging"
	"wifiwatch/internal/metrics"
	"wifiwatch/internal/models"
)

var (
	// ErrStart wraps an engine rejection of a capture start.
	ErrStart = errors.New("capture start failed")
	// ErrStop wraps an engine error while stopping a capture.
	ErrStop = errors.New("capture stop failed")
	// ErrPoll wraps a failed poll tick. It is logged, never returned to callers.
	ErrPoll = errors.New("capture poll failed")

	ErrAlreadyCapturing = errors.New("capture already running")
	ErrNoInterface      = errors.New("no capture interface selected")
	ErrClosed           = errors.New("capture manager closed")
)

// DefaultPollInterval is used when a non-positive interval is configured.
const DefaultPollInterval = 3 * time.Second

// Engine is the part of the capture engine the manager drives.
type Engine interface {
	StartCapture(ctx context.Context, iface string) error
	StopCapture(ctx context.Context) error
	// PollLatestPackets returns packets captured since the previous call.
	PollLatestPackets(ctx context.Context) ([]models.PacketRecord, error)
}

// Status is the capture session state.
type Status int

const (
	Idle Status = iota
	Capturing
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Capturing:
		return "Capturing"
	default:
		return "Unknown"
	}
}

// Session is a point-in-time view of the manager state.
type Session struct {
	ID           string // empty when no session has started on this buffer
	Interface    string
	Status       Status
	StartedAt    time.Time
	Packets      int
	PollFailures int
}

// Manager owns the capture session state and the packet buffer. While
// capturing, a single poller goroutine fetches new packets every interval,
// appends them and keeps the buffer ordered newest first.
type Manager struct {
	engine   Engine
	interval time.Duration
	log      logging.Logger
	metrics  *metrics.Recorder

	// opMu serializes Start, Stop, SetInterface and Close.
	opMu sync.Mutex
	// pollMu serializes tick bodies.
	pollMu sync.Mutex

	mu           sync.Mutex
	iface        string
	status       Status
	sessionID    string
	startedAt    time.Time
	pollFailures int
	buffer       []models.PacketRecord
	detector     *Detector
	poller       *poller
	listener     func()
	closed       bool
}

type poller struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates an idle manager targeting iface.
func NewManager(engine Engine, iface string, interval time.Duration, log logging.Logger, rec *metrics.Recorder) *Manager {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Manager{
		engine:   engine,
		interval: interval,
		log:      log.With(logging.String("component", "capture")),
		metrics:  rec,
		iface:    iface,
		detector: NewDetector(DefaultDetectorConfig()),
	}
}

// OnChange sets a function called after every state or buffer change.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
}

// Session returns the current session state.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Session{
		ID:           m.sessionID,
		Interface:    m.iface,
		Status:       m.status,
		StartedAt:    m.startedAt,
		Packets:      len(m.buffer),
		PollFailures: m.pollFailures,
	}
}

// Packets returns a copy of the buffer, newest first.
func (m *Manager) Packets() []models.PacketRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PacketRecord(nil), m.buffer...)
}

// Alerts returns up to limit of the latest traffic alerts for the current
// buffer, newest last.
func (m *Manager) Alerts(limit int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detector.Alerts(limit)
}

// Start begins capturing on iface, or on the current target when iface is
// empty. The buffer is reset for the new session.
func (m *Manager) Start(ctx context.Context, iface string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.status == Capturing {
		m.mu.Unlock()
		return ErrAlreadyCapturing
	}
	if iface == "" {
		iface = m.iface
	}
	m.mu.Unlock()

	if iface == "" {
		m.metrics.CaptureStarted(false)
		return fmt.Errorf("%w: %w", ErrStart, ErrNoInterface)
	}

	if err := m.engine.StartCapture(ctx, iface); err != nil {
		m.metrics.CaptureStarted(false)
		m.log.Error(ctx, "capture start rejected", logging.String("iface", iface), logging.Err(err))
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	p := &poller{id: uuid.NewString(), cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.iface = iface
	m.status = Capturing
	m.sessionID = p.id
	m.startedAt = time.Now()
	m.pollFailures = 0
	m.buffer = nil
	m.detector.Reset()
	m.poller = p
	m.mu.Unlock()

	m.metrics.CaptureStarted(true)
	m.metrics.SetBuffered(0)
	m.log.Info(ctx, "capture started",
		logging.String("iface", iface),
		logging.String("session", p.id),
		logging.Any("interval", m.interval))

	go m.run(pollCtx, p)
	m.notify()
	return nil
}

// Stop ends the session. Local state is Idle and polling is halted whatever
// the engine answers; an engine error is returned wrapped in ErrStop.
// Stopping an idle manager is a no-op.
func (m *Manager) Stop(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	p, iface := m.halt()
	if p == nil {
		return nil
	}

	err := m.engine.StopCapture(ctx)
	if err != nil {
		m.notify()
		m.log.Error(ctx, "capture stop failed", logging.String("iface", iface), logging.Err(err))
		return fmt.Errorf("%w: %w", ErrStop, err)
	}
	m.drain(ctx, p.id)
	m.notify()
	m.log.Info(ctx, "capture stopped", logging.String("iface", iface), logging.String("session", p.id))
	return nil
}

// drain collects the packets the engine captured after the last tick of a
// stopped session. It runs under opMu, so no new session can interleave.
func (m *Manager) drain(ctx context.Context, id string) {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	pkts, err := m.engine.PollLatestPackets(ctx)
	if err != nil {
		m.log.Debug(ctx, "final drain returned nothing", logging.String("session", id), logging.Err(err))
		return
	}
	m.mu.Lock()
	if m.sessionID != id {
		m.mu.Unlock()
		return
	}
	alerts, n := m.appendLocked(pkts)
	m.mu.Unlock()
	m.recordBatch(ctx, len(pkts), n, alerts)
}

// SetInterface changes the capture target. While idle it only records the new
// target. While capturing on a different interface the session is stopped
// and the buffer discarded; reset reports whether that happened. An engine
// stop error is returned wrapped in ErrStop, the reset happens regardless.
func (m *Manager) SetInterface(ctx context.Context, iface string) (reset bool, err error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if iface == m.iface {
		m.mu.Unlock()
		return false, nil
	}
	if m.status != Capturing {
		m.iface = iface
		m.mu.Unlock()
		m.notify()
		return false, nil
	}
	m.mu.Unlock()

	p, old := m.halt()

	m.mu.Lock()
	m.iface = iface
	m.buffer = nil
	m.detector.Reset()
	m.sessionID = ""
	m.mu.Unlock()
	m.metrics.SetBuffered(0)

	m.log.Info(ctx, "capture interface changed, session reset",
		logging.String("from", old),
		logging.String("to", iface),
		logging.String("session", p.id))

	stopErr := m.engine.StopCapture(ctx)
	m.notify()
	if stopErr != nil {
		m.log.Warn(ctx, "engine stop after interface change failed", logging.Err(stopErr))
		return true, fmt.Errorf("%w: %w", ErrStop, stopErr)
	}
	return true, nil
}

// PollNow runs one poll tick immediately. It is a no-op while idle.
func (m *Manager) PollNow(ctx context.Context) {
	m.mu.Lock()
	p := m.poller
	m.mu.Unlock()
	if p == nil {
		return
	}
	m.tick(ctx, p.id)
}

// Close cancels the poller and, when capturing, asks the engine to stop in
// the background without waiting for the answer. The manager rejects new
// sessions afterwards.
func (m *Manager) Close() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	p, iface := m.halt()
	if p == nil {
		return
	}
	go func() {
		ctx := context.Background()
		if err := m.engine.StopCapture(ctx); err != nil {
			m.log.Warn(ctx, "best-effort capture stop failed", logging.String("iface", iface), logging.Err(err))
		}
	}()
}

// halt moves to Idle and waits for the poller to exit. It returns the
// stopped poller, or nil when nothing was running.
func (m *Manager) halt() (*poller, string) {
	m.mu.Lock()
	p := m.poller
	iface := m.iface
	m.poller = nil
	m.status = Idle
	m.mu.Unlock()

	if p == nil {
		return nil, iface
	}
	p.cancel()
	<-p.done
	return p, iface
}

func (m *Manager) run(ctx context.Context, p *poller) {
	defer close(p.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, p.id)
		}
	}
}

func (m *Manager) tick(ctx context.Context, id string) {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	pkts, err := m.engine.PollLatestPackets(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.mu.Lock()
		m.pollFailures++
		m.mu.Unlock()
		m.metrics.PollFinished(0, err)
		m.log.Error(ctx, "packet poll failed", logging.String("session", id), logging.Err(fmt.Errorf("%w: %w", ErrPoll, err)))
		return
	}

	m.mu.Lock()
	if m.poller == nil || m.poller.id != id {
		// Session ended while the engine call was in flight.
		m.mu.Unlock()
		return
	}
	alerts, n := m.appendLocked(pkts)
	m.mu.Unlock()

	m.recordBatch(ctx, len(pkts), n, alerts)
	if len(pkts) > 0 {
		m.notify()
	}
}

// appendLocked adds pkts to the buffer and runs the detector over them.
// m.mu must be held.
func (m *Manager) appendLocked(pkts []models.PacketRecord) ([]Alert, int) {
	if len(pkts) == 0 {
		return nil, len(m.buffer)
	}
	m.buffer = append(m.buffer, pkts...)
	sortNewestFirst(m.buffer)
	return m.detector.Observe(pkts), len(m.buffer)
}

func (m *Manager) recordBatch(ctx context.Context, added, buffered int, alerts []Alert) {
	m.metrics.PollFinished(added, nil)
	m.metrics.SetBuffered(buffered)
	for _, a := range alerts {
		m.metrics.AlertRaised(string(a.Kind))
		m.log.Warn(ctx, a.Message, logging.String("kind", string(a.Kind)), logging.String("source", a.Source))
	}
	if added > 0 {
		m.log.Debug(ctx, "packets appended", logging.Int("new", added), logging.Int("buffered", buffered))
	}
}

func (m *Manager) notify() {
	m.mu.Lock()
	fn := m.listener
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func sortNewestFirst(pkts []models.PacketRecord) {
	sort.SliceStable(pkts, func(i, j int) bool {
		return pkts[i].Timestamp.After(pkts[j].Timestamp)
	})
}
