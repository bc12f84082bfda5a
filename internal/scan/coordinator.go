package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wifiwatch/internal/logging"
	"wifiwatch/internal/metrics"
	"wifiwatch/internal/models"
	"wifiwatch/internal/netstore"
)

var (
	// ErrScanFailure wraps an error returned by the engine's final scan call.
	ErrScanFailure = errors.New("scan failed")
	// ErrScanInProgress is returned when a scan is requested while one is running.
	ErrScanInProgress = errors.New("scan already in progress")
)

// Engine is the part of the radio engine the coordinator drives.
type Engine interface {
	// Scan runs one scan to completion and returns the final batch.
	Scan(ctx context.Context) ([]models.NetworkRecord, error)
	// SubscribeProgress registers for intermediate batches. The returned
	// cancel func unregisters the subscription and may close the channel.
	SubscribeProgress() (<-chan []models.NetworkRecord, func())
}

// Recomputer is told about every new network snapshot.
type Recomputer interface {
	Recompute(ctx context.Context, networks []models.NetworkRecord) error
}

// Status is the coordinator state.
type Status int

const (
	Idle Status = iota
	Scanning
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Scanning:
		return "Scanning"
	default:
		return "Unknown"
	}
}

// Coordinator runs scan sessions: it clears the store, merges progress and
// final batches into it, and republishes the snapshot after every merge.
type Coordinator struct {
	engine  Engine
	store   *netstore.Store
	board   Recomputer
	log     logging.Logger
	metrics *metrics.Recorder

	mu       sync.Mutex
	status   Status
	listener func([]models.NetworkRecord)

	// mergeMu makes upsert+publish of one batch atomic for readers.
	mergeMu sync.Mutex
}

// NewCoordinator wires a coordinator around store. board may be nil.
func NewCoordinator(engine Engine, store *netstore.Store, board Recomputer, log logging.Logger, rec *metrics.Recorder) *Coordinator {
	if log == nil {
		log = logging.Noop()
	}
	return &Coordinator{
		engine:  engine,
		store:   store,
		board:   board,
		log:     log.With(logging.String("component", "scan")),
		metrics: rec,
	}
}

// OnUpdate sets the function called with each published snapshot.
func (c *Coordinator) OnUpdate(fn func([]models.NetworkRecord)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = fn
}

// Status returns the current state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns the current network set.
func (c *Coordinator) Snapshot() []models.NetworkRecord {
	return c.store.Snapshot()
}

// BeginScan runs one scan session and blocks until the engine's final scan
// call returns. It returns ErrScanInProgress immediately if a scan is already
// running. On return the store holds the union of every progress and final
// batch, each BSSID at its latest observation. A failed final call is
// reported as ErrScanFailure; records merged before the failure stay.
func (c *Coordinator) BeginScan(ctx context.Context) error {
	c.mu.Lock()
	if c.status == Scanning {
		c.mu.Unlock()
		c.metrics.ScanFinished("rejected")
		return ErrScanInProgress
	}
	c.status = Scanning
	c.mu.Unlock()
	defer c.setStatus(Idle)

	start := time.Now()
	c.log.Info(ctx, "scan started")

	c.mergeMu.Lock()
	c.store.Clear()
	c.publish(ctx)
	c.mergeMu.Unlock()

	events, unsubscribe := c.engine.SubscribeProgress()
	stop := make(chan struct{})
	drained := make(chan struct{})
	go c.consume(ctx, events, stop, drained)

	final, err := c.engine.Scan(ctx)

	// Progress batches that arrived before the final result are merged first.
	unsubscribe()
	close(stop)
	<-drained

	if len(final) > 0 {
		c.merge(ctx, final)
	}

	if err != nil {
		c.metrics.ScanFinished("failed")
		c.log.Error(ctx, "scan failed",
			logging.Err(err),
			logging.Int("networks", c.store.Len()),
			logging.Any("elapsed", time.Since(start)))
		return fmt.Errorf("%w: %w", ErrScanFailure, err)
	}

	c.metrics.ScanFinished("ok")
	c.log.Info(ctx, "scan completed",
		logging.Int("networks", c.store.Len()),
		logging.Any("elapsed", time.Since(start)))
	return nil
}

func (c *Coordinator) consume(ctx context.Context, events <-chan []models.NetworkRecord, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case batch, ok := <-events:
			if !ok {
				return
			}
			c.merge(ctx, batch)
		case <-stop:
			// Drain whatever is still buffered, then quit.
			for {
				select {
				case batch, ok := <-events:
					if !ok {
						return
					}
					c.merge(ctx, batch)
				default:
					return
				}
			}
		}
	}
}

func (c *Coordinator) merge(ctx context.Context, batch []models.NetworkRecord) {
	c.mergeMu.Lock()
	defer c.mergeMu.Unlock()

	c.store.UpsertAll(batch)
	c.log.Debug(ctx, "merged scan batch", logging.Int("batch", len(batch)))
	c.publish(ctx)
}

// publish must be called with mergeMu held.
func (c *Coordinator) publish(ctx context.Context) {
	snap := c.store.Snapshot()
	c.metrics.SetNetworks(len(snap))

	if c.board != nil {
		// The board logs its own failures and keeps its previous reports.
		_ = c.board.Recompute(ctx, snap)
	}

	c.mu.Lock()
	fn := c.listener
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}
