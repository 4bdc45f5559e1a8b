package client

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tillsync-server/internal/domain"
)

// CoordinatorConfig tunes a terminal's sync loop.
type CoordinatorConfig struct {
	BatchSize    int
	PullLimit    int
	Debounce     time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	SyncInterval time.Duration
}

func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		BatchSize:    200,
		PullLimit:    1000,
		Debounce:     500 * time.Millisecond,
		BackoffBase:  2 * time.Second,
		BackoffMax:   5 * time.Minute,
		SyncInterval: time.Minute,
	}
}

// ConflictFunc is notified when the server filed a conflict for a local entry.
type ConflictFunc func(localID, conflictID string)

// FailureFunc is notified when an entry was rejected with a permanent error.
type FailureFunc func(localID string, cerr *domain.ChangeError)

// Coordinator drives a terminal's sync cycles: drain the journal into pushes,
// route the results, pull server changes and fold them into the local store.
// At most one cycle runs at a time; triggers that arrive mid-cycle coalesce
// into a single follow-up run.
type Coordinator struct {
	journal   *Journal
	store     *LocalStore
	transport Transport
	cfg       CoordinatorConfig

	onConflict ConflictFunc
	onFailure  FailureFunc

	trigger chan struct{}
	mu      sync.Mutex
	running bool
}

func NewCoordinator(journal *Journal, store *LocalStore, transport Transport, cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{
		journal:   journal,
		store:     store,
		transport: transport,
		cfg:       cfg,
		trigger:   make(chan struct{}, 1),
	}
}

func (c *Coordinator) OnConflict(fn ConflictFunc) { c.onConflict = fn }

func (c *Coordinator) OnPermanentFailure(fn FailureFunc) { c.onFailure = fn }

// Trigger requests a sync cycle. Safe to call from any goroutine; calls while
// a cycle is already queued collapse into one.
func (c *Coordinator) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run loops until ctx is done, syncing on triggers and on the periodic
// interval. Triggers are debounced so a burst of local writes produces one
// cycle.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.trigger:
			c.debounce(ctx)
		case <-ticker.C:
		}

		if err := c.Sync(ctx); err != nil && ctx.Err() == nil {
			log.Printf("sync cycle failed: %v", err)
		}
	}
}

func (c *Coordinator) debounce(ctx context.Context) {
	if c.cfg.Debounce <= 0 {
		return
	}
	timer := time.NewTimer(c.cfg.Debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.trigger:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(c.cfg.Debounce)
		case <-timer.C:
			return
		}
	}
}

// Sync runs one push-then-pull cycle. Concurrent calls are serialized down to
// one; the loser returns immediately.
func (c *Coordinator) Sync(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	if err := c.push(ctx); err != nil {
		return err
	}
	return c.pull(ctx)
}

func (c *Coordinator) push(ctx context.Context) error {
	for {
		entries, err := c.journal.Ready(ctx, c.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		res, err := c.transport.Push(ctx, entries)
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}
		if len(res.Results) != len(entries) {
			return fmt.Errorf("push returned %d results for %d entries", len(res.Results), len(entries))
		}

		deferred := false
		for i, result := range res.Results {
			if err := c.route(ctx, entries[i], result, &deferred); err != nil {
				return err
			}
		}

		// A deferred entry holds back everything behind it, so drain stops.
		if deferred || len(entries) < c.cfg.BatchSize {
			return nil
		}
	}
}

func (c *Coordinator) route(ctx context.Context, entry domain.ChangeEntry, result domain.ChangeResult, deferred *bool) error {
	switch result.Status {
	case domain.StatusAccepted:
		if entry.Action == domain.ActionCreate && result.ServerID != "" {
			if err := c.store.MapLocalID(ctx, entry.Table, entry.LocalID, result.ServerID); err != nil {
				return err
			}
		}
		return c.journal.Ack(ctx, entry.LocalID)

	case domain.StatusConflicted:
		if c.onConflict != nil {
			c.onConflict(entry.LocalID, result.ConflictID)
		}
		return c.journal.Ack(ctx, entry.LocalID)

	case domain.StatusFailed:
		if result.Error != nil && result.Error.Kind.Retryable() {
			*deferred = true
			return c.journal.Defer(ctx, entry.LocalID, c.cfg.BackoffBase, c.cfg.BackoffMax)
		}
		if c.onFailure != nil {
			c.onFailure(entry.LocalID, result.Error)
		}
		return c.journal.Ack(ctx, entry.LocalID)
	}

	return fmt.Errorf("unknown change status %q for entry %s", result.Status, entry.LocalID)
}

func (c *Coordinator) pull(ctx context.Context) error {
	since, err := c.store.Watermark(ctx)
	if err != nil {
		return err
	}

	payload, err := c.transport.Pull(ctx, since, c.cfg.PullLimit)
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	for _, records := range payload.Tables {
		for _, rec := range records {
			if err := c.store.ApplyRecord(ctx, rec); err != nil {
				return err
			}
		}
	}

	return c.store.AdvanceWatermark(ctx, payload.SyncedAt)
}
