// Package seskeep caches browser sessions (cookies + per-origin web storage)
// for test automation, so setup procedures like login flows run once per run
// instead of once per test.
//
// The pipeline per Session() call:
//
//	derive key → registry lookup → clear environment → setup-or-restore →
//	validate → cache → blank page
//
// Key features:
//   - Canonical session keys from string, list, or record identifiers
//   - Snapshot/restore of cookies and local/sessionStorage across origins
//   - Validation with a single setup re-run when a restored session is stale
//   - Optional cross-run persistence (sqlite) keyed by a setup fingerprint
//   - Control surfaces: MCP tools and a chi HTTP admin router
//
// Usage:
//
//	k, err := seskeep.New(cfg, logger)
//	defer k.Close()
//	k.Start(ctx)
//	err = k.Session(ctx, "admin", loginAsAdmin, seskeep.WithValidate(stillLoggedIn))
package seskeep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/seskeep/idgen"
	"github.com/hazyhaar/seskeep/seskeep/internal/browser"
	"github.com/hazyhaar/seskeep/seskeep/internal/lifecycle"
	"github.com/hazyhaar/seskeep/seskeep/internal/store"
	"github.com/hazyhaar/seskeep/watch"
)

// Keeper is the session registry and lifecycle front end.
type Keeper struct {
	config *Config
	logger *slog.Logger
	newID  idgen.Generator

	store *store.Store // nil when persistence is off
	mgr   *browser.Manager
	drv   lifecycle.Driver

	// mem is the per-run registry. Tests run serially, so lifecycle access
	// is sequential; the mutex covers the map and the fields of entries in
	// it, since control surfaces call in from other goroutines. Entries
	// leave the lock's scope only as copies.
	mu  sync.Mutex
	mem map[string]*store.Entry

	watcher   *watch.Watcher
	stopWatch context.CancelFunc

	hits          atomic.Int64
	misses        atomic.Int64
	setups        atomic.Int64
	invalidations atomic.Int64
	failures      atomic.Int64
	clears        atomic.Int64
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithDriver substitutes the browser driver. Used by tests; production
// keepers build a CDP driver from the managed Chrome instance on Start.
func WithDriver(d lifecycle.Driver) Option {
	return func(k *Keeper) { k.drv = d }
}

// WithIDGenerator sets a custom generator for entry IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(k *Keeper) { k.newID = gen }
}

// New creates a Keeper. When cfg.Persist is on it opens the registry
// database; the browser is not launched until Start.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Keeper, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	k := &Keeper{
		config: cfg,
		logger: logger,
		newID:  idgen.Prefixed("ses_", idgen.Default),
		mem:    map[string]*store.Entry{},
	}
	for _, o := range opts {
		o(k)
	}

	if cfg.Persist {
		s, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("seskeep: open registry: %w", err)
		}
		k.store = s
		k.watcher = watch.New(s.DB, watch.Options{
			Interval: cfg.Watch.Interval,
			Debounce: cfg.Watch.Debounce,
			Logger:   logger,
		})
	}

	return k, nil
}

// Start launches Chrome (unless a driver was injected) and the persisted
// store watcher. Blocks only for the browser launch.
func (k *Keeper) Start(ctx context.Context) error {
	if k.drv == nil {
		k.mgr = browser.NewManager(browser.Config{
			RemoteURL:       k.config.Browser.RemoteURL,
			MemoryLimit:     k.config.Browser.MemoryLimitMB << 20,
			RecycleInterval: k.config.Browser.RecycleInterval,
			Stealth:         k.config.Browser.Stealth,
			Logger:          k.logger,
		})
		if _, err := k.mgr.Start(ctx); err != nil {
			return err
		}
		d, err := browser.NewDriver(k.mgr, k.logger)
		if err != nil {
			k.mgr.Close()
			return err
		}
		k.drv = d
	}

	if k.watcher != nil {
		// Watch under a keeper-owned context so Close stops the poll loop
		// even when the caller started with context.Background().
		wctx, cancel := context.WithCancel(ctx)
		k.stopWatch = cancel
		go k.watcher.OnChange(wctx, func() error {
			return k.SyncWithStore(context.Background())
		})
	}

	k.logger.Info("seskeep: started", "persist", k.config.Persist, "db", k.config.DBPath)
	return nil
}

// Close stops the watcher and shuts down the driver, the browser, and the
// registry database.
func (k *Keeper) Close() error {
	if k.stopWatch != nil {
		k.stopWatch()
	}
	if c, ok := k.drv.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			k.logger.Warn("seskeep: driver close", "error", err)
		}
	}
	if k.mgr != nil {
		if err := k.mgr.Close(); err != nil {
			k.logger.Warn("seskeep: browser close", "error", err)
		}
	}
	if k.store != nil {
		return k.store.Close()
	}
	return nil
}

// Store returns the underlying persisted store (testing, admin). Nil when
// persistence is off.
func (k *Keeper) Store() *store.Store {
	return k.store
}

// SyncWithStore drops in-memory entries whose persisted row disappeared,
// e.g. because another process cleared the registry database. Entries that
// were never persisted (no setup tag) are kept.
func (k *Keeper) SyncWithStore(ctx context.Context) error {
	if k.store == nil {
		return nil
	}
	keys, err := k.store.ListKeys(ctx)
	if err != nil {
		return err
	}
	onDisk := map[string]bool{}
	for _, key := range keys {
		onDisk[key] = true
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for key, e := range k.mem {
		if e.SetupTag != "" && !onDisk[key] {
			delete(k.mem, key)
			k.logger.Info("seskeep: entry dropped, persisted copy gone", "key", key)
		}
	}
	return nil
}

// Stats holds keeper counters.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Setups        int64 `json:"setups"`
	Invalidations int64 `json:"invalidations"`
	Failures      int64 `json:"failures"`
	Clears        int64 `json:"clears"`
	MemEntries    int   `json:"mem_entries"`
	DiskEntries   int   `json:"disk_entries"`
}

// Stats returns current counters and registry sizes.
func (k *Keeper) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{
		Hits:          k.hits.Load(),
		Misses:        k.misses.Load(),
		Setups:        k.setups.Load(),
		Invalidations: k.invalidations.Load(),
		Failures:      k.failures.Load(),
		Clears:        k.clears.Load(),
	}

	k.mu.Lock()
	s.MemEntries = len(k.mem)
	k.mu.Unlock()

	if k.store != nil {
		n, err := k.store.CountEntries(ctx)
		if err != nil {
			return nil, err
		}
		s.DiskEntries = n
	}
	return s, nil
}
