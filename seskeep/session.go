package seskeep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/seskeep/seskeep/internal/key"
	"github.com/hazyhaar/seskeep/seskeep/internal/lifecycle"
	"github.com/hazyhaar/seskeep/seskeep/internal/store"
)

type sessionOptions struct {
	validate lifecycle.ValidateProc
	setupTag string
	log      bool
}

// SessionOption configures a single Session call.
type SessionOption func(*sessionOptions)

// WithValidate supplies a validation procedure. It runs against a blank
// page (storage intact) after every setup or restore; returning false or an
// error fails validation.
func WithValidate(v ValidateProc) SessionOption {
	return func(o *sessionOptions) { o.validate = v }
}

// WithSetupTag fingerprints the setup procedure for cross-run persistence.
// Bump the tag whenever the setup logic changes; a persisted entry with a
// different tag is treated as stale. Sessions without a tag are never
// persisted and live only for the current run.
func WithSetupTag(tag string) SessionOption {
	return func(o *sessionOptions) { o.setupTag = tag }
}

// WithoutLog suppresses per-call logging for this session.
func WithoutLog() SessionOption {
	return func(o *sessionOptions) { o.log = false }
}

// Session establishes the session identified by id, restoring it from cache
// when possible and running setup otherwise. id may be a string, a list, or
// a record; deep-equal identifiers name the same session.
//
// On return the page is blank regardless of hit or miss; navigate explicitly
// before interacting with the site. The call yields no session value.
func (k *Keeper) Session(ctx context.Context, id any, setup SetupProc, opts ...SessionOption) error {
	o := sessionOptions{log: true}
	for _, opt := range opts {
		opt(&o)
	}
	if k.drv == nil {
		return fmt.Errorf("seskeep: keeper not started")
	}

	sessionKey, err := key.Derive(id)
	if err != nil {
		return fmt.Errorf("seskeep: derive session key: %w", err)
	}

	log := k.logger
	if !o.log {
		log = slog.New(slog.DiscardHandler)
	}

	entry := k.lookup(ctx, sessionKey, o.setupTag)
	cached := entry != nil && entry.Status == store.StatusValid
	if cached {
		k.hits.Add(1)
	} else {
		k.misses.Add(1)
	}

	req := lifecycle.Request{
		Key:      sessionKey,
		Setup:    setup,
		Validate: o.validate,
		Logger:   log,
	}
	if cached {
		req.Cached = entry.Snapshot
	}

	start := time.Now()
	res, err := lifecycle.Run(ctx, k.drv, req)
	if err != nil {
		k.failures.Add(1)
		// A fatal run leaves no usable entry behind.
		k.forget(ctx, sessionKey)
		return err
	}

	switch res.Source {
	case lifecycle.SourceRestore:
		k.touch(ctx, sessionKey)
		log.Info("seskeep: session restored", "key", sessionKey, "duration", time.Since(start))

	default: // setup ran, fresh or retry
		k.setups.Add(1)
		if res.Invalidated {
			k.invalidations.Add(1)
		}
		e := &store.Entry{
			ID:       k.newID(),
			Key:      sessionKey,
			SetupTag: o.setupTag,
			Status:   store.StatusValid,
			Snapshot: res.Snapshot,
		}
		k.remember(ctx, e)
		log.Info("seskeep: session created", "key", sessionKey,
			"origins", e.OriginCount(), "recreated", res.Invalidated,
			"duration", time.Since(start))
	}

	return nil
}

// ClearAllSavedSessions empties the registry: all in-memory entries and, in
// persistent mode, every entry in the registry database. It returns how
// many entries were removed. Callable programmatically, via MCP, or via the
// HTTP control surface.
func (k *Keeper) ClearAllSavedSessions(ctx context.Context) (int64, error) {
	k.mu.Lock()
	n := int64(len(k.mem))
	k.mem = map[string]*store.Entry{}
	k.mu.Unlock()

	if k.store != nil {
		disk, err := k.store.DeleteAll(ctx)
		if err != nil {
			return n, fmt.Errorf("seskeep: clear persisted registry: %w", err)
		}
		// Entries both in memory and on disk count once.
		if disk > n {
			n = disk
		}
	}

	k.clears.Add(1)
	k.logger.Info("seskeep: all saved sessions cleared", "removed", n)
	return n, nil
}

// InvalidateSession marks the cached entry for an identifier invalid,
// forcing the next Session call with that id to run setup again. The entry
// stays listed (status "invalid") until that re-run replaces it wholesale.
func (k *Keeper) InvalidateSession(ctx context.Context, id any) error {
	sessionKey, err := key.Derive(id)
	if err != nil {
		return fmt.Errorf("seskeep: derive session key: %w", err)
	}

	k.mu.Lock()
	if e, ok := k.mem[sessionKey]; ok {
		e.Status = store.StatusInvalid
	}
	k.mu.Unlock()

	if k.store != nil {
		if err := k.store.MarkInvalid(ctx, sessionKey); err != nil {
			k.logger.Warn("seskeep: mark entry invalid failed", "key", sessionKey, "error", err)
		}
	}

	k.invalidations.Add(1)
	return nil
}

// ListSessions enumerates cached entries across both registries.
func (k *Keeper) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	var out []SessionInfo
	seen := map[string]bool{}

	k.mu.Lock()
	for _, e := range k.mem {
		out = append(out, SessionInfo{
			Key:        e.Key,
			SetupTag:   e.SetupTag,
			Status:     e.Status,
			Origins:    e.OriginCount(),
			CreatedAt:  e.CreatedAt,
			LastUsedAt: e.LastUsedAt,
			UseCount:   e.UseCount,
			Source:     "memory",
		})
		seen[e.Key] = true
	}
	k.mu.Unlock()

	if k.store != nil {
		entries, err := k.store.ListEntries(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if seen[e.Key] {
				continue
			}
			out = append(out, SessionInfo{
				Key:        e.Key,
				SetupTag:   e.SetupTag,
				Status:     e.Status,
				Origins:    e.OriginCount(),
				CreatedAt:  e.CreatedAt,
				LastUsedAt: e.LastUsedAt,
				UseCount:   e.UseCount,
				Source:     "disk",
			})
		}
	}

	return out, nil
}

// lookup finds a cached entry: in-memory first, then the persisted store.
// A memory entry whose setup tag no longer matches is stale and dropped.
// The returned entry is a copy; shared entries are only touched under k.mu.
func (k *Keeper) lookup(ctx context.Context, sessionKey, setupTag string) *store.Entry {
	k.mu.Lock()
	e, ok := k.mem[sessionKey]
	if ok && e.SetupTag != setupTag {
		delete(k.mem, sessionKey)
		ok = false
	}
	if ok {
		c := *e
		k.mu.Unlock()
		return &c
	}
	k.mu.Unlock()

	if k.store == nil || setupTag == "" {
		return nil
	}
	e, err := k.store.GetEntry(ctx, sessionKey, setupTag)
	if err != nil {
		k.logger.Warn("seskeep: registry lookup failed", "key", sessionKey, "error", err)
		return nil
	}
	if e == nil {
		return nil
	}

	k.mu.Lock()
	k.mem[sessionKey] = e
	c := *e
	k.mu.Unlock()
	return &c
}

func (k *Keeper) remember(ctx context.Context, e *store.Entry) {
	now := time.Now().UnixMilli()
	e.CreatedAt = now
	e.LastUsedAt = now

	k.mu.Lock()
	k.mem[e.Key] = e
	c := *e
	k.mu.Unlock()

	// Persist a copy: once in the map the entry belongs to the lock.
	if k.store != nil && c.SetupTag != "" {
		if err := k.store.PutEntry(ctx, &c); err != nil {
			k.logger.Warn("seskeep: persist entry failed", "key", c.Key, "error", err)
		}
	}
}

func (k *Keeper) touch(ctx context.Context, sessionKey string) {
	k.mu.Lock()
	e, ok := k.mem[sessionKey]
	if !ok {
		k.mu.Unlock()
		return
	}
	e.LastUsedAt = time.Now().UnixMilli()
	e.UseCount++
	persist := e.SetupTag != ""
	k.mu.Unlock()

	if k.store != nil && persist {
		if err := k.store.TouchEntry(ctx, sessionKey); err != nil {
			k.logger.Warn("seskeep: touch entry failed", "key", sessionKey, "error", err)
		}
	}
}

func (k *Keeper) forget(ctx context.Context, sessionKey string) {
	k.mu.Lock()
	delete(k.mem, sessionKey)
	k.mu.Unlock()

	if k.store != nil {
		if err := k.store.DeleteEntry(ctx, sessionKey); err != nil {
			k.logger.Warn("seskeep: delete entry failed", "key", sessionKey, "error", err)
		}
	}
}
