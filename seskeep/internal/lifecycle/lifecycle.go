// Package lifecycle sequences a single session operation: clear the
// environment, set up or restore, validate, and re-run setup once when a
// restored session fails validation.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/seskeep/seskeep/internal/snapshot"
)

// SetupProc establishes a session from scratch (typically a login flow).
// It runs against the work page; everything it writes to cookies and web
// storage is captured when it returns.
type SetupProc func(ctx context.Context, page *rod.Page) error

// ValidateProc confirms a restored or freshly created session is usable.
// Returning false or an error both count as failure.
type ValidateProc func(ctx context.Context, page *rod.Page) (bool, error)

// Driver abstracts the browser operations the orchestrator needs. The real
// implementation drives Chrome over CDP; tests substitute a fake.
type Driver interface {
	// ClearEnvironment navigates the work page to a blank page and wipes
	// cookies plus web storage for every known origin.
	ClearEnvironment(ctx context.Context) error
	// BlankPage navigates the work page to a blank page without touching
	// storage.
	BlankPage(ctx context.Context) error
	// Capture snapshots cookies and per-origin storage for the origins
	// visited since the environment was last cleared.
	Capture(ctx context.Context) (*snapshot.Snapshot, error)
	// Restore reapplies a snapshot. A partial failure (one origin's
	// storage not writable) returns an error; the orchestrator treats it
	// like a failed validation and falls back to setup.
	Restore(ctx context.Context, snap *snapshot.Snapshot) error
	// Page returns the work page handed to setup and validate procedures.
	Page() *rod.Page
}

// Fatal failure classes. Distinct values so callers (and their failure
// messages) can tell the three apart.
var (
	// ErrSetupFailed: the setup procedure itself returned an error.
	ErrSetupFailed = errors.New("session setup failed")
	// ErrValidateAfterSetup: validation failed immediately after a fresh
	// setup, so setup produced an unusable session. No retry.
	ErrValidateAfterSetup = errors.New("session validation failed after setup")
	// ErrValidateAfterRetry: a restored session failed validation, setup
	// was re-run once, and validation failed again.
	ErrValidateAfterRetry = errors.New("session validation failed after restore, retried setup, and still failed")
)

// Source says how the session was produced.
type Source string

const (
	SourceSetup   Source = "setup"   // cache miss, setup ran
	SourceRestore Source = "restore" // cache hit, snapshot reapplied
	SourceRetry   Source = "retry"   // restored entry invalidated, setup re-ran
)

// Request is one invocation of the session operation.
type Request struct {
	Key      string
	Cached   *snapshot.Snapshot // nil on cache miss
	Setup    SetupProc
	Validate ValidateProc // optional
	Logger   *slog.Logger
}

// Result of a successful run. Snapshot is the state to cache: the freshly
// captured one when setup ran, or the cached one on a plain restore.
type Result struct {
	Source      Source
	Snapshot    *snapshot.Snapshot
	Invalidated bool // the cached entry was replaced
}

// Run executes the state machine. On success the work page is left blank;
// the caller navigates explicitly afterwards.
func Run(ctx context.Context, d Driver, req Request) (*Result, error) {
	if req.Logger == nil {
		req.Logger = slog.Default()
	}

	res, err := run(ctx, d, req)
	if err != nil {
		return nil, err
	}
	if err := d.BlankPage(ctx); err != nil {
		return nil, fmt.Errorf("lifecycle: blank page: %w", err)
	}
	return res, nil
}

func run(ctx context.Context, d Driver, req Request) (*Result, error) {
	log := req.Logger

	// Always performed, hit or miss.
	if err := d.ClearEnvironment(ctx); err != nil {
		return nil, fmt.Errorf("lifecycle: clear environment: %w", err)
	}

	if req.Cached == nil {
		snap, err := runSetup(ctx, d, req.Setup)
		if err != nil {
			return nil, err
		}
		if req.Validate != nil {
			if out := validate(ctx, d, req.Validate); !out.ok {
				return nil, fmt.Errorf("%w: %v", ErrValidateAfterSetup, out.reason)
			}
		}
		log.Debug("lifecycle: session created", "key", req.Key)
		return &Result{Source: SourceSetup, Snapshot: snap}, nil
	}

	restored := true
	if err := d.Restore(ctx, req.Cached); err != nil {
		log.Warn("lifecycle: restore failed, invalidating entry", "key", req.Key, "error", err)
		restored = false
	}

	if restored {
		if req.Validate == nil {
			return &Result{Source: SourceRestore, Snapshot: req.Cached}, nil
		}
		if out := validate(ctx, d, req.Validate); out.ok {
			return &Result{Source: SourceRestore, Snapshot: req.Cached}, nil
		} else {
			log.Info("lifecycle: validation failed after restore, re-running setup",
				"key", req.Key, "reason", out.reason)
		}
	}

	// Invalidate path: one re-run of setup, never more.
	if err := d.ClearEnvironment(ctx); err != nil {
		return nil, fmt.Errorf("lifecycle: clear environment before retry: %w", err)
	}
	snap, err := runSetup(ctx, d, req.Setup)
	if err != nil {
		return nil, err
	}
	if req.Validate != nil {
		if out := validate(ctx, d, req.Validate); !out.ok {
			return nil, fmt.Errorf("%w: %v", ErrValidateAfterRetry, out.reason)
		}
	}
	log.Debug("lifecycle: session recreated", "key", req.Key)
	return &Result{Source: SourceRetry, Snapshot: snap, Invalidated: true}, nil
}

func runSetup(ctx context.Context, d Driver, setup SetupProc) (*snapshot.Snapshot, error) {
	if err := setup(ctx, d.Page()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}
	snap, err := d.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: capture: %w", err)
	}
	return snap, nil
}

// validateOutcome normalizes the documented validate failure modes (false
// return, error return) into a single tagged result.
type validateOutcome struct {
	ok     bool
	reason error
}

func validate(ctx context.Context, d Driver, v ValidateProc) validateOutcome {
	// The page is cleared before validation, but storage is kept.
	if err := d.BlankPage(ctx); err != nil {
		return validateOutcome{reason: fmt.Errorf("blank page: %w", err)}
	}
	ok, err := v(ctx, d.Page())
	if err != nil {
		return validateOutcome{reason: err}
	}
	if !ok {
		return validateOutcome{reason: errors.New("validate returned false")}
	}
	return validateOutcome{ok: true}
}
