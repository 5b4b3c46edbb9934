package seskeep

import (
	"github.com/hazyhaar/seskeep/seskeep/internal/key"
	"github.com/hazyhaar/seskeep/seskeep/internal/lifecycle"
	"github.com/hazyhaar/seskeep/seskeep/internal/snapshot"
	"github.com/hazyhaar/seskeep/seskeep/internal/store"
)

// Re-exported types from internal packages for use by cmd/ and external
// callers.
type (
	Entry        = store.Entry
	Snapshot     = snapshot.Snapshot
	SetupProc    = lifecycle.SetupProc
	ValidateProc = lifecycle.ValidateProc
)

// Entry statuses.
const (
	StatusValid   = store.StatusValid
	StatusInvalid = store.StatusInvalid
)

// Failure classes, re-exported so callers can errors.Is against them.
var (
	ErrSetupFailed        = lifecycle.ErrSetupFailed
	ErrValidateAfterSetup = lifecycle.ErrValidateAfterSetup
	ErrValidateAfterRetry = lifecycle.ErrValidateAfterRetry
	ErrCyclicID           = key.ErrCyclicID
	ErrOversizeID         = key.ErrOversizeID
	ErrUnsupportedID      = key.ErrUnsupportedID
)

// SessionInfo is the metadata surfaced by the list operations.
type SessionInfo struct {
	Key        string `json:"key"`
	SetupTag   string `json:"setup_tag,omitempty"`
	Status     string `json:"status"`
	Origins    int    `json:"origins"`
	CreatedAt  int64  `json:"created_at"`
	LastUsedAt int64  `json:"last_used_at"`
	UseCount   int    `json:"use_count"`
	Source     string `json:"source"` // "memory" or "disk"
}
