package store

// Schema contains the DDL for the persisted session registry.
const Schema = `
-- Cached sessions: one row per (session key). The setup_tag fingerprints the
-- setup procedure; a row whose tag no longer matches the caller's is stale
-- and gets dropped on lookup.
CREATE TABLE IF NOT EXISTS sessions (
    id           TEXT PRIMARY KEY,
    session_key  TEXT NOT NULL UNIQUE,
    setup_tag    TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'valid',
    snapshot     BLOB NOT NULL,
    origin_count INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL,
    last_used_at INTEGER NOT NULL,
    use_count    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_key ON sessions(session_key);
CREATE INDEX IF NOT EXISTS idx_sessions_used ON sessions(last_used_at);
`
