package store

const schema = `
CREATE TABLE IF NOT EXISTS sweeps (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    dry_run BOOLEAN NOT NULL,
    success BOOLEAN NOT NULL,
    message TEXT NOT NULL,
    recovery_suggestion TEXT,
    selected INTEGER NOT NULL,
    removed INTEGER NOT NULL,
    skipped INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    escalated INTEGER NOT NULL,
    bytes_selected INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sweep_paths (
    sweep_id TEXT NOT NULL,
    path TEXT NOT NULL,
    PRIMARY KEY (sweep_id, path),
    FOREIGN KEY (sweep_id) REFERENCES sweeps(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS sweep_failures (
    sweep_id TEXT NOT NULL,
    path TEXT NOT NULL,
    reason TEXT NOT NULL,
    detail TEXT,
    FOREIGN KEY (sweep_id) REFERENCES sweeps(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sweeps_started ON sweeps(started_at);
CREATE INDEX IF NOT EXISTS idx_sweep_failures ON sweep_failures(sweep_id);
`
