package journal

// Schema is the DDL of the locguard journal.
const Schema = `
-- One row per persisted locator change.
CREATE TABLE IF NOT EXISTS locator_changes (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    pass_id     TEXT NOT NULL DEFAULT '',
    field       TEXT NOT NULL,
    section     TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL,
    changed_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_changes_field ON locator_changes(field);
CREATE INDEX IF NOT EXISTS idx_changes_pass ON locator_changes(pass_id);

-- Health reports: summary columns for listing, full report as JSON.
CREATE TABLE IF NOT EXISTS health_reports (
    id                TEXT PRIMARY KEY,
    created_at        INTEGER NOT NULL,
    passed            INTEGER NOT NULL,
    failed            INTEGER NOT NULL,
    warnings          INTEGER NOT NULL,
    success_rate      REAL NOT NULL,
    mining_suggested  INTEGER NOT NULL DEFAULT 0,
    fatal             TEXT NOT NULL DEFAULT '',
    body              TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_created ON health_reports(created_at DESC);

-- Mining passes and their outcome.
CREATE TABLE IF NOT EXISTS mining_passes (
    id            TEXT PRIMARY KEY,
    triggered_by  TEXT NOT NULL DEFAULT 'manual',
    status        TEXT NOT NULL,
    row_selector  TEXT NOT NULL DEFAULT '',
    mined         INTEGER NOT NULL DEFAULT 0,
    valid         INTEGER NOT NULL DEFAULT 0,
    attempted     INTEGER NOT NULL DEFAULT 0,
    changes       INTEGER NOT NULL DEFAULT 0,
    revision      INTEGER NOT NULL DEFAULT 0,
    error         TEXT NOT NULL DEFAULT '',
    started_at    INTEGER NOT NULL,
    finished_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_passes_started ON mining_passes(started_at DESC);
`
