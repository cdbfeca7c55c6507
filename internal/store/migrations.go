package store

const schema = `
CREATE TABLE IF NOT EXISTS results (
    pitcher     TEXT NOT NULL,
    team        TEXT NOT NULL,
    pitch_type  TEXT NOT NULL,
    category    TEXT NOT NULL,
    pitches     INTEGER NOT NULL DEFAULT 0,
    velocity    REAL NOT NULL DEFAULT 0,
    rel_height  REAL NOT NULL DEFAULT 0,
    rel_side    REAL NOT NULL DEFAULT 0,
    extension   REAL NOT NULL DEFAULT 0,
    ivb         REAL NOT NULL DEFAULT 0,
    hb          REAL NOT NULL DEFAULT 0,
    vaa         REAL NOT NULL DEFAULT 0,
    haa         REAL NOT NULL DEFAULT 0,
    adj_vaa     REAL NOT NULL DEFAULT 0,
    adj_haa     REAL NOT NULL DEFAULT 0,
    whiff_rate  REAL NOT NULL DEFAULT 0,
    stuff_plus  INTEGER NOT NULL,
    origin      TEXT NOT NULL DEFAULT 'reference',
    updated_at  DATETIME NOT NULL,
    PRIMARY KEY (pitcher, team, pitch_type)
);

CREATE INDEX IF NOT EXISTS idx_results_team ON results(team);
CREATE INDEX IF NOT EXISTS idx_results_stuff_plus ON results(stuff_plus);

CREATE TABLE IF NOT EXISTS runs (
    id           TEXT PRIMARY KEY,
    source       TEXT NOT NULL,
    fingerprint  TEXT NOT NULL DEFAULT '',
    total        INTEGER NOT NULL DEFAULT 0,
    qualified    INTEGER NOT NULL DEFAULT 0,
    incomplete   INTEGER NOT NULL DEFAULT 0,
    failed       INTEGER NOT NULL DEFAULT 0,
    scored       INTEGER NOT NULL DEFAULT 0,
    groups_count INTEGER NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`
