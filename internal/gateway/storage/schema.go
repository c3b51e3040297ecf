package storage

// schema is applied on every open; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS pump_commands (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    pump_id   INTEGER NOT NULL,
    command   INTEGER NOT NULL,
    timestamp INTEGER NOT NULL,
    source    TEXT NOT NULL DEFAULT 'unknown'
);
CREATE INDEX IF NOT EXISTS idx_commands_timestamp ON pump_commands(timestamp);

CREATE TABLE IF NOT EXISTS pump_feedback (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    pump_id   INTEGER NOT NULL,
    status    INTEGER NOT NULL,
    timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_timestamp ON pump_feedback(timestamp);

CREATE TABLE IF NOT EXISTS pump_snapshots (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    pump1_cmd    INTEGER NOT NULL,
    pump1_status INTEGER NOT NULL,
    pump2_cmd    INTEGER NOT NULL,
    pump2_status INTEGER NOT NULL,
    busy         INTEGER NOT NULL,
    alarm        INTEGER NOT NULL,
    timestamp    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON pump_snapshots(timestamp);

CREATE TABLE IF NOT EXISTS gateway_heartbeats (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id TEXT NOT NULL,
    firmware  TEXT NOT NULL,
    status    INTEGER NOT NULL,
    timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_timestamp ON gateway_heartbeats(timestamp);
`
