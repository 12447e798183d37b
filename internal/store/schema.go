package store

import "strings"

// systemSchema is shared by both backends; the $-placeholders are filled
// per dialect by columnTypes.render. Ids are always generated by the caller.
const systemSchema = `
CREATE TABLE IF NOT EXISTS _forms (
    key         TEXT PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    revision    $uuid NOT NULL,
    definition  $json NOT NULL,
    created_at  $ts DEFAULT $now,
    updated_at  $ts DEFAULT $now
);

CREATE TABLE IF NOT EXISTS _form_revisions (
    revision    $uuid PRIMARY KEY,
    form_key    TEXT NOT NULL REFERENCES _forms(key) ON DELETE CASCADE,
    definition  $json NOT NULL,
    created_by  TEXT,
    created_at  $ts DEFAULT $now
);
CREATE INDEX IF NOT EXISTS idx_form_revisions_key ON _form_revisions (form_key, created_at DESC);

CREATE TABLE IF NOT EXISTS _users (
    id            $uuid PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    roles         $roles,
    active        $bool DEFAULT $true,
    created_at    $ts DEFAULT $now
);

CREATE TABLE IF NOT EXISTS _refresh_tokens (
    id          $uuid PRIMARY KEY,
    user_id     $uuid NOT NULL REFERENCES _users(id) ON DELETE CASCADE,
    token       TEXT NOT NULL UNIQUE,
    expires_at  $ts NOT NULL,
    created_at  $ts DEFAULT $now
);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expiry ON _refresh_tokens (expires_at);

CREATE TABLE IF NOT EXISTS _events (
    id              $uuid PRIMARY KEY,
    trace_id        $uuid NOT NULL,
    span_id         $uuid NOT NULL,
    parent_span_id  $uuid,
    kind            TEXT NOT NULL,
    form_key        TEXT,
    node_key        TEXT,
    rule_key        TEXT,
    event_name      TEXT,
    action_name     TEXT,
    user_id         TEXT,
    duration_ms     $float,
    status          TEXT NOT NULL,
    detail          $json,
    created_at      $ts NOT NULL DEFAULT $now
);
CREATE INDEX IF NOT EXISTS idx_events_trace ON _events (trace_id);
CREATE INDEX IF NOT EXISTS idx_events_form ON _events (form_key, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_created ON _events (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_rule ON _events (rule_key, status);
`

type columnTypes struct {
	uuid, json, ts, now, boolean, yes, roles, float string
}

func (c columnTypes) render() string {
	return strings.NewReplacer(
		"$uuid", c.uuid,
		"$json", c.json,
		"$ts", c.ts,
		"$now", c.now,
		"$bool", c.boolean,
		"$true", c.yes,
		"$roles", c.roles,
		"$float", c.float,
	).Replace(systemSchema)
}

var (
	postgresSchema = columnTypes{
		uuid: "UUID", json: "JSONB", ts: "TIMESTAMPTZ", now: "NOW()",
		boolean: "BOOLEAN", yes: "true", roles: "TEXT[] DEFAULT '{}'", float: "DOUBLE PRECISION",
	}.render()
	sqliteSchema = columnTypes{
		uuid: "TEXT", json: "TEXT", ts: "TEXT", now: "(datetime('now'))",
		boolean: "INTEGER", yes: "1", roles: "TEXT DEFAULT '[]'", float: "REAL",
	}.render()
)
