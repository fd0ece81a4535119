package storage

// migration is one schema step; versions are sequential from 1.
type migration struct {
	version int
	sql     string
}

// Timestamps are unix milliseconds; days are YYYY-MM-DD in the tenant's
// reporting zone.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_settings (
	tenant_id              INTEGER PRIMARY KEY,
	is_active              INTEGER NOT NULL DEFAULT 0,
	notify_post_published  INTEGER,
	notify_post_failed     INTEGER,
	notify_approval_needed INTEGER,
	notify_new_comment     INTEGER,
	phone_number_id        TEXT,
	access_token           TEXT,
	business_account_id    TEXT,
	webhook_verify_token   TEXT,
	created_at             INTEGER NOT NULL,
	updated_at             INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id       INTEGER NOT NULL,
	phone_number    TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	is_active       INTEGER NOT NULL DEFAULT 1,
	last_message_at INTEGER,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contacts_tenant_phone ON contacts(tenant_id, phone_number);

CREATE TABLE IF NOT EXISTS conversations (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id       INTEGER NOT NULL,
	contact_id      INTEGER NOT NULL,
	status          TEXT NOT NULL DEFAULT 'active',
	last_message_id INTEGER,
	last_message_at INTEGER,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL,
	UNIQUE(tenant_id, contact_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL,
	wa_message_id   TEXT,
	direction       TEXT NOT NULL,
	type            TEXT NOT NULL DEFAULT 'text',
	content         TEXT,
	status          TEXT NOT NULL DEFAULT 'pending',
	sent_at         INTEGER,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_wa_id ON messages(wa_message_id);

CREATE TABLE IF NOT EXISTS approval_requests (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id        INTEGER NOT NULL,
	post_id          INTEGER NOT NULL,
	contact_id       INTEGER NOT NULL,
	conversation_id  INTEGER NOT NULL,
	status           TEXT NOT NULL DEFAULT 'pending',
	response_message TEXT,
	responded_at     INTEGER,
	expires_at       INTEGER NOT NULL,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_approvals_tenant_status ON approval_requests(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_approvals_post ON approval_requests(post_id);

CREATE TABLE IF NOT EXISTS daily_stats (
	tenant_id        INTEGER NOT NULL,
	day              TEXT NOT NULL,
	posts_published  INTEGER NOT NULL DEFAULT 0,
	total_reach      INTEGER NOT NULL DEFAULT 0,
	total_engagement INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (tenant_id, day)
);

CREATE TABLE IF NOT EXISTS audit (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	at           INTEGER NOT NULL,
	dispatch_id  TEXT NOT NULL,
	tenant_id    INTEGER NOT NULL,
	type         TEXT NOT NULL,
	post_id      INTEGER,
	recipient_id INTEGER,
	channel      TEXT NOT NULL,
	success      INTEGER NOT NULL,
	message_id   TEXT,
	err          TEXT,
	reason       TEXT,
	took_ms      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_tenant_at ON audit(tenant_id, at);

INSERT INTO schema_version(version) VALUES (1);
`,
	},
}
