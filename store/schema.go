// store/schema.go
package store

const Schema = `
CREATE TABLE IF NOT EXISTS treasuries (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	vault_principal TEXT NOT NULL,
	test_mode INTEGER NOT NULL DEFAULT 0,
	admins TEXT NOT NULL DEFAULT '[]',
	balance INTEGER NOT NULL DEFAULT 0,
	sync_cursor INTEGER NOT NULL DEFAULT 0,
	stale INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	treasury_id TEXT NOT NULL,
	tx_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	from_p TEXT NOT NULL DEFAULT '',
	to_p TEXT NOT NULL DEFAULT '',
	amount INTEGER NOT NULL,
	fee INTEGER NOT NULL DEFAULT 0,
	memo TEXT NOT NULL DEFAULT '',
	ts DATETIME NOT NULL,
	status TEXT NOT NULL,
	recorded_at DATETIME NOT NULL,
	PRIMARY KEY (treasury_id, tx_id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(treasury_id, status);

CREATE TABLE IF NOT EXISTS claims (
	treasury_id TEXT NOT NULL,
	principal TEXT NOT NULL,
	amount INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (treasury_id, principal)
);
`
