package store

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
  round INTEGER NOT NULL PRIMARY KEY,
  time_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS round_groups (
  round INTEGER NOT NULL,
  seq INTEGER NOT NULL,
  bits BLOB NOT NULL,
  PRIMARY KEY (round, seq)
);

CREATE TABLE IF NOT EXISTS apps (
  app_id INTEGER NOT NULL PRIMARY KEY,
  deployer BLOB NOT NULL,
  created_round INTEGER NOT NULL,
  deleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS globals (
  app_id INTEGER NOT NULL,
  key TEXT NOT NULL,
  kind INTEGER NOT NULL,
  bits BLOB NOT NULL,
  PRIMARY KEY (app_id, key)
);

CREATE TABLE IF NOT EXISTS accounts (
  address BLOB NOT NULL PRIMARY KEY,
  balance BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS pins (
  name TEXT NOT NULL PRIMARY KEY,
  round INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS listings (
  app_id INTEGER NOT NULL PRIMARY KEY,
  round INTEGER NOT NULL
);
`
