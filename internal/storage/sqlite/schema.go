package sqlite

var schema = []string{
	`CREATE TABLE IF NOT EXISTS locations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL DEFAULT '',
	website_uri TEXT UNIQUE,
	is_scraped  INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS locations_is_scraped_idx ON locations (is_scraped)`,
	`CREATE TABLE IF NOT EXISTS artists (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id      INTEGER NOT NULL REFERENCES locations (id),
	name             TEXT NOT NULL,
	email            TEXT,
	phone            TEXT,
	social_links     TEXT,
	years_experience INTEGER,
	styles_extracted INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS artists_location_id_idx ON artists (location_id)`,
	`CREATE TABLE IF NOT EXISTS styles (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS styles_lower_name_idx ON styles (lower(name))`,
	`CREATE TABLE IF NOT EXISTS artists_styles (
	artist_id INTEGER NOT NULL REFERENCES artists (id),
	style_id  INTEGER NOT NULL REFERENCES styles (id),
	PRIMARY KEY (artist_id, style_id)
)`,
	`CREATE TABLE IF NOT EXISTS scrape_actions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id INTEGER NOT NULL,
	action      TEXT NOT NULL,
	created_at  DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS scrape_actions_location_id_idx ON scrape_actions (location_id)`,
	`CREATE TABLE IF NOT EXISTS oracle_usage (
	kind          TEXT NOT NULL,
	model         TEXT NOT NULL,
	calls         INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	updated_at    DATETIME NOT NULL,
	PRIMARY KEY (kind, model)
)`,
}
