package postgres

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS locations (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	website_uri TEXT,
	is_scraped  SMALLINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS locations_website_uri_idx ON locations (website_uri)`,
	`CREATE INDEX IF NOT EXISTS locations_is_scraped_idx ON locations (is_scraped)`,
	`CREATE TABLE IF NOT EXISTS artists (
	id               BIGSERIAL PRIMARY KEY,
	location_id      BIGINT NOT NULL REFERENCES locations (id),
	name             TEXT NOT NULL,
	email            TEXT,
	phone            TEXT,
	social_links     TEXT,
	years_experience INTEGER,
	styles_extracted BOOLEAN NOT NULL DEFAULT false,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS artists_location_id_idx ON artists (location_id)`,
	`CREATE TABLE IF NOT EXISTS styles (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS styles_lower_name_idx ON styles (lower(name))`,
	`CREATE TABLE IF NOT EXISTS artists_styles (
	artist_id BIGINT NOT NULL REFERENCES artists (id),
	style_id  BIGINT NOT NULL REFERENCES styles (id),
	PRIMARY KEY (artist_id, style_id)
)`,
	`CREATE TABLE IF NOT EXISTS scrape_actions (
	id          BIGSERIAL PRIMARY KEY,
	location_id BIGINT NOT NULL,
	action      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS scrape_actions_location_id_idx ON scrape_actions (location_id)`,
	`CREATE TABLE IF NOT EXISTS oracle_usage (
	kind          TEXT NOT NULL,
	model         TEXT NOT NULL,
	calls         BIGINT NOT NULL DEFAULT 0,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, model)
)`,
}
