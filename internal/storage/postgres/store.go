// Package postgres implements crawler.Store on Postgres using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/artist-crawler/internal/crawler"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store implements crawler.Store.
type Store struct {
	pool pool
	now  func() time.Time
}

var _ crawler.Store = (*Store)(nil)

// New connects a pgx pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p, now: time.Now}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p, now: time.Now}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

const claimSQL = `
UPDATE locations SET is_scraped = $1
WHERE id IN (
	SELECT id FROM locations
	WHERE is_scraped = $2
	  AND website_uri IS NOT NULL
	  AND website_uri <> ''
	  AND NOT (website_uri ILIKE ANY ($3))
	ORDER BY id
	FOR UPDATE SKIP LOCKED
	LIMIT $4
)
RETURNING id, name, website_uri`

// ClaimLocations atomically moves up to limit unclaimed rows to claimed and
// returns them. Rows whose URI contains any of excludeHosts are skipped.
func (s *Store) ClaimLocations(ctx context.Context, limit int, excludeHosts []string) ([]crawler.Location, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, claimSQL,
		int(crawler.StatusClaimed), int(crawler.StatusUnclaimed), likePatterns(excludeHosts), limit)
	if err != nil {
		return nil, fmt.Errorf("claim locations: %w", err)
	}
	defer rows.Close()

	var out []crawler.Location
	for rows.Next() {
		loc := crawler.Location{Status: crawler.StatusClaimed}
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.SeedURL); err != nil {
			return nil, fmt.Errorf("scan claimed location: %w", err)
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim locations: %w", err)
	}
	return out, nil
}

func likePatterns(substrings []string) []string {
	out := make([]string, 0, len(substrings))
	for _, sub := range substrings {
		sub = strings.TrimSpace(sub)
		if sub == "" {
			continue
		}
		escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(sub)
		out = append(out, "%"+escaped+"%")
	}
	return out
}

// SetLocationStatus finalizes a claimed location. A row that is not claimed
// is left untouched and crawler.ErrStatusConflict is returned.
func (s *Store) SetLocationStatus(ctx context.Context, locationID int64, status crawler.LocationStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE locations SET is_scraped = $1 WHERE id = $2 AND is_scraped = $3`,
		int(status), locationID, int(crawler.StatusClaimed))
	if err != nil {
		return fmt.Errorf("set location %d status: %w", locationID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set location %d status %s: %w", locationID, status, crawler.ErrStatusConflict)
	}
	return nil
}

// ReleaseLocations returns claimed rows to unclaimed.
func (s *Store) ReleaseLocations(ctx context.Context, locationIDs []int64) (int, error) {
	if len(locationIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE locations SET is_scraped = $1 WHERE id = ANY($2) AND is_scraped = $3`,
		int(crawler.StatusUnclaimed), locationIDs, int(crawler.StatusClaimed))
	if err != nil {
		return 0, fmt.Errorf("release locations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// InsertLocation adds an unclaimed location. Re-inserting a known URI returns
// the existing id.
func (s *Store) InsertLocation(ctx context.Context, name, websiteURI string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO locations (name, website_uri, is_scraped) VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING RETURNING id`,
		name, websiteURI, int(crawler.StatusUnclaimed)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("insert location: %w", err)
	}
	if err := s.pool.QueryRow(ctx,
		`SELECT id FROM locations WHERE website_uri = $1`, websiteURI).Scan(&id); err != nil {
		return 0, fmt.Errorf("select existing location: %w", err)
	}
	return id, nil
}

// ArtistNames lists names already stored for a location.
func (s *Store) ArtistNames(ctx context.Context, locationID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name FROM artists WHERE location_id = $1 ORDER BY id`, locationID)
	if err != nil {
		return nil, fmt.Errorf("list artist names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan artist name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artist names: %w", err)
	}
	return names, nil
}

// SaveArtist inserts the artist and links its normalized styles in one
// transaction.
func (s *Store) SaveArtist(ctx context.Context, artist crawler.Artist) (int64, error) {
	if strings.TrimSpace(artist.Name) == "" {
		return 0, fmt.Errorf("artist name is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin save artist: %w", err)
	}

	id, err := saveArtistTx(ctx, tx, artist)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit save artist: %w", err)
	}
	return id, nil
}

func saveArtistTx(ctx context.Context, tx pgx.Tx, artist crawler.Artist) (int64, error) {
	var artistID int64
	err := tx.QueryRow(ctx,
		`INSERT INTO artists (location_id, name, email, phone, social_links, years_experience)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		artist.LocationID,
		artist.Name,
		nullString(artist.Email),
		nullString(artist.Phone),
		nullString(artist.SocialLinks),
		nullInt(artist.YearsExperience),
	).Scan(&artistID)
	if err != nil {
		return 0, fmt.Errorf("insert artist: %w", err)
	}

	for _, name := range crawler.NormalizeStyles(artist.Styles) {
		styleID, err := getOrCreateStyle(ctx, tx, name)
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO artists_styles (artist_id, style_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			artistID, styleID); err != nil {
			return 0, fmt.Errorf("link style %q: %w", name, err)
		}
	}
	return artistID, nil
}

// getOrCreateStyle returns the id of the style row for name, creating it if
// needed. The unique index on lower(name) makes the insert race-safe; losing
// the race falls through to the re-select.
func getOrCreateStyle(ctx context.Context, tx pgx.Tx, name string) (int64, error) {
	const selectSQL = `SELECT id FROM styles WHERE lower(name) = lower($1)`

	var id int64
	err := tx.QueryRow(ctx, selectSQL, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("select style %q: %w", name, err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO styles (name) VALUES ($1) ON CONFLICT DO NOTHING RETURNING id`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("insert style %q: %w", name, err)
	}

	if err := tx.QueryRow(ctx, selectSQL, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("reselect style %q: %w", name, err)
	}
	return id, nil
}

// LogAction appends an audit row.
func (s *Store) LogAction(ctx context.Context, entry crawler.AuditEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = s.now().UTC()
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_actions (location_id, action, created_at) VALUES ($1, $2, $3)`,
		entry.LocationID, entry.Action, ts); err != nil {
		return fmt.Errorf("insert scrape action: %w", err)
	}
	return nil
}

// RecordOracleUsage adds one call and its tokens to the (kind, model) row.
func (s *Store) RecordOracleUsage(ctx context.Context, usage crawler.OracleUsage) error {
	if _, err := s.pool.Exec(ctx, `
INSERT INTO oracle_usage (kind, model, calls, input_tokens, output_tokens, updated_at)
VALUES ($1, $2, 1, $3, $4, $5)
ON CONFLICT (kind, model) DO UPDATE SET
	calls = oracle_usage.calls + 1,
	input_tokens = oracle_usage.input_tokens + EXCLUDED.input_tokens,
	output_tokens = oracle_usage.output_tokens + EXCLUDED.output_tokens,
	updated_at = EXCLUDED.updated_at`,
		usage.Kind, usage.Model, usage.InputTokens, usage.OutputTokens, s.now().UTC()); err != nil {
		return fmt.Errorf("record oracle usage: %w", err)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}
