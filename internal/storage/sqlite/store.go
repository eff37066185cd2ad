// Package sqlite implements crawler.Store on an embedded SQLite database
// (modernc.org/sqlite, no cgo). It suits single-host runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/artist-crawler/internal/crawler"
)

// Config selects the database file.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Store implements crawler.Store.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ crawler.Store = (*Store)(nil)

// Open opens (creating if needed) the database at cfg.Path. Call Migrate
// before use.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database.sqlite.path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; transactions queue on the pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db, path: cfg.Path, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

// ClaimLocations atomically moves up to limit unclaimed rows to claimed.
func (s *Store) ClaimLocations(ctx context.Context, limit int, excludeHosts []string) ([]crawler.Location, error) {
	if limit <= 0 {
		return nil, nil
	}
	var (
		filter strings.Builder
		args   = []any{int(crawler.StatusClaimed), int(crawler.StatusUnclaimed)}
	)
	for _, sub := range excludeHosts {
		sub = strings.TrimSpace(sub)
		if sub == "" {
			continue
		}
		filter.WriteString(" AND instr(lower(website_uri), lower(?)) = 0")
		args = append(args, sub)
	}
	args = append(args, limit)

	query := `UPDATE locations SET is_scraped = ?
WHERE id IN (
	SELECT id FROM locations
	WHERE is_scraped = ? AND website_uri IS NOT NULL AND website_uri <> ''` + filter.String() + `
	ORDER BY id
	LIMIT ?
)
RETURNING id, name, website_uri`

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// SetLocationStatus finalizes a claimed location.
func (s *Store) SetLocationStatus(ctx context.Context, locationID int64, status crawler.LocationStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE locations SET is_scraped = ? WHERE id = ? AND is_scraped = ?`,
		int(status), locationID, int(crawler.StatusClaimed))
	if err != nil {
		return fmt.Errorf("set location %d status: %w", locationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set location %d status: %w", locationID, err)
	}
	if n == 0 {
		return fmt.Errorf("set location %d status %s: %w", locationID, status, crawler.ErrStatusConflict)
	}
	return nil
}

// ReleaseLocations returns claimed rows to unclaimed.
func (s *Store) ReleaseLocations(ctx context.Context, locationIDs []int64) (int, error) {
	if len(locationIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(locationIDs)+2)
	args = append(args, int(crawler.StatusUnclaimed), int(crawler.StatusClaimed))
	for _, id := range locationIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(locationIDs)), ",")
	res, err := s.db.ExecContext(ctx,
		`UPDATE locations SET is_scraped = ? WHERE is_scraped = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("release locations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release locations: %w", err)
	}
	return int(n), nil
}

// InsertLocation adds an unclaimed location, returning the existing id for a
// known URI.
func (s *Store) InsertLocation(ctx context.Context, name, websiteURI string) (int64, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO locations (name, website_uri, is_scraped) VALUES (?, ?, ?)`,
		name, websiteURI, int(crawler.StatusUnclaimed)); err != nil {
		return 0, fmt.Errorf("insert location: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM locations WHERE website_uri = ?`, websiteURI).Scan(&id); err != nil {
		return 0, fmt.Errorf("select location: %w", err)
	}
	return id, nil
}

// ArtistNames lists names already stored for a location.
func (s *Store) ArtistNames(ctx context.Context, locationID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM artists WHERE location_id = ? ORDER BY id`, locationID)
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
		return 0, errors.New("artist name is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save artist: %w", err)
	}

	id, err := saveArtistTx(ctx, tx, artist)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save artist: %w", err)
	}
	return id, nil
}

func saveArtistTx(ctx context.Context, tx *sql.Tx, artist crawler.Artist) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO artists (location_id, name, email, phone, social_links, years_experience)
VALUES (?, ?, ?, ?, ?, ?)`,
		artist.LocationID,
		artist.Name,
		nullString(artist.Email),
		nullString(artist.Phone),
		nullString(artist.SocialLinks),
		nullInt(artist.YearsExperience),
	)
	if err != nil {
		return 0, fmt.Errorf("insert artist: %w", err)
	}
	artistID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert artist: %w", err)
	}

	for _, name := range crawler.NormalizeStyles(artist.Styles) {
		styleID, err := getOrCreateStyle(ctx, tx, name)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO artists_styles (artist_id, style_id) VALUES (?, ?)`,
			artistID, styleID); err != nil {
			return 0, fmt.Errorf("link style %q: %w", name, err)
		}
	}
	return artistID, nil
}

func getOrCreateStyle(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	const selectSQL = `SELECT id FROM styles WHERE lower(name) = lower(?)`

	var id int64
	err := tx.QueryRowContext(ctx, selectSQL, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("select style %q: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO styles (name) VALUES (?)`, name); err != nil {
		return 0, fmt.Errorf("insert style %q: %w", name, err)
	}
	if err := tx.QueryRowContext(ctx, selectSQL, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("reselect style %q: %w", name, err)
	}
	return id, nil
}

// LogAction appends an audit row.
func (s *Store) LogAction(ctx context.Context, entry crawler.AuditEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_actions (location_id, action, created_at) VALUES (?, ?, ?)`,
		entry.LocationID, entry.Action, ts.UTC()); err != nil {
		return fmt.Errorf("insert scrape action: %w", err)
	}
	return nil
}

// RecordOracleUsage adds one call and its tokens to the (kind, model) row.
func (s *Store) RecordOracleUsage(ctx context.Context, usage crawler.OracleUsage) error {
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO oracle_usage (kind, model, calls, input_tokens, output_tokens, updated_at)
VALUES (?, ?, 1, ?, ?, ?)
ON CONFLICT (kind, model) DO UPDATE SET
	calls = calls + 1,
	input_tokens = input_tokens + excluded.input_tokens,
	output_tokens = output_tokens + excluded.output_tokens,
	updated_at = excluded.updated_at`,
		usage.Kind, usage.Model, usage.InputTokens, usage.OutputTokens, s.now().UTC()); err != nil {
		return fmt.Errorf("record oracle usage: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n > 0}
}
