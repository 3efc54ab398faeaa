package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"markpilot/internal/model"
	"markpilot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Open opens a SQLite database at dsn, sets pragmas, and runs pending
// migrations. The returned handle is shared by this package's store and
// the bookmark tree store.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an opened database handle.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SaveSubscription inserts or replaces a subscription.
func (s *SQLite) SaveSubscription(ctx context.Context, sub *model.Subscription) error {
	items, err := json.Marshal(sub.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	readItems, err := json.Marshal(sub.ReadItems)
	if err != nil {
		return fmt.Errorf("marshal read items: %w", err)
	}

	var lastChecked *string
	if sub.LastChecked != nil {
		v := sub.LastChecked.UTC().Format(timeLayout)
		lastChecked = &v
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO subscriptions
		 (id, url, title, feed_url, feed_type, feed_title, items, read_items, last_checked, followed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.URL, sub.Title, sub.FeedURL, string(sub.FeedType), sub.FeedTitle,
		string(items), string(readItems), lastChecked, boolToInt(sub.Followed),
		sub.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// GetSubscription returns a single subscription by its ID.
func (s *SQLite) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, feed_url, feed_type, feed_title, items, read_items, last_checked, followed, created_at
		 FROM subscriptions WHERE id = ?`, id,
	)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	return sub, err
}

// ListSubscriptions returns all subscriptions ordered by creation time.
func (s *SQLite) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, title, feed_url, feed_type, feed_title, items, read_items, last_checked, followed, created_at
		 FROM subscriptions ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// DeleteSubscription removes a subscription by its ID.
func (s *SQLite) DeleteSubscription(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// AddDomains records domains in the given cache, ignoring duplicates.
func (s *SQLite) AddDomains(ctx context.Context, kind model.DomainKind, values []string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO domains (kind, value) VALUES (?, ?)`, string(kind), v,
		); err != nil {
			return fmt.Errorf("insert domain: %w", err)
		}
	}
	return tx.Commit()
}

// RemoveDomain removes a single entry from a domain cache.
func (s *SQLite) RemoveDomain(ctx context.Context, kind model.DomainKind, value string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM domains WHERE kind = ? AND value = ?`, string(kind), value)
	if err != nil {
		return fmt.Errorf("remove domain: %w", err)
	}
	return nil
}

// ListDomains returns the full contents of a domain cache as a set.
func (s *SQLite) ListDomains(ctx context.Context, kind model.DomainKind) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM domains WHERE kind = ?`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query domains: %w", err)
	}
	defer func() { _ = rows.Close() }()

	set := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		set[v] = true
	}
	return set, rows.Err()
}

// ClearDomains empties a domain cache.
func (s *SQLite) ClearDomains(ctx context.Context, kind model.DomainKind) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM domains WHERE kind = ?`, string(kind))
	if err != nil {
		return fmt.Errorf("clear domains: %w", err)
	}
	return nil
}

// IncrementClick bumps the click counter for a URL.
func (s *SQLite) IncrementClick(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO click_stats (url, count) VALUES (?, 1)
		 ON CONFLICT(url) DO UPDATE SET count = count + 1`, url)
	if err != nil {
		return fmt.Errorf("increment click: %w", err)
	}
	return nil
}

// SetClicks sets a click counter to an absolute value. Used when
// restoring stats from a backup.
func (s *SQLite) SetClicks(ctx context.Context, url string, count int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO click_stats (url, count) VALUES (?, ?)`, url, count)
	if err != nil {
		return fmt.Errorf("set clicks: %w", err)
	}
	return nil
}

// ClickStats returns all click counters.
func (s *SQLite) ClickStats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url, count FROM click_stats`)
	if err != nil {
		return nil, fmt.Errorf("query click stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[string]int)
	for rows.Next() {
		var url string
		var count int
		if err := rows.Scan(&url, &count); err != nil {
			return nil, fmt.Errorf("scan click stat: %w", err)
		}
		stats[url] = count
	}
	return stats, rows.Err()
}

// GetSetting returns a settings value, or "" when the key is absent.
func (s *SQLite) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return v, nil
}

// SetSetting stores a settings value, replacing any previous one.
func (s *SQLite) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// AllSettings returns the full settings map.
func (s *SQLite) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// Clear wipes subscriptions, domain caches, click stats, and settings.
func (s *SQLite) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"subscriptions", "domains", "click_stats", "settings"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscription(row scannable) (*model.Subscription, error) {
	var sub model.Subscription
	var feedType, items, readItems, created string
	var lastChecked sql.NullString
	var followed int

	err := row.Scan(&sub.ID, &sub.URL, &sub.Title, &sub.FeedURL, &feedType, &sub.FeedTitle,
		&items, &readItems, &lastChecked, &followed, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}

	sub.FeedType = model.FeedType(feedType)
	sub.Followed = followed == 1
	if err := json.Unmarshal([]byte(items), &sub.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	if err := json.Unmarshal([]byte(readItems), &sub.ReadItems); err != nil {
		return nil, fmt.Errorf("unmarshal read items: %w", err)
	}
	if lastChecked.Valid {
		t, _ := time.Parse(timeLayout, lastChecked.String)
		sub.LastChecked = &t
	}
	sub.CreatedAt, _ = time.Parse(timeLayout, created)
	return &sub, nil
}
