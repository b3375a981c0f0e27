package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the canonical persistent fragment storage.
type SQLiteStore struct {
	db               *sql.DB
	defaultMaxTokens int
}

// NewSQLiteStore creates/opens the fragment database at path.
func NewSQLiteStore(path string, defaultMaxTokens int) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create fragment db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process store. One shared connection avoids writer lock
	// contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if defaultMaxTokens <= 0 {
		defaultMaxTokens = 50000
	}
	s := &SQLiteStore{db: db, defaultMaxTokens: defaultMaxTokens}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS fragments (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			subcategory TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			token_count INTEGER NOT NULL,
			relevance REAL NOT NULL DEFAULT 0,
			usage_frequency INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL,
			last_accessed_ms INTEGER NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			archived INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS fragments_fetch_idx ON fragments(user_id, category, archived, created_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS fragments_evict_idx ON fragments(user_id, category, archived, relevance, usage_frequency, created_at_ms);`,
		`CREATE TABLE IF NOT EXISTS category_states (
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			focus TEXT NOT NULL DEFAULT '',
			is_dynamic INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1,
			max_tokens INTEGER NOT NULL,
			current_tokens INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL,
			last_accessed_ms INTEGER NOT NULL,
			PRIMARY KEY(user_id, category)
		);`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			labels_json TEXT NOT NULL DEFAULT '{}',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS metrics_metric_idx ON metrics(metric, created_at_ms DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(stmt string) string {
	line := strings.TrimSpace(stmt)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

func nowMS() int64 { return time.Now().UnixMilli() }

func encodeMap(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeMap(raw string) map[string]string {
	if raw == "" {
		return map[string]string{}
	}
	out := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]string{}
	}
	return out
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const fragmentColumns = `id, user_id, category, subcategory, content, token_count, relevance, usage_frequency, created_at_ms, last_accessed_ms, metadata_json`

func scanFragment(rows *sql.Rows) (Fragment, error) {
	var f Fragment
	var createdMS, accessedMS int64
	var metaRaw string
	if err := rows.Scan(&f.ID, &f.UserID, &f.Category, &f.Subcategory, &f.Content,
		&f.TokenCount, &f.RelevanceScore, &f.UsageFrequency, &createdMS, &accessedMS, &metaRaw); err != nil {
		return Fragment{}, err
	}
	f.CreatedAt = time.UnixMilli(createdMS)
	f.LastAccessedAt = time.UnixMilli(accessedMS)
	f.Metadata = decodeMap(metaRaw)
	return f, nil
}

func (s *SQLiteStore) FetchCandidates(ctx context.Context, userID, cat, sub string, limit int) ([]Fragment, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + fragmentColumns + `
FROM fragments
WHERE user_id = ? AND category = ? AND archived = 0`
	args := []any{userID, cat}
	if sub != "" {
		query += ` AND subcategory = ?`
		args = append(args, sub)
	}
	query += ` ORDER BY relevance DESC, created_at_ms DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	defer rows.Close()

	out := make([]Fragment, 0, limit)
	for rows.Next() {
		f, err := scanFragment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) WriteFragment(ctx context.Context, f Fragment) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.insertFragmentTx(ctx, tx, f)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit write: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) insertFragmentTx(ctx context.Context, tx *sql.Tx, f Fragment) (string, error) {
	if f.ID == "" {
		f.ID = "frag-" + uuid.NewString()
	}
	now := nowMS()
	createdMS := now
	if !f.CreatedAt.IsZero() {
		createdMS = f.CreatedAt.UnixMilli()
	}
	accessedMS := createdMS
	if !f.LastAccessedAt.IsZero() {
		accessedMS = f.LastAccessedAt.UnixMilli()
	}

	if err := s.ensureCategoryTx(ctx, tx, f.UserID, f.Category, now); err != nil {
		return "", err
	}

	_, err := tx.ExecContext(ctx, `
INSERT INTO fragments(id, user_id, category, subcategory, content, token_count, relevance, usage_frequency, created_at_ms, last_accessed_ms, metadata_json, archived)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		f.ID, f.UserID, f.Category, f.Subcategory, f.Content, f.TokenCount,
		clampUnit(f.RelevanceScore), f.UsageFrequency, createdMS, accessedMS, encodeMap(f.Metadata))
	if err != nil {
		return "", fmt.Errorf("insert fragment: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
UPDATE category_states SET current_tokens = current_tokens + ?, last_accessed_ms = ?
WHERE user_id = ? AND category = ?`,
		f.TokenCount, now, f.UserID, f.Category)
	if err != nil {
		return "", fmt.Errorf("account fragment tokens: %w", err)
	}
	return f.ID, nil
}

func (s *SQLiteStore) ensureCategoryTx(ctx context.Context, tx *sql.Tx, userID, cat string, now int64) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO category_states(user_id, category, focus, is_dynamic, active, max_tokens, current_tokens, created_at_ms, last_accessed_ms)
VALUES(?, ?, '', 0, 1, ?, 0, ?, ?)
ON CONFLICT(user_id, category) DO NOTHING`,
		userID, cat, s.defaultMaxTokens, now, now)
	if err != nil {
		return fmt.Errorf("ensure category state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateUsage(ctx context.Context, fragmentID string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE fragments SET usage_frequency = usage_frequency + 1, last_accessed_ms = ?
WHERE id = ?`, nowMS(), fragmentID)
	if err != nil {
		return fmt.Errorf("update usage: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListEvictionCandidates(ctx context.Context, userID, cat string, limit int) ([]Fragment, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+fragmentColumns+`
FROM fragments
WHERE user_id = ? AND category = ? AND archived = 0
ORDER BY relevance ASC, usage_frequency ASC, created_at_ms ASC
LIMIT ?`, userID, cat, limit)
	if err != nil {
		return nil, fmt.Errorf("list eviction candidates: %w", err)
	}
	defer rows.Close()

	out := make([]Fragment, 0, limit)
	for rows.Next() {
		f, err := scanFragment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan eviction candidate: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) EvictCandidates(ctx context.Context, userID, cat string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin evict: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	freed, err := s.evictTx(ctx, tx, userID, cat, ids)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit evict: %w", err)
	}
	return freed, nil
}

func (s *SQLiteStore) evictTx(ctx context.Context, tx *sql.Tx, userID, cat string, ids []string) (int, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+2)
	args = append(args, userID, cat)
	for _, id := range ids {
		args = append(args, id)
	}

	var freed sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(token_count), 0)
FROM fragments
WHERE user_id = ? AND category = ? AND id IN (`+placeholders+`)`, args...).Scan(&freed)
	if err != nil {
		return 0, fmt.Errorf("sum evicted tokens: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM fragments
WHERE user_id = ? AND category = ? AND id IN (`+placeholders+`)`, args...); err != nil {
		return 0, fmt.Errorf("delete evicted fragments: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE category_states SET current_tokens = MAX(0, current_tokens - ?)
WHERE user_id = ? AND category = ?`, freed.Int64, userID, cat); err != nil {
		return 0, fmt.Errorf("account evicted tokens: %w", err)
	}
	return int(freed.Int64), nil
}

func (s *SQLiteStore) EvictAndWrite(ctx context.Context, ids []string, f Fragment) (string, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, fmt.Errorf("begin evict+write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	freed := 0
	if len(ids) > 0 {
		freed, err = s.evictTx(ctx, tx, f.UserID, f.Category, ids)
		if err != nil {
			return "", 0, err
		}
	}
	id, err := s.insertFragmentTx(ctx, tx, f)
	if err != nil {
		return "", 0, err
	}
	if err := tx.Commit(); err != nil {
		return "", 0, fmt.Errorf("commit evict+write: %w", err)
	}
	return id, freed, nil
}

func (s *SQLiteStore) GetCategoryUsage(ctx context.Context, userID, cat string) (Usage, error) {
	var u Usage
	err := s.db.QueryRowContext(ctx, `SELECT current_tokens, max_tokens
FROM category_states WHERE user_id = ? AND category = ?`, userID, cat).Scan(&u.CurrentTokens, &u.MaxTokens)
	if err == sql.ErrNoRows {
		return Usage{CurrentTokens: 0, MaxTokens: s.defaultMaxTokens}, nil
	}
	if err != nil {
		return Usage{}, fmt.Errorf("get category usage: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) ListCategoryStates(ctx context.Context, userID string, dynamicOnly bool) ([]CategoryState, error) {
	query := `SELECT user_id, category, focus, is_dynamic, active, max_tokens, current_tokens, created_at_ms, last_accessed_ms
FROM category_states WHERE user_id = ?`
	if dynamicOnly {
		query += ` AND is_dynamic = 1`
	}
	query += ` ORDER BY category`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list category states: %w", err)
	}
	defer rows.Close()

	out := []CategoryState{}
	for rows.Next() {
		var (
			cs                    CategoryState
			isDyn, active         int
			createdMS, accessedMS int64
		)
		if err := rows.Scan(&cs.UserID, &cs.Name, &cs.Focus, &isDyn, &active,
			&cs.MaxTokens, &cs.CurrentTokens, &createdMS, &accessedMS); err != nil {
			return nil, fmt.Errorf("scan category state: %w", err)
		}
		cs.IsDynamic = isDyn == 1
		cs.Active = active == 1
		cs.CreatedAt = time.UnixMilli(createdMS)
		cs.LastAccessedAt = time.UnixMilli(accessedMS)
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertCategoryState(ctx context.Context, cs CategoryState) error {
	now := nowMS()
	createdMS := now
	if !cs.CreatedAt.IsZero() {
		createdMS = cs.CreatedAt.UnixMilli()
	}
	accessedMS := now
	if !cs.LastAccessedAt.IsZero() {
		accessedMS = cs.LastAccessedAt.UnixMilli()
	}
	if cs.MaxTokens <= 0 {
		cs.MaxTokens = s.defaultMaxTokens
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO category_states(user_id, category, focus, is_dynamic, active, max_tokens, current_tokens, created_at_ms, last_accessed_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, category) DO UPDATE SET
	focus = excluded.focus,
	is_dynamic = excluded.is_dynamic,
	active = excluded.active,
	max_tokens = excluded.max_tokens,
	last_accessed_ms = excluded.last_accessed_ms`,
		cs.UserID, cs.Name, cs.Focus, boolInt(cs.IsDynamic), boolInt(cs.Active),
		cs.MaxTokens, cs.CurrentTokens, createdMS, accessedMS)
	if err != nil {
		return fmt.Errorf("upsert category state: %w", err)
	}
	return nil
}

// ArchiveCategory deactivates the category row and marks its fragments
// archived. Archived fragments stay stored but every fetch, eviction and
// accounting query excludes them, so the row's token count drops to zero.
func (s *SQLiteStore) ArchiveCategory(ctx context.Context, userID, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE category_states SET active = 0, current_tokens = 0
WHERE user_id = ? AND category = ?`, userID, name)
	if err != nil {
		return fmt.Errorf("archive category: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE fragments SET archived = 1
WHERE user_id = ? AND category = ? AND archived = 0`, userID, name); err != nil {
		return fmt.Errorf("archive category fragments: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TouchCategory(ctx context.Context, userID, name string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE category_states SET last_accessed_ms = ? WHERE user_id = ? AND category = ?`,
		at.UnixMilli(), userID, name)
	if err != nil {
		return fmt.Errorf("touch category: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReconcileCategoryTokens(ctx context.Context, userID string) (int, error) {
	// Empty userID reconciles every user (maintenance sweep).
	query := `
UPDATE category_states
SET current_tokens = (
	SELECT COALESCE(SUM(token_count), 0) FROM fragments
	WHERE fragments.user_id = category_states.user_id
	  AND fragments.category = category_states.category
	  AND fragments.archived = 0
)
WHERE current_tokens <> (
	SELECT COALESCE(SUM(token_count), 0) FROM fragments
	WHERE fragments.user_id = category_states.user_id
	  AND fragments.category = category_states.category
	  AND fragments.archived = 0
)`
	args := []any{}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reconcile category tokens: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *SQLiteStore) AddMetric(ctx context.Context, metric string, value float64, labels map[string]string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO metrics(metric, value, labels_json, created_at_ms) VALUES(?, ?, ?, ?)`,
		metric, value, encodeMap(labels), nowMS())
	if err != nil {
		return fmt.Errorf("add metric: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
