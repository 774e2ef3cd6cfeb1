package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

// OpenSQLStore opens databaseURL, applies migrations and returns the store.
func OpenSQLStore(ctx context.Context, databaseURL string) (*SQLStore, error) {
	db, dialect, err := Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := ApplyMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLStore(db, dialect), nil
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) q(query string) string {
	return rebind(s.dialect, query)
}

func (s *SQLStore) GetRecord(ctx context.Context, id string) (*Envelope, error) {
	const query = `
		SELECT id, document, plain_text, html, fingerprint, log_created_at, log_updated_at, creator_origin, modifier_origin, version, stored_at
		FROM eventlogs
		WHERE id = $1
	`
	var (
		env      Envelope
		document []byte
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx, s.q(query), id).Scan(
		&env.ID,
		&document,
		&env.Log.PlainText,
		&env.Log.HTML,
		&env.Log.Fingerprint,
		&env.Log.CreatedAt,
		&env.Log.UpdatedAt,
		&env.Log.CreatorOrigin,
		&env.Log.ModifierOrigin,
		&env.Version,
		&storedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if err := json.Unmarshal(document, &env.Log.Document); err != nil {
		return nil, fmt.Errorf("decode record document: %w", err)
	}
	env.StoredAt = time.UnixMilli(storedAt).UTC()
	return &env, nil
}

// PutRecord writes env under id. A zero Version creates the record and
// fails with ErrVersionConflict if it exists; a positive Version updates
// only if the stored version still matches; AnyVersion upserts.
func (s *SQLStore) PutRecord(ctx context.Context, id string, env Envelope) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("put record: empty id")
	}
	document, err := json.Marshal(env.Log.Document)
	if err != nil {
		return fmt.Errorf("encode record document: %w", err)
	}
	rec := env.Log
	storedAt := s.now().UnixMilli()
	args := []any{id, string(document), rec.PlainText, rec.HTML, rec.Fingerprint, rec.CreatedAt, rec.UpdatedAt, storedAt, rec.CreatorOrigin, rec.ModifierOrigin}

	var query string
	switch {
	case env.Version == AnyVersion:
		query = `
			INSERT INTO eventlogs (id, document, plain_text, html, fingerprint, log_created_at, log_updated_at, creator_origin, modifier_origin, version, stored_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $9, $10, 1, $8)
			ON CONFLICT (id) DO UPDATE SET
				document = excluded.document,
				plain_text = excluded.plain_text,
				html = excluded.html,
				fingerprint = excluded.fingerprint,
				log_created_at = excluded.log_created_at,
				log_updated_at = excluded.log_updated_at,
				creator_origin = excluded.creator_origin,
				modifier_origin = excluded.modifier_origin,
				version = eventlogs.version + 1,
				stored_at = excluded.stored_at
		`
	case env.Version == 0:
		query = `
			INSERT INTO eventlogs (id, document, plain_text, html, fingerprint, log_created_at, log_updated_at, creator_origin, modifier_origin, version, stored_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $9, $10, 1, $8)
			ON CONFLICT (id) DO NOTHING
		`
	case env.Version > 0:
		query = `
			UPDATE eventlogs SET
				document = $2,
				plain_text = $3,
				html = $4,
				fingerprint = $5,
				log_created_at = $6,
				log_updated_at = $7,
				creator_origin = $9,
				modifier_origin = $10,
				version = version + 1,
				stored_at = $8
			WHERE id = $1 AND version = $11
		`
		args = append(args, env.Version)
	default:
		return fmt.Errorf("put record: invalid version %d", env.Version)
	}

	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put record rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *SQLStore) DeleteRecord(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM eventlogs WHERE id = $1`), id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// ListRecords returns the most recently stored records first.
func (s *SQLStore) ListRecords(ctx context.Context, limit int) ([]RecordSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, fingerprint, log_updated_at, version, stored_at
		FROM eventlogs
		ORDER BY stored_at DESC, id ASC
		LIMIT $1
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make([]RecordSummary, 0)
	for rows.Next() {
		var (
			item     RecordSummary
			storedAt int64
		)
		if err := rows.Scan(&item.ID, &item.Fingerprint, &item.UpdatedAt, &item.Version, &storedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		item.StoredAt = time.UnixMilli(storedAt).UTC()
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// SearchPlainText matches query against stored plain text: Postgres full
// text search, or a case-insensitive LIKE on sqlite.
func (s *SQLStore) SearchPlainText(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchHit{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var stmt string
	var arg any = query
	if s.dialect == DialectPostgres {
		stmt = `
			SELECT id, plain_text
			FROM eventlogs
			WHERE to_tsvector('simple', plain_text) @@ plainto_tsquery('simple', $1)
			ORDER BY ts_rank(to_tsvector('simple', plain_text), plainto_tsquery('simple', $1)) DESC, stored_at DESC
			LIMIT $2
		`
	} else {
		stmt = `
			SELECT id, plain_text
			FROM eventlogs
			WHERE LOWER(plain_text) LIKE $1 ESCAPE '\'
			ORDER BY stored_at DESC
			LIMIT $2
		`
		arg = "%" + escapeLike(strings.ToLower(query)) + "%"
	}

	rows, err := s.db.QueryContext(ctx, s.q(stmt), arg, limit)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()

	out := make([]SearchHit, 0)
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		out = append(out, SearchHit{ID: id, Snippet: Snippet(text, query, 80)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Snippet cuts up to width runes of text around the first case-insensitive
// occurrence of query.
func Snippet(text, query string, width int) string {
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}
	start := 0
	if i := strings.Index(strings.ToLower(text), strings.ToLower(query)); i >= 0 && i <= len(text) {
		start = utf8.RuneCountInString(text[:i]) - width/4
		if start < 0 {
			start = 0
		}
	}
	end := start + width
	if end > len(runes) {
		end = len(runes)
		start = max(0, end-width)
	}
	return string(runes[start:end])
}

