package usage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alecgard/gabelle/internal/crypto"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for usage records.
type Store struct {
	pool   *pgxpool.Pool
	cipher *crypto.Cipher // nil disables at-rest encryption of ocr_text
}

// NewStore creates a Store backed by the given connection pool. A non-nil
// cipher encrypts recognized text before it reaches the database.
func NewStore(pool *pgxpool.Pool, cipher *crypto.Cipher) *Store {
	return &Store{pool: pool, cipher: cipher}
}

const recordColumns = `id, subscription_id, plan_id, dimension_id,
	ocr_text, word_count, meter_processed, created_at`

// BatchInsert writes a slice of usage records in a single multi-row INSERT.
// It is a no-op when records is empty.
func (s *Store) BatchInsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	const cols = 8
	args := make([]any, 0, len(records)*cols)
	rows := make([]string, 0, len(records))

	for i, rec := range records {
		base := i * cols
		rows = append(rows, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		text, err := s.cipher.Encrypt(rec.OcrText)
		if err != nil {
			return fmt.Errorf("encrypting ocr text for record %s: %w", rec.ID, err)
		}
		args = append(args,
			rec.ID,
			rec.SubscriptionID,
			rec.PlanID,
			rec.DimensionID,
			text,
			rec.WordCount,
			rec.MeterProcessed,
			rec.CreatedAt,
		)
	}

	query := `INSERT INTO usage_records
		(id, subscription_id, plan_id, dimension_id,
		 ocr_text, word_count, meter_processed, created_at)
		VALUES ` + strings.Join(rows, ", ")

	_, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("batch inserting usage records: %w", err)
	}

	return nil
}

// GetSummary returns aggregate usage figures matching the query filters.
func (s *Store) GetSummary(ctx context.Context, q Query) (*Summary, error) {
	where, args := buildWhereClause(q)

	query := `SELECT
		COUNT(*),
		COALESCE(SUM(word_count), 0),
		COALESCE(SUM(CASE WHEN meter_processed THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN NOT meter_processed THEN 1 ELSE 0 END), 0)
	FROM usage_records` + where

	var summary Summary
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&summary.TotalRecords,
		&summary.TotalWords,
		&summary.ProcessedCount,
		&summary.PendingCount,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage summary: %w", err)
	}

	return &summary, nil
}

// List returns a page of usage records matching the query filters, ordered
// by created_at DESC, id DESC with cursor-based pagination. The returned
// cursor is empty when there are no more results.
func (s *Store) List(ctx context.Context, q Query) ([]*Record, string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	where, args := buildWhereClause(q)

	// The cursor encodes "created_at|id".
	if q.Cursor != "" {
		ts, id, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		n := len(args)
		if where == "" {
			where = " WHERE"
		} else {
			where += " AND"
		}
		where += fmt.Sprintf(" (created_at, id) < ($%d, $%d)", n+1, n+2)
		args = append(args, ts, id)
	}

	query := `SELECT ` + recordColumns + `
	FROM usage_records` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit+1) // fetch one extra to determine if there's a next page

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing usage records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scanning usage record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating usage records: %w", err)
	}

	var nextCursor string
	if len(records) > limit {
		last := records[limit-1]
		nextCursor = encodeCursor(last.CreatedAt, last.ID)
		records = records[:limit]
	}

	return records, nextCursor, nil
}

// ListUnprocessed returns up to limit records not yet submitted to the
// metering API, oldest first. Used by the downstream metering submitter.
func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `SELECT `+recordColumns+`
		FROM usage_records WHERE meter_processed = FALSE
		ORDER BY created_at ASC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unprocessed records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning usage record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkProcessed transitions a record's meter_processed flag from false to
// true. The reverse transition does not exist; marking an already processed
// record returns pgx.ErrNoRows.
func (s *Store) MarkProcessed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE usage_records SET meter_processed = TRUE
		 WHERE id = $1 AND meter_processed = FALSE`, id)
	if err != nil {
		return fmt.Errorf("marking record processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var storedText string
	if err := row.Scan(
		&rec.ID, &rec.SubscriptionID, &rec.PlanID, &rec.DimensionID,
		&storedText, &rec.WordCount, &rec.MeterProcessed, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	text, err := s.cipher.Decrypt(storedText)
	if err != nil {
		return nil, fmt.Errorf("decrypting ocr text for record %s: %w", rec.ID, err)
	}
	rec.OcrText = text
	return &rec, nil
}

// buildWhereClause constructs a WHERE clause and positional arguments from a
// Query. The returned string starts with " WHERE" or is empty.
func buildWhereClause(q Query) (string, []any) {
	var conditions []string
	var args []any

	if q.SubscriptionID != "" {
		args = append(args, q.SubscriptionID)
		conditions = append(conditions, fmt.Sprintf("subscription_id = $%d", len(args)))
	}
	if q.DimensionID != "" {
		args = append(args, q.DimensionID)
		conditions = append(conditions, fmt.Sprintf("dimension_id = $%d", len(args)))
	}
	if !q.From.IsZero() {
		args = append(args, q.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

// encodeCursor encodes a timestamp and id into an opaque cursor string.
func encodeCursor(ts time.Time, id string) string {
	raw := ts.Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor decodes an opaque cursor string into a timestamp and id.
func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decoding cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parsing cursor timestamp: %w", err)
	}
	return ts, parts[1], nil
}
