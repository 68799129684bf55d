package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calloway/promptgate/internal/crypto"
)

// ErrDuplicateRecord is returned when a record with the same request ID has
// already been written. Each pipeline run writes exactly one record, so a
// duplicate insert is a programming error.
var ErrDuplicateRecord = errors.New("duplicate audit record")

const uniqueViolation = "23505"

// Store provides append-only persistence for audit records.
type Store struct {
	pool   *pgxpool.Pool
	cipher *crypto.Cipher // nil: sanitized input stored as plaintext
}

// NewStore creates a Store backed by the given connection pool. When cipher
// is non-nil, sanitized prompt text is encrypted at rest.
func NewStore(pool *pgxpool.Pool, cipher *crypto.Cipher) *Store {
	return &Store{pool: pool, cipher: cipher}
}

// Insert appends one audit record. The request ID is the natural unique key.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	input, err := s.cipher.Encrypt(rec.InputSanitized)
	if err != nil {
		return fmt.Errorf("encrypting sanitized input: %w", err)
	}

	flags := rec.RiskFlags
	if flags == nil {
		flags = []string{}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_logs
		 (request_id, agent_id, endpoint, model, input_sanitized, tokens_used,
		  latency_ms, cost_usd, status, risk_flags, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.RequestID, rec.AgentID, rec.Endpoint, rec.Model, input,
		rec.TokensUsed, rec.LatencyMs, rec.CostUSD, rec.Status, flags,
		rec.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, most recent first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT request_id, agent_id, endpoint, model, input_sanitized,
		        tokens_used, latency_ms, cost_usd, status, risk_flags, timestamp
		 FROM audit_logs
		 ORDER BY timestamp DESC, request_id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing audit records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(&rec.RequestID, &rec.AgentID, &rec.Endpoint,
			&rec.Model, &rec.InputSanitized, &rec.TokensUsed, &rec.LatencyMs,
			&rec.CostUSD, &rec.Status, &rec.RiskFlags, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}

		plain, err := s.cipher.Decrypt(rec.InputSanitized)
		if err != nil {
			return nil, fmt.Errorf("decrypting sanitized input: %w", err)
		}
		rec.InputSanitized = plain

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}
	return records, nil
}
