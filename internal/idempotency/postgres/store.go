package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store keeps replayable checkout responses in idempotency_keys. A key
// older than the TTL is treated as absent and may be claimed again.
type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used to stamp and expire keys.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store. A non-positive ttl keeps keys forever.
func NewStore(pool *pgxpool.Pool, ttl time.Duration, opts ...Option) *Store {
	s := &Store{pool: pool, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// cutoff is the newest created_at that counts as expired.
func (s *Store) cutoff() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(-s.ttl)
}

func (s *Store) Get(ctx context.Context, scope, key string) (*ports.StoredResponse, error) {
	const query = `
		SELECT status_code, body, order_id
		FROM idempotency_keys
		WHERE scope = $1 AND key = $2 AND created_at > $3
	`

	var resp ports.StoredResponse
	err := s.pool.QueryRow(ctx, query, scope, key, s.cutoff()).Scan(&resp.StatusCode, &resp.Body, &resp.OrderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select idempotency key %s/%s: %w", scope, key, err)
	}

	return &resp, nil
}

// Save stores response unless a live entry already holds the key. An
// expired entry is overwritten in place.
func (s *Store) Save(ctx context.Context, scope, key string, response ports.StoredResponse) error {
	const query = `
		INSERT INTO idempotency_keys (scope, key, status_code, body, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scope, key) DO UPDATE
		SET status_code = EXCLUDED.status_code,
		    body = EXCLUDED.body,
		    order_id = EXCLUDED.order_id,
		    created_at = EXCLUDED.created_at
		WHERE idempotency_keys.created_at <= $7
	`

	body := response.Body
	if body == nil {
		body = []byte{}
	}

	_, err := s.pool.Exec(ctx, query,
		scope, key, response.StatusCode, body, response.OrderID, s.now().UTC(), s.cutoff())
	if err != nil {
		return fmt.Errorf("upsert idempotency key %s/%s: %w", scope, key, err)
	}

	return nil
}

// Purge deletes expired keys and reports how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at <= $1`, s.cutoff())
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
