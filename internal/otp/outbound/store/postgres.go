package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"go.uber.org/atomic"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS otp_records (
	identity    TEXT PRIMARY KEY,
	code_digest TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	consumed    BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS otp_records_expires_at_idx ON otp_records (expires_at);
`

const (
	queryUpsert = `
INSERT INTO otp_records (identity, code_digest, created_at, expires_at, consumed)
VALUES ($1, $2, $3, $4, FALSE)
ON CONFLICT (identity) DO UPDATE
SET code_digest = EXCLUDED.code_digest,
	created_at  = EXCLUDED.created_at,
	expires_at  = EXCLUDED.expires_at,
	consumed    = FALSE`

	querySelect = `
SELECT identity, code_digest, created_at, expires_at, consumed
FROM otp_records
WHERE identity = $1 AND expires_at > $2`

	queryDelete = `DELETE FROM otp_records WHERE identity = $1`

	queryDeleteIssue = `
DELETE FROM otp_records
WHERE identity = $1 AND code_digest = $2 AND created_at = $3`

	queryConsume = `
UPDATE otp_records SET consumed = TRUE
WHERE identity = $1 AND code_digest = $2 AND created_at = $3 AND consumed = FALSE`

	queryReap = `DELETE FROM otp_records WHERE consumed OR expires_at < $1`
)

// Postgres keeps one row per identity. Rows past their retention, and
// consumed rows, are removed by Reap.
type Postgres struct {
	pool    *pgxpool.Pool
	owned   bool
	opts    Options
	tr      tracer
	reaping *atomic.Bool
}

// NewPostgres wraps an existing pool. Close does not close it.
func NewPostgres(pool *pgxpool.Pool, opts Options) *Postgres {
	opts = opts.withDefaults()
	return &Postgres{
		pool:    pool,
		opts:    opts,
		tr:      tracer{backend: "postgres", timeout: opts.Timeout, ins: opts.Instrument},
		reaping: atomic.NewBool(false),
	}
}

// NewPostgresFromURL opens a pool, pings it and optionally migrates.
func NewPostgresFromURL(ctx context.Context, rawURL string, opts Options) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(rawURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres pool: %w", err)
	}

	p := NewPostgres(pool, opts)
	p.owned = true

	pingCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	if p.opts.AutoMigrate {
		if err := p.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return p, nil
}

// Migrate creates the otp_records table and its index.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("store: migrate postgres: %w", err)
	}
	return nil
}

func (p *Postgres) Put(ctx context.Context, rec entity.Record) (err error) {
	ctx, end := p.tr.start(ctx, "Put")
	defer func() { end(err) }()

	_, err = p.pool.Exec(ctx, queryUpsert,
		rec.Identity,
		rec.CodeDigest,
		rec.CreatedAt.Truncate(time.Microsecond),
		rec.ExpiresAt.Truncate(time.Microsecond),
	)
	return err
}

// Get returns the row while it is within retention, consumed or not.
func (p *Postgres) Get(ctx context.Context, identity string) (_ *entity.Record, err error) {
	ctx, end := p.tr.start(ctx, "Get")
	defer func() { end(err) }()

	var rec entity.Record
	err = p.pool.QueryRow(ctx, querySelect, identity, p.opts.Clock.Now().Add(-p.opts.Retention)).
		Scan(&rec.Identity, &rec.CodeDigest, &rec.CreatedAt, &rec.ExpiresAt, &rec.Consumed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, goerror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	return &rec, nil
}

func (p *Postgres) Invalidate(ctx context.Context, identity string) (err error) {
	ctx, end := p.tr.start(ctx, "Invalidate")
	defer func() { end(err) }()

	_, err = p.pool.Exec(ctx, queryDelete, identity)
	return err
}

func (p *Postgres) InvalidateIf(ctx context.Context, snapshot entity.Record) (_ bool, err error) {
	ctx, end := p.tr.start(ctx, "InvalidateIf")
	defer func() { end(err) }()

	tag, err := p.pool.Exec(ctx, queryDeleteIssue,
		snapshot.Identity,
		snapshot.CodeDigest,
		snapshot.CreatedAt.Truncate(time.Microsecond),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) Consume(ctx context.Context, snapshot entity.Record) (_ bool, err error) {
	ctx, end := p.tr.start(ctx, "Consume")
	defer func() { end(err) }()

	tag, err := p.pool.Exec(ctx, queryConsume,
		snapshot.Identity,
		snapshot.CodeDigest,
		snapshot.CreatedAt.Truncate(time.Microsecond),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Reap deletes consumed rows and rows past their retention. Overlapping
// calls return immediately; a failing sweep is retried with backoff.
func (p *Postgres) Reap(ctx context.Context) error {
	if !p.reaping.CompareAndSwap(false, true) {
		return nil
	}
	defer p.reaping.Store(false)

	b := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	b = retry.WithCappedDuration(2*time.Second, b)

	return retry.Do(ctx, b, func(ctx context.Context) (err error) {
		ctx, end := p.tr.start(ctx, "Reap")
		defer func() { end(err) }()

		tag, err := p.pool.Exec(ctx, queryReap, p.opts.Clock.Now().Add(-p.opts.Retention))
		if err != nil {
			slog.WarnContext(ctx, "failed to reap otp records", "error", err)
			return retry.RetryableError(err)
		}
		if n := tag.RowsAffected(); n > 0 {
			slog.InfoContext(ctx, "otp records reaped", "count", n)
		}
		return nil
	})
}

// Close closes the pool only when NewPostgresFromURL created it.
func (p *Postgres) Close() error {
	if p.owned {
		p.pool.Close()
	}
	return nil
}
