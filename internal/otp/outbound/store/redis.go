package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

const redisKeyPrefix = "otp:record:"

// compareAndDelete removes KEYS[1] only if it still holds ARGV[1] byte for byte.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// redisRecord fixes the wire form so a snapshot re-encodes to the same bytes.
type redisRecord struct {
	Identity   string `json:"identity"`
	CodeDigest string `json:"code_digest"`
	CreatedAt  int64  `json:"created_at"`
	ExpiresAt  int64  `json:"expires_at"`
	Consumed   bool   `json:"consumed,omitempty"`
}

func encodeRedisRecord(rec entity.Record) ([]byte, error) {
	return json.Marshal(redisRecord{
		Identity:   rec.Identity,
		CodeDigest: rec.CodeDigest,
		CreatedAt:  rec.CreatedAt.UnixNano(),
		ExpiresAt:  rec.ExpiresAt.UnixNano(),
		Consumed:   rec.Consumed,
	})
}

// Redis stores one key per identity with a TTL of the code lifetime plus the
// retention window.
type Redis struct {
	client redis.UniversalClient
	owned  bool
	opts   Options
	tr     tracer
}

// NewRedis wraps an existing client. Close does not close it.
func NewRedis(client redis.UniversalClient, opts Options) *Redis {
	opts = opts.withDefaults()
	return &Redis{
		client: client,
		opts:   opts,
		tr:     tracer{backend: "redis", timeout: opts.Timeout, ins: opts.Instrument},
	}
}

// NewRedisFromURL dials a dedicated client and pings it.
func NewRedisFromURL(ctx context.Context, rawURL string, opts Options) (*Redis, error) {
	o, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}

	client := redis.NewClient(o)
	r := NewRedis(client, opts)
	r.owned = true

	pingCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("store: ping redis: %w", err), client.Close())
	}

	return r, nil
}

func (r *Redis) Put(ctx context.Context, rec entity.Record) (err error) {
	ctx, end := r.tr.start(ctx, "Put")
	defer func() { end(err) }()

	val, err := encodeRedisRecord(rec)
	if err != nil {
		return err
	}

	ttl := rec.ExpiresAt.Sub(rec.CreatedAt) + r.opts.Retention
	if ttl <= 0 {
		ttl = time.Second
	}

	return r.client.Set(ctx, redisKeyPrefix+rec.Identity, val, ttl).Err()
}

func (r *Redis) Get(ctx context.Context, identity string) (_ *entity.Record, err error) {
	ctx, end := r.tr.start(ctx, "Get")
	defer func() { end(err) }()

	val, err := r.client.Get(ctx, redisKeyPrefix+identity).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, goerror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rr redisRecord
	if err := json.Unmarshal(val, &rr); err != nil {
		return nil, fmt.Errorf("store: decode redis record: %w", err)
	}

	return &entity.Record{
		Identity:   rr.Identity,
		CodeDigest: rr.CodeDigest,
		CreatedAt:  time.Unix(0, rr.CreatedAt).UTC(),
		ExpiresAt:  time.Unix(0, rr.ExpiresAt).UTC(),
		Consumed:   rr.Consumed,
	}, nil
}

func (r *Redis) Invalidate(ctx context.Context, identity string) (err error) {
	ctx, end := r.tr.start(ctx, "Invalidate")
	defer func() { end(err) }()

	return r.client.Del(ctx, redisKeyPrefix+identity).Err()
}

func (r *Redis) InvalidateIf(ctx context.Context, snapshot entity.Record) (_ bool, err error) {
	ctx, end := r.tr.start(ctx, "InvalidateIf")
	defer func() { end(err) }()

	return r.deleteSnapshot(ctx, snapshot)
}

func (r *Redis) Consume(ctx context.Context, snapshot entity.Record) (_ bool, err error) {
	ctx, end := r.tr.start(ctx, "Consume")
	defer func() { end(err) }()

	if snapshot.Consumed {
		return false, nil
	}

	return r.deleteSnapshot(ctx, snapshot)
}

func (r *Redis) deleteSnapshot(ctx context.Context, snapshot entity.Record) (bool, error) {
	val, err := encodeRedisRecord(snapshot)
	if err != nil {
		return false, err
	}

	n, err := compareAndDelete.Run(ctx, r.client, []string{redisKeyPrefix + snapshot.Identity}, string(val)).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Close closes the client only when NewRedisFromURL created it.
func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
