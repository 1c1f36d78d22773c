package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	mongoDefaultDatabase = "otpgate"
	mongoCollection      = "otp_records"
)

type mongoRecord struct {
	Identity   string    `bson:"_id"`
	CodeDigest string    `bson:"code_digest"`
	CreatedAt  time.Time `bson:"created_at"`
	ExpiresAt  time.Time `bson:"expires_at"`
	PurgeAt    time.Time `bson:"purge_at"`
	Consumed   bool      `bson:"consumed"`
}

// Mongo keeps one document per identity keyed by _id. A TTL index on
// purge_at removes documents once their retention has passed.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	owned  bool
	opts   Options
	tr     tracer
}

// NewMongo wraps an existing collection. Close does not disconnect.
func NewMongo(coll *mongo.Collection, opts Options) *Mongo {
	opts = opts.withDefaults()
	return &Mongo{
		client: coll.Database().Client(),
		coll:   coll,
		opts:   opts,
		tr:     tracer{backend: "mongo", timeout: opts.Timeout, ins: opts.Instrument},
	}
}

// NewMongoFromURI connects using uri. The database is taken from the URI path
// and defaults to otpgate.
func NewMongoFromURI(ctx context.Context, uri string, opts Options) (*Mongo, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("store: parse mongo uri: %w", err)
	}
	dbName := strings.TrimSpace(cs.Database)
	if dbName == "" {
		dbName = mongoDefaultDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect mongo: %w", err)
	}

	m := NewMongo(client.Database(dbName).Collection(mongoCollection), opts)
	m.owned = true

	pingCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, errors.Join(fmt.Errorf("store: ping mongo: %w", err), client.Disconnect(ctx))
	}

	if m.opts.AutoMigrate {
		if err := m.Migrate(ctx); err != nil {
			return nil, errors.Join(err, client.Disconnect(ctx))
		}
	}

	return m, nil
}

// Migrate creates the purge TTL index.
func (m *Mongo) Migrate(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "purge_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetName("purge_at_ttl"),
	})
	if err != nil {
		return fmt.Errorf("store: migrate mongo: %w", err)
	}
	return nil
}

func (m *Mongo) Put(ctx context.Context, rec entity.Record) (err error) {
	ctx, end := m.tr.start(ctx, "Put")
	defer func() { end(err) }()

	doc := mongoRecord{
		Identity:   rec.Identity,
		CodeDigest: rec.CodeDigest,
		CreatedAt:  rec.CreatedAt.Truncate(time.Millisecond),
		ExpiresAt:  rec.ExpiresAt.Truncate(time.Millisecond),
		PurgeAt:    rec.ExpiresAt.Add(m.opts.Retention),
	}

	_, err = m.coll.ReplaceOne(ctx, bson.M{"_id": rec.Identity}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) Get(ctx context.Context, identity string) (_ *entity.Record, err error) {
	ctx, end := m.tr.start(ctx, "Get")
	defer func() { end(err) }()

	var doc mongoRecord
	err = m.coll.FindOne(ctx, bson.M{
		"_id":      identity,
		"purge_at": bson.M{"$gt": m.opts.Clock.Now()},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, goerror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &entity.Record{
		Identity:   doc.Identity,
		CodeDigest: doc.CodeDigest,
		CreatedAt:  doc.CreatedAt.UTC(),
		ExpiresAt:  doc.ExpiresAt.UTC(),
		Consumed:   doc.Consumed,
	}, nil
}

func (m *Mongo) Invalidate(ctx context.Context, identity string) (err error) {
	ctx, end := m.tr.start(ctx, "Invalidate")
	defer func() { end(err) }()

	_, err = m.coll.DeleteOne(ctx, bson.M{"_id": identity})
	return err
}

func (m *Mongo) InvalidateIf(ctx context.Context, snapshot entity.Record) (_ bool, err error) {
	ctx, end := m.tr.start(ctx, "InvalidateIf")
	defer func() { end(err) }()

	res, err := m.coll.DeleteOne(ctx, bson.M{
		"_id":         snapshot.Identity,
		"code_digest": snapshot.CodeDigest,
		"created_at":  snapshot.CreatedAt.Truncate(time.Millisecond),
	})
	if err != nil {
		return false, err
	}
	return res.DeletedCount == 1, nil
}

func (m *Mongo) Consume(ctx context.Context, snapshot entity.Record) (_ bool, err error) {
	ctx, end := m.tr.start(ctx, "Consume")
	defer func() { end(err) }()

	err = m.coll.FindOneAndUpdate(ctx,
		bson.M{
			"_id":         snapshot.Identity,
			"code_digest": snapshot.CodeDigest,
			"created_at":  snapshot.CreatedAt.Truncate(time.Millisecond),
			"consumed":    false,
		},
		bson.M{"$set": bson.M{"consumed": true}},
	).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close disconnects only when NewMongoFromURI created the client.
func (m *Mongo) Close() error {
	if !m.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
