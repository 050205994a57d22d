// Package documents stores historic quote rows in a MongoDB collection.
// Rows are inserted as-is; the collection is not deduplicated.
package documents

import (
	"context"
	"fmt"

	"github.com/trogers1052/stock-dashboard/internal/config"
	"github.com/trogers1052/stock-dashboard/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store wraps a connected client and its target collection
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect opens a client for cfg and verifies it with a ping
func Connect(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Store{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// WithStore connects, runs fn and disconnects again
func WithStore(ctx context.Context, cfg config.MongoConfig, fn func(*Store) error) error {
	store, err := Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	return fn(store)
}

// InsertHistory inserts one document per quote and returns how many were written
func (s *Store) InsertHistory(ctx context.Context, quotes []models.Quote) (int, error) {
	if len(quotes) == 0 {
		return 0, nil
	}

	docs := make([]interface{}, 0, len(quotes))
	for i := range quotes {
		docs = append(docs, ToDocument(&quotes[i]))
	}

	res, err := s.collection.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("failed to insert history documents: %w", err)
	}
	return len(res.InsertedIDs), nil
}

// All returns every document in the collection with fields in stored order
func (s *Store) All(ctx context.Context) ([]bson.D, error) {
	cur, err := s.collection.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer cur.Close(ctx)

	var docs []bson.D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}

// ToDocument lays a quote out the way a reset-index price frame is stored
func ToDocument(q *models.Quote) bson.D {
	doc := bson.D{
		{Key: "Date", Value: q.Date},
		{Key: "Open", Value: q.Open.InexactFloat64()},
		{Key: "High", Value: q.High.InexactFloat64()},
		{Key: "Low", Value: q.Low.InexactFloat64()},
		{Key: "Close", Value: q.Close.InexactFloat64()},
	}
	if q.AdjustedClose.Valid {
		doc = append(doc, bson.E{Key: "Adj Close", Value: q.AdjustedClose.Decimal.InexactFloat64()})
	}
	return append(doc,
		bson.E{Key: "Volume", Value: q.Volume},
		bson.E{Key: "Symbol", Value: q.Symbol},
	)
}

// Scoped opens a fresh connection for every call
type Scoped struct {
	Config config.MongoConfig
}

// InsertHistory inserts quotes on a short-lived connection
func (s Scoped) InsertHistory(ctx context.Context, quotes []models.Quote) (int, error) {
	var n int
	err := WithStore(ctx, s.Config, func(store *Store) error {
		var err error
		n, err = store.InsertHistory(ctx, quotes)
		return err
	})
	return n, err
}

// All reads the collection on a short-lived connection
func (s Scoped) All(ctx context.Context) ([]bson.D, error) {
	var docs []bson.D
	err := WithStore(ctx, s.Config, func(store *Store) error {
		var err error
		docs, err = store.All(ctx)
		return err
	})
	return docs, err
}
