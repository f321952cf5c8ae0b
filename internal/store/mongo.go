package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mshop/cart-agent/internal/domain"
)

// MongoStore keeps the snapshot as a single document per owner. It is the
// durable alternative to redis; it publishes no change events, so the
// cross-context watcher only works with the redis store.
type MongoStore struct {
	collection *mongo.Collection
	owner      string
}

type snapshotDoc struct {
	Owner     string            `bson:"owner"`
	Lines     []domain.CartLine `bson:"lines"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

func NewMongoStore(db *mongo.Database, owner string) *MongoStore {
	return &MongoStore{
		collection: db.Collection("cart_snapshots"),
		owner:      owner,
	}
}

func (s *MongoStore) Load(ctx context.Context) ([]domain.CartLine, error) {
	var doc snapshotDoc
	err := s.collection.FindOne(ctx, bson.M{"owner": s.owner}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return doc.Lines, nil
}

func (s *MongoStore) Save(ctx context.Context, lines []domain.CartLine) error {
	doc := snapshotDoc{
		Owner:     s.owner,
		Lines:     lines,
		UpdatedAt: time.Now(),
	}

	filter := bson.M{"owner": s.owner}
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)

	if _, err := s.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *MongoStore) Clear(ctx context.Context) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"owner": s.owner}); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}

// ConnectMongo dials mongo with the pool settings used across the project.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}
