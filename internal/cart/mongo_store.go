package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trilltino/handyman/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	cartsCollection = "carts"

	// DefaultMongoIdleTTL is how long an untouched durable cart is kept.
	DefaultMongoIdleTTL = 90 * 24 * time.Hour
)

// ConnectMongoDB opens a pooled client and checks the server answers. The
// client is closed again if the check fails.
func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5*time.Second).
		SetMaxPoolSize(50))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client.Database(database), nil
}

// MongoStore keeps carts durably, across browser restarts, until cleared or
// idle for longer than its TTL.
type MongoStore struct {
	collection *mongo.Collection
	idleTTL    time.Duration
}

func NewMongoStore(db *mongo.Database, idleTTL time.Duration) *MongoStore {
	if idleTTL <= 0 {
		idleTTL = DefaultMongoIdleTTL
	}
	return &MongoStore{collection: db.Collection(cartsCollection), idleTTL: idleTTL}
}

// EnsureIndexes creates the unique session index used by every lookup and
// the TTL index that expires idle carts on updated_at.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(m.idleTTL / time.Second)),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}
	return nil
}

func (m *MongoStore) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	var c domain.Cart

	err := m.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &c, nil
}

func (m *MongoStore) Save(ctx context.Context, c *domain.Cart) error {
	filter := bson.M{"session_id": c.SessionID}
	opts := options.Replace().SetUpsert(true)

	if _, err := m.collection.ReplaceOne(ctx, filter, c, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"session_id": sessionID}); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}
