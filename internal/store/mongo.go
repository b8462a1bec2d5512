package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// blockDocument is one cached block in MongoDB.
type blockDocument struct {
	Key      string    `bson:"_id"`
	Data     []byte    `bson:"data"`
	Size     int64     `bson:"size"`
	Accessed time.Time `bson:"accessed"`
}

// MongoStore implements BlockStore on a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	maxBytes   int64
}

// NewMongoStore creates a MongoDB-backed block store.
func NewMongoStore(uri, database, collection string, maxBytes int64) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "accessed", Value: 1}},
	})

	return &MongoStore{client: client, collection: coll, maxBytes: maxBytes}, nil
}

// Get returns the stored bytes for key and refreshes its access time.
func (s *MongoStore) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var doc blockDocument
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"accessed": time.Now()}},
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("key not found: %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read block: %w", err)
	}
	return doc.Data, nil
}

// Set stores the bytes under key and evicts the oldest-accessed documents
// while the payload total exceeds the byte cap.
func (s *MongoStore) Set(key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc := blockDocument{
		Key:      key,
		Data:     value,
		Size:     int64(len(value)),
		Accessed: time.Now(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, opts); err != nil {
		return fmt.Errorf("failed to store block: %w", err)
	}
	return s.enforceCap(ctx, key)
}

// Contains reports whether key is present.
func (s *MongoStore) Contains(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := s.collection.CountDocuments(ctx, bson.M{"_id": key})
	return err == nil && count > 0
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) enforceCap(ctx context.Context, keep string) error {
	for {
		total, err := s.totalSize(ctx)
		if err != nil {
			return err
		}
		if total <= s.maxBytes {
			return nil
		}

		// Delete the single oldest-accessed document and re-check.
		var victim blockDocument
		opts := options.FindOneAndDelete().SetSort(bson.D{{Key: "accessed", Value: 1}})
		err = s.collection.FindOneAndDelete(ctx, bson.M{"_id": bson.M{"$ne": keep}}, opts).Decode(&victim)
		if err == mongo.ErrNoDocuments {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to evict block: %w", err)
		}
	}
}

func (s *MongoStore) totalSize(ctx context.Context) (int64, error) {
	cursor, err := s.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$size"}}}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to measure store size: %w", err)
	}
	defer cursor.Close(ctx)

	var result struct {
		Total int64 `bson:"total"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&result); err != nil {
			return 0, err
		}
	}
	return result.Total, nil
}
