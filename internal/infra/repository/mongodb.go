package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NewsDiscover/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type categoryURIDoc struct {
	CategoryID  string    `bson:"_id"`
	ProviderURI string    `bson:"provider_uri"`
	ResolvedAt  time.Time `bson:"resolved_at"`
}

// MongoCategoryStore keeps resolved category URIs so a restarted process
// does not have to look them up again.
type MongoCategoryStore struct {
	db         *mongo.Database
	collection *mongo.Collection
}

var _ domain.CategoryURIStore = (*MongoCategoryStore)(nil)

func NewMongoCategoryStore(client *mongo.Client, dbName, collectionName string) (*MongoCategoryStore, error) {
	db := client.Database(dbName)
	repo := &MongoCategoryStore{
		db:         db,
		collection: db.Collection(collectionName),
	}

	if err := repo.createIndexes(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return repo, nil
}

func (r *MongoCategoryStore) createIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "resolved_at", Value: -1}},
			Options: options.Index().SetName("resolved_at_idx"),
		},
	}

	opts := options.CreateIndexes().SetMaxTime(10 * time.Second)
	_, err := r.collection.Indexes().CreateMany(ctx, models, opts)
	return err
}

// Save upserts the URI resolved for categoryID.
func (r *MongoCategoryStore) Save(ctx context.Context, categoryID, uri string) error {
	filter := bson.M{"_id": categoryID}
	update := bson.M{"$set": bson.M{
		"provider_uri": uri,
		"resolved_at":  time.Now().UTC(),
	}}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert category uri: %w", err)
	}
	return nil
}

// LoadAll returns every stored category id with its URI.
func (r *MongoCategoryStore) LoadAll(ctx context.Context) (map[string]string, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query category uris: %w", err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			slog.Warn("Failed to close cursor", "error", err)
		}
	}()

	results := make(map[string]string)
	for cursor.Next(ctx) {
		var doc categoryURIDoc
		if err := cursor.Decode(&doc); err != nil {
			continue // Skip malformed
		}
		if doc.ProviderURI != "" {
			results[doc.CategoryID] = doc.ProviderURI
		}
	}
	return results, cursor.Err()
}
