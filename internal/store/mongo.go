package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/livetemplate/storefront/internal/style"
)

// MongoCollection is the collection holding both config documents.
const MongoCollection = "store_config"

// MongoBackend stores each record as a document keyed by its storage key.
type MongoBackend struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoRecord struct {
	ID           string         `bson:"_id"`
	Theme        style.Theme    `bson:"theme"`
	HomeLayout   string         `bson:"homeLayout"`
	FooterLayout string         `bson:"footerLayout"`
	Settings     map[string]any `bson:"settings,omitempty"`
	Version      int64          `bson:"version"`
	UpdatedAt    time.Time      `bson:"updatedAt"`
	UpdatedBy    string         `bson:"updatedBy,omitempty"`
}

// OpenMongo connects to uri and uses the store_config collection of database.
func OpenMongo(ctx context.Context, uri, database string) (*MongoBackend, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo config store: uri required")
	}
	if database == "" {
		database = "storefront"
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoBackend{
		client: client,
		coll:   client.Database(database).Collection(MongoCollection),
	}, nil
}

// Load implements Backend.
func (b *MongoBackend) Load(ctx context.Context, slot Slot) (*Record, error) {
	var doc mongoRecord
	err := b.coll.FindOne(ctx, bson.M{"_id": slot.Key()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", slot.Key(), err)
	}
	return &Record{
		Slot:         slot,
		ID:           doc.ID,
		Theme:        doc.Theme,
		HomeLayout:   doc.HomeLayout,
		FooterLayout: doc.FooterLayout,
		Settings:     doc.Settings,
		Version:      doc.Version,
		UpdatedAt:    doc.UpdatedAt.UTC(),
		UpdatedBy:    doc.UpdatedBy,
	}, nil
}

// Save implements Backend.
func (b *MongoBackend) Save(ctx context.Context, rec *Record) error {
	doc := mongoRecord{
		ID:           rec.Slot.Key(),
		Theme:        rec.Theme,
		HomeLayout:   rec.HomeLayout,
		FooterLayout: rec.FooterLayout,
		Settings:     rec.Settings,
		Version:      rec.Version,
		UpdatedAt:    rec.UpdatedAt,
		UpdatedBy:    rec.UpdatedBy,
	}
	_, err := b.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save %s: %w", doc.ID, err)
	}
	return nil
}

// Copy implements Backend. The target is changed by a single-document
// update, which MongoDB applies atomically.
func (b *MongoBackend) Copy(ctx context.Context, from, to Slot, by string) error {
	var src mongoRecord
	err := b.coll.FindOne(ctx, bson.M{"_id": from.Key()}).Decode(&src)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("copy from %s: %w", from.Key(), ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("copy from %s: %w", from.Key(), err)
	}

	update := bson.M{
		"$set": bson.M{
			"theme":        src.Theme,
			"homeLayout":   src.HomeLayout,
			"footerLayout": src.FooterLayout,
			"updatedAt":    time.Now().UTC(),
			"updatedBy":    by,
		},
		"$inc": bson.M{"version": 1},
	}
	_, err = b.coll.UpdateOne(ctx, bson.M{"_id": to.Key()}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("copy to %s: %w", to.Key(), err)
	}
	return nil
}

// Close implements Backend.
func (b *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.client.Disconnect(ctx)
}
