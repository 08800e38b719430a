package source

import (
	"context"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/livetemplate/storefront/internal/config"
)

// MongoSource reads every document of a collection.
type MongoSource struct {
	name    string
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
}

// NewMongoSource connects using cfg.DB as the URI.
func NewMongoSource(name string, cfg config.SourceConfig) (*MongoSource, error) {
	uri := os.ExpandEnv(cfg.DB)
	if uri == "" {
		return nil, configError(name, "db", "mongo uri is required")
	}
	if cfg.Collection == "" {
		return nil, configError(name, "collection", "collection is required")
	}
	database := cfg.Database
	if database == "" {
		database = "storefront"
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, connectError(name, "mongo", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, connectError(name, "mongo", err)
	}

	return &MongoSource{
		name:    name,
		client:  client,
		coll:    client.Database(database).Collection(cfg.Collection),
		timeout: cfg.GetTimeout(),
	}, nil
}

// Name returns the source identifier
func (s *MongoSource) Name() string {
	return s.name
}

// Fetch returns all documents. The Mongo _id is exposed as "id" when the
// document has no id field of its own.
func (s *MongoSource) Fetch(ctx context.Context) (Rows, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fetchError(s.name, "find", err)
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fetchError(s.name, "decode", err)
	}

	rows := make(Rows, 0, len(docs))
	for _, doc := range docs {
		row := plain(doc).(map[string]any)
		if _, ok := row["id"]; !ok {
			if oid, ok := row["_id"].(bson.ObjectID); ok {
				row["id"] = oid.Hex()
			} else if id, ok := row["_id"]; ok {
				row["id"] = id
			}
		}
		delete(row, "_id")
		rows = append(rows, row)
	}
	return rows, nil
}

// plain converts bson containers into the map and slice types used by
// every other feed.
func plain(v any) any {
	switch t := v.(type) {
	case bson.M:
		m := make(map[string]any, len(t))
		for k, v := range t {
			m[k] = plain(v)
		}
		return m
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = plain(e.Value)
		}
		return m
	case bson.A:
		a := make([]any, len(t))
		for i, v := range t {
			a[i] = plain(v)
		}
		return a
	}
	return v
}

// Close disconnects the client
func (s *MongoSource) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
