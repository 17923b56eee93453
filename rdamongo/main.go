// Package rdamongo provides a MongoDB store adapter for the resilient
// data access (RDA) layer.
package rdamongo

import (
	"context"
	"strings"
	"time"

	"github.com/lemmego/rda"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// =====================================
// Factory Implementation
// =====================================

// Options tunes the MongoDB client
type Options struct {
	// Database overrides the database name from the endpoint path
	Database string

	ConnectTimeout  time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// Factory builds MongoDB-backed stores from connection configs
type Factory struct {
	options Options
}

// NewFactory creates a store factory with the given options
func NewFactory(options Options) *Factory {
	return &Factory{options: options}
}

// NewStoreFactory adapts the factory to the rda.StoreFactory boundary.
func NewStoreFactory(options Options) rda.StoreFactory {
	return NewFactory(options).Create
}

// Create connects a MongoDB client for the configured endpoint and
// wraps it in a Store. Credentials ride in the endpoint URI.
func (f *Factory) Create(config rda.ConnectionConfig) (rda.Store, error) {
	database := f.options.Database
	if database == "" {
		database = dbNameFromURI(config.Endpoint)
	}
	if database == "" {
		return nil, rda.NewValidationError("mongodb endpoint carries no database name")
	}

	clientOpts := options.Client().ApplyURI(config.Endpoint)
	if f.options.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(f.options.MaxPoolSize)
	}
	if f.options.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(f.options.MinPoolSize)
	}
	if f.options.MaxConnIdleTime > 0 {
		clientOpts.SetMaxConnIdleTime(f.options.MaxConnIdleTime)
	}

	timeout := f.options.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, rda.NewDatabaseError("connecting to mongodb failed", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, rda.NewDatabaseError("pinging mongodb failed", err)
	}

	return NewStore(client, client.Database(database)), nil
}

// dbNameFromURI extracts the database name from a mongodb URI path
func dbNameFromURI(uri string) string {
	trimmed := uri
	if idx := strings.Index(trimmed, "?"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	trimmed = strings.TrimPrefix(trimmed, "mongodb://")
	trimmed = strings.TrimPrefix(trimmed, "mongodb+srv://")
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		return strings.TrimSuffix(trimmed[idx+1:], "/")
	}
	return ""
}

// =====================================
// Store Implementation
// =====================================

// Store implements rda.Store using the official MongoDB driver
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewStore wraps an existing MongoDB client and database handle
func NewStore(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{client: client, db: db}
}

// Database exposes the underlying database handle
func (s *Store) Database() *mongo.Database {
	return s.db
}

// Select runs a windowed query and returns the total document count
// without the window applied.
func (s *Store) Select(ctx context.Context, q *rda.Query, dest interface{}) (int64, error) {
	coll := s.db.Collection(q.Collection)
	filter := buildFilter(q.Conditions)

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, convertError(err)
	}

	cursor, err := coll.Find(ctx, filter, findOptions(q))
	if err != nil {
		return 0, convertError(err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, dest); err != nil {
		return 0, convertError(err)
	}
	return total, nil
}

// SelectOne fetches a single document, returning a not-found error on
// a miss.
func (s *Store) SelectOne(ctx context.Context, q *rda.Query, dest interface{}) error {
	coll := s.db.Collection(q.Collection)
	return convertError(coll.FindOne(ctx, buildFilter(q.Conditions)).Decode(dest))
}

// Insert stores a document and reads the stored version back into dest
func (s *Store) Insert(ctx context.Context, collection string, row map[string]interface{}, dest interface{}) error {
	coll := s.db.Collection(collection)
	doc := rowToDoc(row)

	res, err := coll.InsertOne(ctx, doc)
	if err != nil {
		return convertError(err)
	}
	if dest == nil {
		return nil
	}

	key := doc["_id"]
	if key == nil {
		key = res.InsertedID
	}
	return convertError(coll.FindOne(ctx, bson.M{"_id": key}).Decode(dest))
}

// Update applies a $set of changes to every document the query
// matches. Matching nothing is a not-found error so guarded updates
// can detect a lost race.
func (s *Store) Update(ctx context.Context, q *rda.Query, changes map[string]interface{}, dest interface{}) error {
	coll := s.db.Collection(q.Collection)
	filter := buildFilter(q.Conditions)

	res, err := coll.UpdateMany(ctx, filter, bson.M{"$set": rowToDoc(changes)})
	if err != nil {
		return convertError(err)
	}
	if res.MatchedCount == 0 {
		return rda.NewNotFoundError("update matched no documents")
	}
	if dest == nil {
		return nil
	}
	return convertError(coll.FindOne(ctx, rereadFilter(q, changes)).Decode(dest))
}

// Delete removes every document the query matches
func (s *Store) Delete(ctx context.Context, q *rda.Query) (int64, error) {
	coll := s.db.Collection(q.Collection)

	res, err := coll.DeleteMany(ctx, buildFilter(q.Conditions))
	if err != nil {
		return 0, convertError(err)
	}
	return res.DeletedCount, nil
}

// Count counts the documents the query matches
func (s *Store) Count(ctx context.Context, q *rda.Query) (int64, error) {
	coll := s.db.Collection(q.Collection)

	total, err := coll.CountDocuments(ctx, buildFilter(q.Conditions))
	if err != nil {
		return 0, convertError(err)
	}
	return total, nil
}

// Probe runs a cheap estimated count against the collection. MongoDB
// creates collections lazily, so only reachability can fail here.
func (s *Store) Probe(ctx context.Context, collection string) error {
	_, err := s.db.Collection(collection).EstimatedDocumentCount(ctx)
	return convertError(err)
}

// Close disconnects the underlying client
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}
