// Package mongosession is a MongoDB-backed session.Store, grounded on the
// teacher's features/session/mongo/clients/mongo client (same
// delete-then-insert upsert shape, adapted from run/session metadata to the
// single Session Record spec.md §9 defines), using the v2 driver.
package mongosession

import (
	"context"
	"errors"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/deepresearch/agentrunner/internal/adapters/session"
)

const (
	defaultCollection = "research_sessions"
	defaultOpTimeout  = 5 * time.Second
)

// Options configures the Mongo-backed session.Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements session.Store against a MongoDB collection.
type Store struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New constructs a Store, ensuring a unique index on research_id.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongosession: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongosession: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)

	idxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	idx := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "research_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(idxCtx, idx); err != nil {
		return nil, err
	}

	return &Store{coll: coll, timeout: timeout}, nil
}

// NewFromEnv reads MONGODB_URI and MONGODB_DATABASE per spec.md §6 and
// connects a Store against them, mirroring search/oxylabs.NewFromEnv and
// parse/grpcparser.NewFromEnv's env-driven construction pattern.
func NewFromEnv(ctx context.Context) (*Store, error) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		return nil, errors.New("mongosession: MONGODB_URI is not set")
	}
	database := os.Getenv("MONGODB_DATABASE")
	if database == "" {
		return nil, errors.New("mongosession: MONGODB_DATABASE is not set")
	}

	client, err := mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, err
	}

	return New(ctx, Options{Client: client, Database: database})
}

type document struct {
	ResearchID   string         `bson:"research_id"`
	Status       string         `bson:"status"`
	InitialQuery string         `bson:"initial_query"`
	Plan         string         `bson:"plan"`
	TextConfig   map[string]any `bson:"text_config,omitempty"`
}

func toDocument(r session.Record) document {
	return document{
		ResearchID:   r.ResearchID,
		Status:       r.Status,
		InitialQuery: r.InitialQuery,
		Plan:         r.Plan,
		TextConfig:   r.TextConfig,
	}
}

func (d document) toRecord() session.Record {
	return session.Record{
		ResearchID:   d.ResearchID,
		Status:       d.Status,
		InitialQuery: d.InitialQuery,
		Plan:         d.Plan,
		TextConfig:   d.TextConfig,
	}
}

// Upsert implements session.Store: delete any record sharing r.ResearchID,
// then insert r, matching spec.md §9's "delete by id then insert" contract
// literally rather than via Mongo's own upsert operator, so retries converge
// to exactly one document even if a prior attempt partially applied.
func (s *Store) Upsert(ctx context.Context, r session.Record) error {
	if r.ResearchID == "" {
		return errors.New("mongosession: research_id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.coll.DeleteMany(ctx, bson.M{"research_id": r.ResearchID}); err != nil {
		return err
	}
	_, err := s.coll.InsertOne(ctx, toDocument(r))
	return err
}

// Load implements session.Store.
func (s *Store) Load(ctx context.Context, researchID string) (session.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc document
	err := s.coll.FindOne(ctx, bson.M{"research_id": researchID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return session.Record{}, session.ErrNotFound
	}
	if err != nil {
		return session.Record{}, err
	}
	return doc.toRecord(), nil
}

// DeleteByQuery implements session.Store by loading every record and
// applying match in-process, since match is an arbitrary Go predicate rather
// than a Mongo filter document.
func (s *Store) DeleteByQuery(ctx context.Context, match func(session.Record) bool) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return err
	}
	defer func() { _ = cur.Close(ctx) }()

	var toDelete []string
	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return err
		}
		if match(doc.toRecord()) {
			toDelete = append(toDelete, doc.ResearchID)
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	if len(toDelete) == 0 {
		return nil
	}
	_, err = s.coll.DeleteMany(ctx, bson.M{"research_id": bson.M{"$in": toDelete}})
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
