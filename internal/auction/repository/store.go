package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	auctionerrors "auctionworker/internal/auction/errors"
	"auctionworker/pkg/config"
	"auctionworker/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DocumentStore is the raw store under AuctionRepository. Replace is a
// compare-and-swap on the revision: expectedRev "" means the document must
// not exist yet.
type DocumentStore interface {
	Find(ctx context.Context, id string) (*model.AuctionDocument, error)
	Revision(ctx context.Context, id string) (rev string, found bool, err error)
	Replace(ctx context.Context, doc *model.AuctionDocument, expectedRev string) error
	Ping(ctx context.Context) error
}

type mongoDocumentStore struct {
	collection *mongo.Collection
	client     *mongo.Client
	timeout    time.Duration
}

func NewMongoDocumentStore(cfg *config.Config) DocumentStore {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoDocumentStore{
		collection: db.Collection(cfg.MongoCollection),
		client:     cfg.Client.Mongo,
		timeout:    cfg.MongoConnTimeout,
	}
}

func (s *mongoDocumentStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < s.timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *mongoDocumentStore) Find(ctx context.Context, id string) (*model.AuctionDocument, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc model.AuctionDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auctionerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find auction document: %w", err)
	}
	return &doc, nil
}

func (s *mongoDocumentStore) Revision(ctx context.Context, id string) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var head struct {
		Rev string `bson:"_rev"`
	}
	opts := options.FindOne().SetProjection(bson.M{"_rev": 1})
	err := s.collection.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&head)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read revision: %w", err)
	}
	return head.Rev, true, nil
}

func (s *mongoDocumentStore) Replace(ctx context.Context, doc *model.AuctionDocument, expectedRev string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if expectedRev == "" {
		_, err := s.collection.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return auctionerrors.ErrRevisionConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert auction document: %w", err)
		}
		return nil
	}

	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID, "_rev": expectedRev}, doc)
	if err != nil {
		return fmt.Errorf("failed to replace auction document: %w", err)
	}
	if result.MatchedCount == 0 {
		return auctionerrors.ErrRevisionConflict
	}
	return nil
}

func (s *mongoDocumentStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Ping(ctx, nil)
}
