package mongodb

import (
	"context"
	"errors"

	"github.com/dotrep/contribchain/pkg/repository"
	"github.com/dotrep/contribchain/pkg/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const AnchorCollectionName = "anchors"

type MongoAnchorRepository struct {
	logger     *zap.Logger
	collection *mongo.Collection
}

var (
	_ repository.AnchorRepository = (*MongoAnchorRepository)(nil)
	_ mongoCollection             = (*MongoAnchorRepository)(nil)
)

func NewMongoAnchorRepository(logger *zap.Logger, db *mongo.Database) *MongoAnchorRepository {
	return &MongoAnchorRepository{
		logger:     logger,
		collection: db.Collection(AnchorCollectionName),
	}
}

func (m *MongoAnchorRepository) InitSchema(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "proof_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.M{"created_at": -1},
		},
	})

	return err
}

func (m *MongoAnchorRepository) Store(ctx context.Context, record types.AnchorRecord) error {
	if _, err := m.collection.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrAnchorAlreadyStored
		}

		return err
	}

	return nil
}

func (m *MongoAnchorRepository) SetTxHash(ctx context.Context, proofHash, txHash string, blockNumber *int64) error {
	update := bson.M{"tx_hash": txHash}
	if blockNumber != nil {
		update["block_number"] = *blockNumber
	}

	result, err := m.collection.UpdateOne(
		ctx,
		bson.D{{Key: "proof_hash", Value: proofHash}},
		bson.M{"$set": update},
	)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return repository.ErrAnchorNotFound
	}

	return nil
}

func (m *MongoAnchorRepository) GetByProofHash(ctx context.Context, proofHash string) (types.AnchorRecord, bool, error) {
	var record types.AnchorRecord

	filter := bson.D{{Key: "proof_hash", Value: proofHash}}
	if err := m.collection.FindOne(ctx, filter).Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.AnchorRecord{}, false, nil
		}

		return types.AnchorRecord{}, false, err
	}

	return record, true, nil
}

func (m *MongoAnchorRepository) List(ctx context.Context, limit int) ([]types.AnchorRecord, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}

	var records []types.AnchorRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}

	return records, nil
}
