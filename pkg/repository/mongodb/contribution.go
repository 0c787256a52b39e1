package mongodb

import (
	"context"

	"github.com/dotrep/contribchain/pkg/repository"
	"github.com/dotrep/contribchain/pkg/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const ContributionCollectionName = "contributions"

type MongoContributionRepository struct {
	logger     *zap.Logger
	collection *mongo.Collection
}

var (
	_ repository.ContributionRepository = (*MongoContributionRepository)(nil)
	_ mongoCollection                   = (*MongoContributionRepository)(nil)
)

func NewMongoContributionRepository(logger *zap.Logger, db *mongo.Database) *MongoContributionRepository {
	return &MongoContributionRepository{
		logger:     logger,
		collection: db.Collection(ContributionCollectionName),
	}
}

func (m *MongoContributionRepository) InitSchema(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "contributor_id", Value: 1}},
		},
		{
			Keys: bson.M{"created_at": -1},
		},
	})

	return err
}

func (m *MongoContributionRepository) RecordContribution(ctx context.Context, contribution types.Contribution) error {
	_, err := m.collection.InsertOne(ctx, contribution)
	return err
}
