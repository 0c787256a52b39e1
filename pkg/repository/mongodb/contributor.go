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

const ContributorCollectionName = "contributors"

type MongoContributorRepository struct {
	logger     *zap.Logger
	collection *mongo.Collection
}

var (
	_ repository.ContributorRepository = (*MongoContributorRepository)(nil)
	_ mongoCollection                  = (*MongoContributorRepository)(nil)

	collationCaseInsensitive = &options.Collation{
		Locale:   "en",
		Strength: 1,
	}
)

func NewMongoContributorRepository(logger *zap.Logger, db *mongo.Database) *MongoContributorRepository {
	return &MongoContributorRepository{
		logger:     logger,
		collection: db.Collection(ContributorCollectionName),
	}
}

func (m *MongoContributorRepository) InitSchema(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "provider_username", Value: 1}},
		Options: options.Index().SetUnique(true).SetCollation(collationCaseInsensitive),
	})

	return err
}

func (m *MongoContributorRepository) FindVerifiedContributor(ctx context.Context, login string) (types.Contributor, bool, error) {
	var contributor types.Contributor

	filter := bson.D{{Key: "provider_username", Value: login}}
	opts := options.FindOne().SetCollation(collationCaseInsensitive)
	if err := m.collection.FindOne(ctx, filter, opts).Decode(&contributor); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Contributor{}, false, nil
		}

		return types.Contributor{}, false, err
	}

	return contributor, true, nil
}
