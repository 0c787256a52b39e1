package mongodb

import (
	"context"
	"time"

	"github.com/dotrep/contribchain/pkg/repository"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type MongoRepository struct {
	database      *mongo.Database
	contributors  *MongoContributorRepository
	contributions *MongoContributionRepository
	proofs        *MongoProofRepository
	anchors       *MongoAnchorRepository
}

var _ repository.Repository = (*MongoRepository)(nil)

type mongoCollection interface {
	InitSchema(ctx context.Context) error
}

func NewMongoRepository(logger *zap.Logger, db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		database:      db,
		contributors:  NewMongoContributorRepository(logger, db),
		contributions: NewMongoContributionRepository(logger, db),
		proofs:        NewMongoProofRepository(logger, db),
		anchors:       NewMongoAnchorRepository(logger, db),
	}
}

func (m *MongoRepository) InitSchema(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	cols := []mongoCollection{m.contributors, m.contributions, m.proofs, m.anchors}
	for _, col := range cols {
		col := col
		group.Go(func() error {
			return col.InitSchema(ctx)
		})
	}

	return group.Wait()
}

func (m *MongoRepository) Contributors() repository.ContributorRepository {
	return m.contributors
}

func (m *MongoRepository) Contributions() repository.ContributionRepository {
	return m.contributions
}

func (m *MongoRepository) Proofs() repository.ProofRepository {
	return m.proofs
}

func (m *MongoRepository) Anchors() repository.AnchorRepository {
	return m.anchors
}

func (m *MongoRepository) TestConnection() error {
	ctx, cancelFunc := context.WithTimeout(context.Background(), time.Second*10)
	defer cancelFunc()

	return m.database.Client().Ping(ctx, nil)
}
