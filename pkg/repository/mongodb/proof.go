package mongodb

import (
	"context"
	"time"

	"github.com/dotrep/contribchain/pkg/repository"
	"github.com/dotrep/contribchain/pkg/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const ProofCollectionName = "proofs"

// MongoProofRepository is the audit side-channel for admitted proofs. Proofs
// are stored as their payload JSON so the corpus can be re-hashed and handed
// to the analytics engine.
type MongoProofRepository struct {
	logger     *zap.Logger
	collection *mongo.Collection
}

var (
	_ repository.ProofRepository = (*MongoProofRepository)(nil)
	_ mongoCollection            = (*MongoProofRepository)(nil)
)

// proofDocument wraps the proof payload so the hash and verification time
// are indexable without reaching into nested JSON.
type proofDocument struct {
	ProofHash  string      `bson:"proof_hash"`
	VerifiedAt time.Time   `bson:"verified_at"`
	Payload    types.Proof `bson:"payload"`
}

func NewMongoProofRepository(logger *zap.Logger, db *mongo.Database) *MongoProofRepository {
	return &MongoProofRepository{
		logger:     logger,
		collection: db.Collection(ProofCollectionName),
	}
}

func (m *MongoProofRepository) InitSchema(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "proof_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.M{"verified_at": -1},
		},
	})

	return err
}

func (m *MongoProofRepository) Store(ctx context.Context, proof types.Proof) error {
	doc := proofDocument{
		ProofHash:  proof.ProofHash,
		VerifiedAt: proof.Verification.VerifiedAt,
		Payload:    proof,
	}

	// Upsert on proof hash: re-delivered events produce the identical proof
	// payload, so duplicate stores are harmless overwrites.
	filter := bson.D{{Key: "proof_hash", Value: proof.ProofHash}}
	update := bson.M{"$set": doc}
	_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (m *MongoProofRepository) ListSince(ctx context.Context, since time.Time) ([]types.Proof, error) {
	filter := bson.M{"verified_at": bson.M{"$gte": since}}
	cursor, err := m.collection.Find(ctx, filter, options.Find().SetSort(bson.M{"verified_at": 1}))
	if err != nil {
		return nil, err
	}

	var docs []proofDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	proofs := make([]types.Proof, len(docs))
	for i, doc := range docs {
		proofs[i] = doc.Payload
	}

	return proofs, nil
}
