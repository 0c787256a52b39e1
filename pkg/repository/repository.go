package repository

import (
	"context"
	"time"

	"github.com/dotrep/contribchain/pkg/types"
)

type Repository interface {
	Contributors() ContributorRepository
	Contributions() ContributionRepository
	Proofs() ProofRepository
	Anchors() AnchorRepository
	TestConnection() error
}

// ContributorRepository is the read side of the external contributor
// registry the verifier consults.
type ContributorRepository interface {
	FindVerifiedContributor(ctx context.Context, login string) (types.Contributor, bool, error)
}

// ContributionRepository records admitted contributions. Writes are
// best-effort from the pipeline's point of view; callers log failures and
// continue.
type ContributionRepository interface {
	RecordContribution(ctx context.Context, contribution types.Contribution) error
}

// ProofRepository is the audit side-channel: raw proofs are persisted here
// after admission so analytics and backfills can read the full corpus.
type ProofRepository interface {
	Store(ctx context.Context, proof types.Proof) error
	// ListSince returns proofs with a verification timestamp at or after the
	// given time, for handing to the analytics engine.
	ListSince(ctx context.Context, since time.Time) ([]types.Proof, error)
}

// AnchorRepository persists anchor records, keyed uniquely by batch proof
// hash. Records are created with an empty tx hash and updated once the
// ledger confirms the anchor transaction.
type AnchorRepository interface {
	Store(ctx context.Context, record types.AnchorRecord) error
	SetTxHash(ctx context.Context, proofHash, txHash string, blockNumber *int64) error
	GetByProofHash(ctx context.Context, proofHash string) (types.AnchorRecord, bool, error)
	List(ctx context.Context, limit int) ([]types.AnchorRecord, error)
}
