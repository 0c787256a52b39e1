package types

import "time"

// VerificationOutcome is the result of running an event through the verifier.
// It is never persisted on its own; it is embedded into the Proof built for
// the event.
type VerificationOutcome struct {
	Ok      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
	Details any    `json:"details,omitempty"`
}

func VerificationOk() VerificationOutcome {
	return VerificationOutcome{Ok: true}
}

func VerificationFailed(reason string) VerificationOutcome {
	return VerificationOutcome{Ok: false, Reason: reason}
}

// Verification is the outcome plus the time at which the event was verified,
// as embedded in a proof payload.
type Verification struct {
	VerificationOutcome
	VerifiedAt time.Time `json:"verified_at"`
}

// Proof is the canonical, hash-stamped record of one verified contribution.
// ProofHash is a SHA-256 over the canonical JSON serialization of the other
// fields, so recomputing it from the same payload always reproduces the same
// value regardless of field order. Proofs are immutable once built.
type Proof struct {
	RawEvent
	Verification Verification `json:"verification"`
	ProofHash    string       `json:"proof_hash"`
}

// Batch is a collected set of proofs submitted together for anchoring.
// BatchId mixes a creation-time nonce into the hash, so identical proof sets
// drained at different times produce distinct batches. Only the batch
// ProofHash and the content-store CID are content-addressed.
type Batch struct {
	BatchId        string    `json:"batch_id"`
	BatchTimestamp time.Time `json:"batch_timestamp"`
	Proofs         []Proof   `json:"proofs"`
}

// AnchorRecord is the durable record of one anchored batch. TxHash and
// BlockNumber are filled in asynchronously once the external ledger confirms
// the anchor transaction; a record with an empty TxHash is a valid
// "content-anchored but not yet chain-anchored" state, not an error.
type AnchorRecord struct {
	ProofHash         string    `json:"proof_hash" bson:"proof_hash"`
	MerkleRoot        string    `json:"merkle_root" bson:"merkle_root"`
	ContentStoreCid   string    `json:"content_store_cid" bson:"content_store_cid"`
	ContributionCount int       `json:"contribution_count" bson:"contribution_count"`
	BlockNumber       *int64    `json:"block_number,omitempty" bson:"block_number,omitempty"`
	TxHash            string    `json:"tx_hash,omitempty" bson:"tx_hash,omitempty"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
}

// Contributor is the external store entity the verifier reads. An event from
// a contributor that is missing or not verified fails verification
// deterministically and is never retried.
type Contributor struct {
	Id                 string  `json:"id" bson:"_id"`
	ProviderUsername   string  `json:"provider_username" bson:"provider_username"`
	Verified           bool    `json:"verified" bson:"verified"`
	ReputationScore    float64 `json:"reputation_score" bson:"reputation_score"`
	TotalContributions int     `json:"total_contributions" bson:"total_contributions"`
}
