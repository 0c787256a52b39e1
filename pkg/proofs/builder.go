// Package proofs turns verified events into immutable, hash-stamped proof
// records.
package proofs

import (
	"time"

	"github.com/dotrep/contribchain/pkg/canonical"
	"github.com/dotrep/contribchain/pkg/types"
	"github.com/pkg/errors"
)

var ErrFailedOutcome = errors.New("refusing to build a proof for a failed verification outcome")

// Builder assembles proofs from verified events. Pure except for the
// verified-at timestamp read, which is injectable for tests.
type Builder struct {
	now func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// WithClock replaces the time source. Used in tests to make built proofs
// reproducible.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// payload is the hashed portion of a proof: everything except the hash
// itself.
type payload struct {
	types.RawEvent
	Verification types.Verification `json:"verification"`
}

// Build assembles the proof payload, canonicalizes it and stamps it with the
// SHA-256 of its canonical JSON form. Callers must discard failed
// verifications rather than building proofs for them; proofs only exist for
// admitted events.
func (b *Builder) Build(event types.RawEvent, outcome types.VerificationOutcome) (types.Proof, error) {
	if !outcome.Ok {
		return types.Proof{}, ErrFailedOutcome
	}

	verification := types.Verification{
		VerificationOutcome: outcome,
		VerifiedAt:          b.now().UTC(),
	}

	hash, err := canonical.Hash(payload{
		RawEvent:     event,
		Verification: verification,
	})
	if err != nil {
		return types.Proof{}, errors.Wrap(err, "failed to hash proof payload")
	}

	return types.Proof{
		RawEvent:     event,
		Verification: verification,
		ProofHash:    hash,
	}, nil
}

// Rehash recomputes the proof hash from a proof's payload. A mismatch against
// the stored hash indicates the record was altered after it was built.
func Rehash(proof types.Proof) (string, error) {
	return canonical.Hash(payload{
		RawEvent:     proof.RawEvent,
		Verification: proof.Verification,
	})
}
