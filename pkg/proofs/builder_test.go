package proofs

import (
	"testing"
	"time"

	"github.com/dotrep/contribchain/pkg/types"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
}

func sampleEvent() types.RawEvent {
	return types.RawEvent{
		EventId:        "evt-1",
		ProviderLogin:  "alice",
		EventType:      types.EventTypePullRequest,
		RepoIdentifier: "dotrep/core",
		Metadata: types.Metadata{
			Title:  "Add staging queue",
			URL:    "https://example.com/pr/1",
			Merged: true,
			Actor:  "alice",
		},
		Timestamp: time.Date(2025, time.March, 9, 18, 30, 0, 0, time.UTC),
	}
}

func TestBuildStampsHash(t *testing.T) {
	builder := NewBuilder().WithClock(fixedClock)

	proof, err := builder.Build(sampleEvent(), types.VerificationOk())
	require.NoError(t, err)
	require.Len(t, proof.ProofHash, 64)
	require.True(t, proof.Verification.Ok)
	require.Equal(t, fixedClock(), proof.Verification.VerifiedAt)
}

func TestBuildDeterministic(t *testing.T) {
	builder := NewBuilder().WithClock(fixedClock)

	first, err := builder.Build(sampleEvent(), types.VerificationOk())
	require.NoError(t, err)

	second, err := builder.Build(sampleEvent(), types.VerificationOk())
	require.NoError(t, err)

	require.Equal(t, first.ProofHash, second.ProofHash)
}

func TestBuildRejectsFailedOutcome(t *testing.T) {
	builder := NewBuilder().WithClock(fixedClock)

	_, err := builder.Build(sampleEvent(), types.VerificationFailed("contributor not found or not verified"))
	require.ErrorIs(t, err, ErrFailedOutcome)
}

func TestRehashMatches(t *testing.T) {
	builder := NewBuilder().WithClock(fixedClock)

	proof, err := builder.Build(sampleEvent(), types.VerificationOk())
	require.NoError(t, err)

	recomputed, err := Rehash(proof)
	require.NoError(t, err)
	require.Equal(t, proof.ProofHash, recomputed)
}

func TestRehashDetectsTampering(t *testing.T) {
	builder := NewBuilder().WithClock(fixedClock)

	proof, err := builder.Build(sampleEvent(), types.VerificationOk())
	require.NoError(t, err)

	proof.RepoIdentifier = "dotrep/other"

	recomputed, err := Rehash(proof)
	require.NoError(t, err)
	require.NotEqual(t, proof.ProofHash, recomputed)
}

func TestBuildHashIgnoresMetadataExtraOrder(t *testing.T) {
	builder := NewBuilder().WithClock(fixedClock)

	a := sampleEvent()
	a.Metadata.Extra = map[string]any{"labels": []any{"infra", "queue"}, "draft": false}

	b := sampleEvent()
	b.Metadata.Extra = map[string]any{"draft": false, "labels": []any{"infra", "queue"}}

	proofA, err := builder.Build(a, types.VerificationOk())
	require.NoError(t, err)

	proofB, err := builder.Build(b, types.VerificationOk())
	require.NoError(t, err)

	require.Equal(t, proofA.ProofHash, proofB.ProofHash)
}
