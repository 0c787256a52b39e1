package verify

import (
	"context"
	"testing"

	"github.com/dotrep/contribchain/pkg/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeContributorStore struct {
	contributors map[string]types.Contributor
	err          error
}

func (f *fakeContributorStore) FindVerifiedContributor(_ context.Context, login string) (types.Contributor, bool, error) {
	if f.err != nil {
		return types.Contributor{}, false, f.err
	}

	contributor, ok := f.contributors[login]
	return contributor, ok, nil
}

func newVerifier(store *fakeContributorStore) *Verifier {
	return NewVerifier(zap.NewNop(), store)
}

func TestVerifyMissingProviderUser(t *testing.T) {
	verifier := newVerifier(&fakeContributorStore{})

	outcome, err := verifier.Verify(context.Background(), types.RawEvent{})
	require.NoError(t, err)
	require.False(t, outcome.Ok)
	require.Equal(t, ReasonMissingProviderUser, outcome.Reason)
}

func TestVerifyContributorNotFound(t *testing.T) {
	verifier := newVerifier(&fakeContributorStore{contributors: map[string]types.Contributor{}})

	outcome, err := verifier.Verify(context.Background(), types.RawEvent{ProviderLogin: "ghost"})
	require.NoError(t, err)
	require.False(t, outcome.Ok)
	require.Equal(t, ReasonContributorUnknown, outcome.Reason)
}

func TestVerifyContributorNotVerified(t *testing.T) {
	verifier := newVerifier(&fakeContributorStore{contributors: map[string]types.Contributor{
		"alice": {Id: "1", ProviderUsername: "alice", Verified: false},
	}})

	outcome, err := verifier.Verify(context.Background(), types.RawEvent{ProviderLogin: "alice"})
	require.NoError(t, err)
	require.False(t, outcome.Ok)
	require.Equal(t, ReasonContributorUnknown, outcome.Reason)
}

func TestVerifyInvalidCommitHash(t *testing.T) {
	verifier := newVerifier(&fakeContributorStore{contributors: map[string]types.Contributor{
		"alice": {Id: "1", ProviderUsername: "alice", Verified: true},
	}})

	outcome, err := verifier.Verify(context.Background(), types.RawEvent{
		ProviderLogin: "alice",
		EventType:     types.EventTypeCommit,
		CommitHash:    "not-a-hash",
	})
	require.NoError(t, err)
	require.False(t, outcome.Ok)
	require.Equal(t, ReasonInvalidCommitHash, outcome.Reason)
}

func TestVerifyCommitHashCaseInsensitive(t *testing.T) {
	verifier := newVerifier(&fakeContributorStore{contributors: map[string]types.Contributor{
		"alice": {Id: "1", ProviderUsername: "alice", Verified: true},
	}})

	outcome, err := verifier.Verify(context.Background(), types.RawEvent{
		ProviderLogin: "alice",
		EventType:     types.EventTypeCommit,
		CommitHash:    "ABCDEF0123456789abcdef0123456789abcdef01",
	})
	require.NoError(t, err)
	require.True(t, outcome.Ok)
}

func TestVerifyCommitHashOptional(t *testing.T) {
	verifier := newVerifier(&fakeContributorStore{contributors: map[string]types.Contributor{
		"alice": {Id: "1", ProviderUsername: "alice", Verified: true},
	}})

	// A commit event without a hash passes the structural check entirely.
	outcome, err := verifier.Verify(context.Background(), types.RawEvent{
		ProviderLogin: "alice",
		EventType:     types.EventTypeCommit,
	})
	require.NoError(t, err)
	require.True(t, outcome.Ok)
}

func TestVerifyStoreErrorPropagates(t *testing.T) {
	storeErr := errors.New("connection reset")
	verifier := newVerifier(&fakeContributorStore{err: storeErr})

	_, err := verifier.Verify(context.Background(), types.RawEvent{ProviderLogin: "alice"})
	require.ErrorIs(t, err, storeErr)
}
