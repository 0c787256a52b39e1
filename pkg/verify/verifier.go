// Package verify validates inbound contribution events against identity and
// structural rules before a proof may be built for them.
package verify

import (
	"context"
	"regexp"

	"github.com/dotrep/contribchain/pkg/types"
	"go.uber.org/zap"
)

// ContributorStore is the read-only lookup the verifier performs against the
// external contributor registry.
type ContributorStore interface {
	FindVerifiedContributor(ctx context.Context, login string) (types.Contributor, bool, error)
}

var commitHashPattern = regexp.MustCompile(`(?i)^[a-f0-9]{40}$`)

const (
	ReasonMissingProviderUser = "missing provider user"
	ReasonContributorUnknown  = "contributor not found or not verified"
	ReasonInvalidCommitHash   = "invalid commit hash format"
)

// VerifiedDetails is attached to successful outcomes so downstream steps can
// record the contribution against the right contributor without a second
// registry lookup.
type VerifiedDetails struct {
	ContributorId string `json:"contributor_id"`
}

// Verifier is a pure decision function over an event plus a contributor
// lookup. It is deliberately conservative: the checks here are a placeholder
// for stronger anti-abuse controls (burst and bot detection), which would be
// layered on as additional rules.
type Verifier struct {
	logger       *zap.Logger
	contributors ContributorStore
}

func NewVerifier(logger *zap.Logger, contributors ContributorStore) *Verifier {
	return &Verifier{
		logger:       logger,
		contributors: contributors,
	}
}

// Verify applies the admission rules in order; the first failure wins and
// there is no partial success. The only side effect is the read-only
// contributor lookup, so a store error is surfaced rather than folded into a
// verification failure: it is transient, while failed outcomes are terminal.
func (v *Verifier) Verify(ctx context.Context, event types.RawEvent) (types.VerificationOutcome, error) {
	if event.ProviderLogin == "" {
		return types.VerificationFailed(ReasonMissingProviderUser), nil
	}

	contributor, found, err := v.contributors.FindVerifiedContributor(ctx, event.ProviderLogin)
	if err != nil {
		return types.VerificationOutcome{}, err
	}

	if !found || !contributor.Verified {
		return types.VerificationFailed(ReasonContributorUnknown), nil
	}

	if event.EventType == types.EventTypeCommit && event.CommitHash != "" {
		if !commitHashPattern.MatchString(event.CommitHash) {
			return types.VerificationFailed(ReasonInvalidCommitHash), nil
		}
	}

	outcome := types.VerificationOk()
	outcome.Details = VerifiedDetails{ContributorId: contributor.Id}
	return outcome, nil
}
