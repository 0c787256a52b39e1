// Package github polls the GitHub GraphQL API for contribution activity and
// feeds it onto the ingest queue as raw events. The whole package is optional
// wiring: without a token the pipeline still accepts externally-enqueued
// events.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dotrep/contribchain/internal/config"
	"github.com/dotrep/contribchain/pkg/types"
	"go.uber.org/zap"
)

// contributionsQuery pulls a user's recent commit and pull request activity
// in a single round trip.
const contributionsQuery = `query($login: String!, $from: DateTime!) {
  user(login: $login) {
    contributionsCollection(from: $from) {
      commitContributionsByRepository(maxRepositories: 25) {
        repository { nameWithOwner }
        contributions(first: 50) {
          nodes { occurredAt commitCount }
        }
      }
      pullRequestContributions(first: 50) {
        nodes {
          occurredAt
          pullRequest {
            id
            title
            url
            merged
            additions
            deletions
            baseRepository { nameWithOwner }
            reviews { totalCount }
            author { login }
          }
        }
      }
    }
  }
}`

type Client struct {
	logger      *zap.Logger
	client      *http.Client
	endpoint    string
	token       string
	maxAttempts uint64
}

func NewClient(logger *zap.Logger, cfg config.GitHub) *Client {
	return &Client{
		logger: logger,
		client: &http.Client{
			Timeout: cfg.Timeout.Duration(),
		},
		endpoint:    cfg.Endpoint,
		token:       cfg.Token,
		maxAttempts: uint64(cfg.MaxAttempts),
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type contributionsResponse struct {
	Data struct {
		User *struct {
			ContributionsCollection struct {
				CommitContributionsByRepository []struct {
					Repository struct {
						NameWithOwner string `json:"nameWithOwner"`
					} `json:"repository"`
					Contributions struct {
						Nodes []struct {
							OccurredAt  time.Time `json:"occurredAt"`
							CommitCount int       `json:"commitCount"`
						} `json:"nodes"`
					} `json:"contributions"`
				} `json:"commitContributionsByRepository"`
				PullRequestContributions struct {
					Nodes []struct {
						OccurredAt  time.Time `json:"occurredAt"`
						PullRequest struct {
							Id             string `json:"id"`
							Title          string `json:"title"`
							URL            string `json:"url"`
							Merged         bool   `json:"merged"`
							Additions      int    `json:"additions"`
							Deletions      int    `json:"deletions"`
							BaseRepository struct {
								NameWithOwner string `json:"nameWithOwner"`
							} `json:"baseRepository"`
							Reviews struct {
								TotalCount int `json:"totalCount"`
							} `json:"reviews"`
							Author struct {
								Login string `json:"login"`
							} `json:"author"`
						} `json:"pullRequest"`
					} `json:"nodes"`
				} `json:"pullRequestContributions"`
			} `json:"contributionsCollection"`
		} `json:"user"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// FetchContributions returns the raw events for a user's activity since the
// given time. Network errors and 5xx responses are retried with exponential
// backoff up to the configured attempt count; 4xx responses and GraphQL
// errors are terminal.
func (c *Client) FetchContributions(ctx context.Context, login string, since time.Time) ([]types.RawEvent, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxAttempts-1),
		ctx,
	)

	return backoff.RetryWithData(func() ([]types.RawEvent, error) {
		events, err := c.fetchOnce(ctx, login, since)
		if err != nil {
			c.logger.Warn("Contribution fetch attempt failed",
				zap.String("login", login), zap.Error(err))
		}

		return events, err
	}, policy)
}

func (c *Client) fetchOnce(ctx context.Context, login string, since time.Time) ([]types.RawEvent, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: contributionsQuery,
		Variables: map[string]any{
			"login": login,
			"from":  since.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	if res.StatusCode >= 500 {
		return nil, fmt.Errorf("github returned status %d: %s", res.StatusCode, string(resBody))
	}

	if res.StatusCode >= 400 {
		// Auth and validation failures will not succeed on retry.
		return nil, backoff.Permanent(fmt.Errorf("github rejected request with status %d: %s", res.StatusCode, string(resBody)))
	}

	var decoded contributionsResponse
	if err := json.Unmarshal(resBody, &decoded); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode github response: %w", err))
	}

	if len(decoded.Errors) > 0 {
		return nil, backoff.Permanent(fmt.Errorf("github graphql error: %s", decoded.Errors[0].Message))
	}

	if decoded.Data.User == nil {
		return nil, backoff.Permanent(fmt.Errorf("github user %q not found", login))
	}

	return mapEvents(login, decoded), nil
}

func mapEvents(login string, res contributionsResponse) []types.RawEvent {
	collection := res.Data.User.ContributionsCollection

	var events []types.RawEvent
	for _, byRepo := range collection.CommitContributionsByRepository {
		for _, node := range byRepo.Contributions.Nodes {
			events = append(events, types.RawEvent{
				EventId:        fmt.Sprintf("commit:%s:%s:%s", login, byRepo.Repository.NameWithOwner, node.OccurredAt.UTC().Format(time.RFC3339)),
				ProviderLogin:  login,
				EventType:      types.EventTypeCommit,
				RepoIdentifier: byRepo.Repository.NameWithOwner,
				Metadata: types.Metadata{
					Actor: login,
					Extra: map[string]any{"commit_count": node.CommitCount},
				},
				Timestamp: node.OccurredAt.UTC(),
			})
		}
	}

	for _, node := range collection.PullRequestContributions.Nodes {
		pr := node.PullRequest
		events = append(events, types.RawEvent{
			EventId:        pr.Id,
			ProviderLogin:  login,
			EventType:      types.EventTypePullRequest,
			RepoIdentifier: pr.BaseRepository.NameWithOwner,
			Metadata: types.Metadata{
				Title:       pr.Title,
				URL:         pr.URL,
				Merged:      pr.Merged,
				Additions:   pr.Additions,
				Deletions:   pr.Deletions,
				ReviewCount: pr.Reviews.TotalCount,
				Actor:       pr.Author.Login,
			},
			Timestamp: node.OccurredAt.UTC(),
		})
	}

	return events
}
