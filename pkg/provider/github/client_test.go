package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dotrep/contribchain/internal/config"
	"github.com/dotrep/contribchain/pkg/queue"
	"github.com/dotrep/contribchain/pkg/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const contributionsFixture = `{
  "data": {
    "user": {
      "contributionsCollection": {
        "commitContributionsByRepository": [
          {
            "repository": {"nameWithOwner": "dotrep/core"},
            "contributions": {
              "nodes": [
                {"occurredAt": "2024-05-13T09:00:00Z", "commitCount": 3}
              ]
            }
          }
        ],
        "pullRequestContributions": {
          "nodes": [
            {
              "occurredAt": "2024-05-14T10:00:00Z",
              "pullRequest": {
                "id": "PR_kwDO1",
                "title": "Add retry policy",
                "url": "https://github.com/dotrep/core/pull/42",
                "merged": true,
                "additions": 120,
                "deletions": 14,
                "baseRepository": {"nameWithOwner": "dotrep/core"},
                "reviews": {"totalCount": 2},
                "author": {"login": "alice"}
              }
            }
          ]
        }
      }
    }
  }
}`

func testClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	cfg := config.GitHub{
		Token:       "test-token",
		Endpoint:    endpoint,
		Timeout:     types.MarshalledDuration(5 * time.Second),
		MaxAttempts: 3,
	}
	return NewClient(zap.NewNop(), cfg)
}

func TestFetchContributionsMapsEvents(t *testing.T) {
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")

		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "alice", req.Variables["login"])

		w.Write([]byte(contributionsFixture))
	}))
	defer server.Close()

	events, err := testClient(t, server.URL).FetchContributions(context.Background(), "alice", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, "Bearer test-token", authHeader)
	require.Len(t, events, 2)

	commit := events[0]
	require.Equal(t, types.EventTypeCommit, commit.EventType)
	require.Equal(t, "dotrep/core", commit.RepoIdentifier)
	require.Equal(t, "alice", commit.Metadata.Actor)
	require.Equal(t, 3, commit.Metadata.Extra["commit_count"])

	pr := events[1]
	require.Equal(t, types.EventTypePullRequest, pr.EventType)
	require.Equal(t, "PR_kwDO1", pr.EventId)
	require.Equal(t, "Add retry policy", pr.Metadata.Title)
	require.Equal(t, true, pr.Metadata.Merged)
	require.Equal(t, 2, pr.Metadata.ReviewCount)
	require.Equal(t, "alice", pr.Metadata.ActorName())
}

func TestFetchContributionsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		w.Write([]byte(contributionsFixture))
	}))
	defer server.Close()

	events, err := testClient(t, server.URL).FetchContributions(context.Background(), "alice", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int32(2), calls.Load())
}

func TestFetchContributionsClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient(t, server.URL).FetchContributions(context.Background(), "alice", time.Now().Add(-time.Hour))
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestFetchContributionsGraphQLErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"errors": [{"message": "rate limited"}]}`))
	}))
	defer server.Close()

	_, err := testClient(t, server.URL).FetchContributions(context.Background(), "alice", time.Now().Add(-time.Hour))
	require.ErrorContains(t, err, "rate limited")
	require.Equal(t, int32(1), calls.Load())
}

func TestFetchContributionsUnknownUserIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"user": null}}`))
	}))
	defer server.Close()

	_, err := testClient(t, server.URL).FetchContributions(context.Background(), "ghost", time.Now().Add(-time.Hour))
	require.ErrorContains(t, err, "ghost")
}

func TestPollerEnqueuesFetchedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(contributionsFixture))
	}))
	defer server.Close()

	cfg := config.GitHub{
		Token:        "test-token",
		Endpoint:     server.URL,
		Logins:       []string{"alice"},
		PollInterval: types.MarshalledDuration(time.Minute),
		Timeout:      types.MarshalledDuration(5 * time.Second),
		MaxAttempts:  3,
	}

	ingest := queue.NewMemoryIngestQueue()
	poller := NewPoller(cfg, zap.NewNop(), NewClient(zap.NewNop(), cfg), ingest)
	poller.poll()

	count, err := ingest.PendingCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
