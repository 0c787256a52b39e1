// Package ledger is the optional external anchor service client. When no
// ledger endpoint is configured the pipeline runs without it: batches stay in
// the durable "content-anchored but not yet chain-anchored" state.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// AnchorRequest is the payload submitted to the anchor service.
type AnchorRequest struct {
	Cid        string `json:"cid"`
	BatchId    string `json:"batch_id"`
	ProofHash  string `json:"proof_hash"`
	ProofCount int    `json:"proof_count"`
}

// AnchorResponse carries the transaction reference once the ledger accepts
// the anchor. BlockNumber may be absent if the transaction has not been
// included yet.
type AnchorResponse struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber *int64 `json:"block_number,omitempty"`
}

// Client submits batch anchors to an external ledger service.
type Client interface {
	Submit(ctx context.Context, req AnchorRequest) (AnchorResponse, error)
}

// HTTPClient is the HTTP implementation of the anchor service client.
type HTTPClient struct {
	logger      *zap.Logger
	client      *http.Client
	endpoint    string
	maxAttempts uint64
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(logger *zap.Logger, endpoint string, timeout time.Duration, maxAttempts int) *HTTPClient {
	return &HTTPClient{
		logger: logger,
		client: &http.Client{
			Timeout: timeout,
		},
		endpoint:    endpoint,
		maxAttempts: uint64(maxAttempts),
	}
}

func (c *HTTPClient) Submit(ctx context.Context, req AnchorRequest) (AnchorResponse, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxAttempts-1),
		ctx,
	)

	return backoff.RetryWithData(func() (AnchorResponse, error) {
		res, err := c.submitOnce(ctx, req)
		if err != nil {
			c.logger.Warn("Anchor submission attempt failed", zap.Error(err), zap.String("batchId", req.BatchId))
		}

		return res, err
	}, policy)
}

func (c *HTTPClient) submitOnce(ctx context.Context, req AnchorRequest) (AnchorResponse, error) {
	encoded, err := json.Marshal(req)
	if err != nil {
		return AnchorResponse{}, backoff.Permanent(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return AnchorResponse{}, backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return AnchorResponse{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return AnchorResponse{}, err
	}

	if res.StatusCode >= 500 {
		return AnchorResponse{}, fmt.Errorf("anchor service returned status %d: %s", res.StatusCode, string(body))
	}

	if res.StatusCode >= 400 {
		return AnchorResponse{}, backoff.Permanent(fmt.Errorf("anchor service rejected batch with status %d: %s", res.StatusCode, string(body)))
	}

	var decoded AnchorResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return AnchorResponse{}, backoff.Permanent(fmt.Errorf("failed to decode anchor response: %w", err))
	}

	return decoded, nil
}
