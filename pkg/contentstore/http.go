package contentstore

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

// HTTPStore pins payloads via an IPFS-style HTTP pinning endpoint. Transient
// failures (network errors, 5xx) are retried with exponential backoff up to
// a bounded attempt count; 4xx responses are terminal.
type HTTPStore struct {
	logger      *zap.Logger
	client      *http.Client
	endpoint    string
	maxAttempts uint64
}

var _ Store = (*HTTPStore)(nil)

type pinResponse struct {
	Cid string `json:"cid"`
}

func NewHTTPStore(logger *zap.Logger, endpoint string, timeout time.Duration, maxAttempts int) *HTTPStore {
	return &HTTPStore{
		logger: logger,
		client: &http.Client{
			Timeout: timeout,
		},
		endpoint:    endpoint,
		maxAttempts: uint64(maxAttempts),
	}
}

func (s *HTTPStore) Pin(ctx context.Context, payload []byte) (string, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxAttempts-1),
		ctx,
	)

	return backoff.RetryWithData(func() (string, error) {
		cid, err := s.pinOnce(ctx, payload)
		if err != nil {
			s.logger.Warn("Pin attempt failed", zap.Error(err))
		}

		return cid, err
	}, policy)
}

func (s *HTTPStore) pinOnce(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	res, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}

	if res.StatusCode >= 500 {
		return "", fmt.Errorf("content store returned status %d: %s", res.StatusCode, string(body))
	}

	if res.StatusCode >= 400 {
		// Client errors will not succeed on retry.
		return "", backoff.Permanent(fmt.Errorf("content store rejected pin with status %d: %s", res.StatusCode, string(body)))
	}

	var decoded pinResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to decode pin response: %w", err))
	}

	if decoded.Cid == "" {
		return "", backoff.Permanent(fmt.Errorf("content store returned empty CID"))
	}

	return decoded.Cid, nil
}
