// Package queue provides the pipeline's durable queues: the ingest queue of
// raw provider events and the staging queue of proofs awaiting batch
// anchoring. Both are at-least-once; staging is idempotent on proof hash.
package queue

import (
	"context"
	"time"

	"github.com/dotrep/contribchain/pkg/types"
	"github.com/pkg/errors"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrProofNotFound = errors.New("staged proof not found")
)

// IngestJob is one raw event awaiting processing, together with its retry
// bookkeeping.
type IngestJob struct {
	Event      types.RawEvent `json:"event"`
	Attempts   int            `json:"attempts"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	LastError  string         `json:"last_error,omitempty"`
}

// JobId identifies a job within the queue. Ids are assigned from a
// monotonically incrementing counter, so iteration order is arrival order.
type JobId = [16]byte

type IngestJobWithId struct {
	IngestJob
	Id JobId
}

// IngestQueue is a durable, at-least-once queue of raw events. Jobs are read
// non-destructively and only removed on Ack; Fail re-queues a job with an
// incremented attempt count until maxAttempts is reached, at which point the
// job is moved to the dead-letter space for manual inspection. Dead-lettered
// jobs are never silently dropped.
type IngestQueue interface {
	Enqueue(ctx context.Context, event types.RawEvent) (JobId, error)
	// Pending returns up to limit jobs ordered oldest first, starting after
	// the given cursor (nil for the beginning). Jobs remain queued.
	Pending(ctx context.Context, after *JobId, limit int) ([]IngestJobWithId, error)
	PendingCount(ctx context.Context) (int, error)
	Ack(ctx context.Context, id JobId) error
	// Fail records a processing failure. It returns true if the job was
	// moved to the dead-letter space.
	Fail(ctx context.Context, id JobId, cause string, maxAttempts int) (bool, error)
	DeadLetters(ctx context.Context, limit int) ([]IngestJobWithId, error)
	Close(ctx context.Context) error
}

// StagedProof is a proof awaiting anchoring, keyed by its internal queue id.
type StagedProof struct {
	Proof    types.Proof `json:"proof"`
	StagedAt time.Time   `json:"staged_at"`
}

type StagedProofWithId struct {
	StagedProof
	Id JobId
}

// StagingQueue holds proofs awaiting batch anchoring. Push is idempotent on
// proof hash: staging the same proof twice results in at most one staged
// entry. Peek is non-destructive; the anchor service removes proofs only
// after a batch has been durably anchored.
type StagingQueue interface {
	// Push stages a proof. It returns false if a proof with the same hash
	// was already staged (the existing entry is replaced, not duplicated).
	Push(ctx context.Context, proof types.Proof) (bool, error)
	Peek(ctx context.Context, limit int) ([]StagedProofWithId, error)
	Count(ctx context.Context) (int, error)
	Remove(ctx context.Context, proofHashes []string) error
	Close(ctx context.Context) error
}
