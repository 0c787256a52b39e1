package queue

import (
	"context"
	"sync"
	"time"

	"github.com/dotrep/contribchain/pkg/types"
)

// MemoryIngestQueue is an in-memory IngestQueue used in tests and local
// development. Semantics mirror the LevelDB implementation.
type MemoryIngestQueue struct {
	mu      sync.Mutex
	counter JobId
	jobs    []IngestJobWithId
	dead    []IngestJobWithId
}

var _ IngestQueue = (*MemoryIngestQueue)(nil)

func NewMemoryIngestQueue() *MemoryIngestQueue {
	return &MemoryIngestQueue{}
}

func (q *MemoryIngestQueue) Close(ctx context.Context) error {
	return nil
}

func (q *MemoryIngestQueue) Enqueue(ctx context.Context, event types.RawEvent) (JobId, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.counter = nextId(q.counter)
	q.jobs = append(q.jobs, IngestJobWithId{
		IngestJob: IngestJob{
			Event:      event,
			EnqueuedAt: time.Now().UTC(),
		},
		Id: q.counter,
	})

	return q.counter, nil
}

func (q *MemoryIngestQueue) Pending(ctx context.Context, after *JobId, limit int) ([]IngestJobWithId, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []IngestJobWithId
	for _, job := range q.jobs {
		if after != nil && compareIds(job.Id, *after) <= 0 {
			continue
		}

		out = append(out, job)
		if len(out) == limit {
			break
		}
	}

	return out, nil
}

func (q *MemoryIngestQueue) PendingCount(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.jobs), nil
}

func (q *MemoryIngestQueue) Ack(ctx context.Context, id JobId) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, job := range q.jobs {
		if job.Id == id {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return nil
		}
	}

	return nil
}

func (q *MemoryIngestQueue) Fail(ctx context.Context, id JobId, cause string, maxAttempts int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, job := range q.jobs {
		if job.Id != id {
			continue
		}

		job.Attempts++
		job.LastError = cause

		if job.Attempts >= maxAttempts {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			q.dead = append(q.dead, job)
			return true, nil
		}

		q.jobs[i] = job
		return false, nil
	}

	return false, ErrJobNotFound
}

func (q *MemoryIngestQueue) DeadLetters(ctx context.Context, limit int) ([]IngestJobWithId, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if limit > len(q.dead) {
		limit = len(q.dead)
	}

	out := make([]IngestJobWithId, limit)
	copy(out, q.dead[:limit])
	return out, nil
}

// MemoryStagingQueue is an in-memory StagingQueue with the same idempotency
// contract as the LevelDB implementation.
type MemoryStagingQueue struct {
	mu      sync.Mutex
	counter JobId
	staged  []StagedProofWithId
	byHash  map[string]JobId
}

var _ StagingQueue = (*MemoryStagingQueue)(nil)

func NewMemoryStagingQueue() *MemoryStagingQueue {
	return &MemoryStagingQueue{
		byHash: make(map[string]JobId),
	}
}

func (q *MemoryStagingQueue) Close(ctx context.Context) error {
	return nil
}

func (q *MemoryStagingQueue) Push(ctx context.Context, proof types.Proof) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	added := true
	if previous, ok := q.byHash[proof.ProofHash]; ok {
		added = false
		q.removeById(previous)
	}

	q.counter = nextId(q.counter)
	q.staged = append(q.staged, StagedProofWithId{
		StagedProof: StagedProof{
			Proof:    proof,
			StagedAt: time.Now().UTC(),
		},
		Id: q.counter,
	})
	q.byHash[proof.ProofHash] = q.counter

	return added, nil
}

func (q *MemoryStagingQueue) Peek(ctx context.Context, limit int) ([]StagedProofWithId, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if limit > len(q.staged) {
		limit = len(q.staged)
	}

	out := make([]StagedProofWithId, limit)
	copy(out, q.staged[:limit])
	return out, nil
}

func (q *MemoryStagingQueue) Count(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.staged), nil
}

func (q *MemoryStagingQueue) Remove(ctx context.Context, proofHashes []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, hash := range proofHashes {
		id, ok := q.byHash[hash]
		if !ok {
			continue
		}

		delete(q.byHash, hash)
		q.removeById(id)
	}

	return nil
}

func (q *MemoryStagingQueue) removeById(id JobId) {
	for i, entry := range q.staged {
		if entry.Id == id {
			q.staged = append(q.staged[:i], q.staged[i+1:]...)
			return
		}
	}
}

func compareIds(a, b JobId) int {
	for i := 0; i < len(a); i++ {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}

	return 0
}
