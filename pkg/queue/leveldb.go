package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dotrep/contribchain/pkg/types"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	keyJobIdCounter    = "id_counter_jobs"
	keyPrefixJobs      = "jobs_"
	keyPrefixDead      = "dead_"
	keyStagedIdCounter = "id_counter_staged"
	keyPrefixStaged    = "staged_"
	keyPrefixHashIndex = "index_proof_hash_"
)

// LevelDBIngestQueue is a durable ingest queue backed by a local LevelDB
// database. Jobs are keyed by an incrementing 16-byte counter, so prefix
// iteration yields arrival order.
type LevelDBIngestQueue struct {
	db *leveldb.DB
}

var _ IngestQueue = (*LevelDBIngestQueue)(nil)

func NewLevelDBIngestQueue(path string) (*LevelDBIngestQueue, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}

	return &LevelDBIngestQueue{db: db}, nil
}

func (q *LevelDBIngestQueue) Close(ctx context.Context) error {
	return q.db.Close()
}

func (q *LevelDBIngestQueue) Enqueue(ctx context.Context, event types.RawEvent) (JobId, error) {
	job := IngestJob{
		Event:      event,
		EnqueuedAt: time.Now().UTC(),
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		return JobId{}, err
	}

	return withIncrementingId(q.db, keyJobIdCounter, func(tx *leveldb.Transaction, id JobId) error {
		return tx.Put(jobKey(keyPrefixJobs, id), encoded, nil)
	})
}

func (q *LevelDBIngestQueue) Pending(ctx context.Context, after *JobId, limit int) ([]IngestJobWithId, error) {
	return scanJobs(q.db, keyPrefixJobs, after, limit)
}

func (q *LevelDBIngestQueue) PendingCount(ctx context.Context) (int, error) {
	return countPrefix(q.db, keyPrefixJobs)
}

func (q *LevelDBIngestQueue) Ack(ctx context.Context, id JobId) error {
	return q.db.Delete(jobKey(keyPrefixJobs, id), nil)
}

func (q *LevelDBIngestQueue) Fail(ctx context.Context, id JobId, cause string, maxAttempts int) (bool, error) {
	deadLettered := false
	err := withTransaction(q.db, func(tx *leveldb.Transaction) error {
		key := jobKey(keyPrefixJobs, id)
		value, err := tx.Get(key, nil)
		if err != nil {
			if errors.Is(err, leveldb.ErrNotFound) {
				return ErrJobNotFound
			}

			return err
		}

		var job IngestJob
		if err := json.Unmarshal(value, &job); err != nil {
			return err
		}

		job.Attempts++
		job.LastError = cause

		encoded, err := json.Marshal(job)
		if err != nil {
			return err
		}

		if job.Attempts >= maxAttempts {
			deadLettered = true
			if err := tx.Delete(key, nil); err != nil {
				return err
			}

			return tx.Put(jobKey(keyPrefixDead, id), encoded, nil)
		}

		return tx.Put(key, encoded, nil)
	})

	return deadLettered, err
}

func (q *LevelDBIngestQueue) DeadLetters(ctx context.Context, limit int) ([]IngestJobWithId, error) {
	return scanJobs(q.db, keyPrefixDead, nil, limit)
}

// LevelDBStagingQueue stages proofs for anchoring, with a proof-hash index
// providing idempotent pushes.
type LevelDBStagingQueue struct {
	db *leveldb.DB
}

var _ StagingQueue = (*LevelDBStagingQueue)(nil)

func NewLevelDBStagingQueue(path string) (*LevelDBStagingQueue, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}

	return &LevelDBStagingQueue{db: db}, nil
}

func (q *LevelDBStagingQueue) Close(ctx context.Context) error {
	return q.db.Close()
}

func (q *LevelDBStagingQueue) Push(ctx context.Context, proof types.Proof) (bool, error) {
	staged := StagedProof{
		Proof:    proof,
		StagedAt: time.Now().UTC(),
	}

	encoded, err := json.Marshal(staged)
	if err != nil {
		return false, err
	}

	added := true
	_, err = withIncrementingId(q.db, keyStagedIdCounter, func(tx *leveldb.Transaction, id JobId) error {
		indexKey := append(bz(keyPrefixHashIndex), bz(proof.ProofHash)...)

		// Duplicate submissions replace the previous entry rather than
		// staging a second copy.
		previousId, err := tx.Get(indexKey, nil)
		if err == nil {
			added = false
			if err := tx.Delete(append(bz(keyPrefixStaged), previousId...), nil); err != nil {
				return err
			}
		} else if !errors.Is(err, leveldb.ErrNotFound) {
			return err
		}

		if err := tx.Put(indexKey, id[:], nil); err != nil {
			return err
		}

		return tx.Put(jobKey(keyPrefixStaged, id), encoded, nil)
	})

	if err != nil {
		return false, err
	}

	return added, nil
}

func (q *LevelDBStagingQueue) Peek(ctx context.Context, limit int) ([]StagedProofWithId, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}

	it := q.db.NewIterator(util.BytesPrefix(bz(keyPrefixStaged)), nil)
	defer it.Release()

	var staged []StagedProofWithId
	for it.Next() && len(staged) < limit {
		id, err := idFromKey(it.Key(), keyPrefixStaged)
		if err != nil {
			return nil, err
		}

		value := make([]byte, len(it.Value()))
		copy(value, it.Value())

		var entry StagedProof
		if err := json.Unmarshal(value, &entry); err != nil {
			return nil, err
		}

		staged = append(staged, StagedProofWithId{
			StagedProof: entry,
			Id:          id,
		})
	}

	return staged, it.Error()
}

func (q *LevelDBStagingQueue) Count(ctx context.Context) (int, error) {
	return countPrefix(q.db, keyPrefixHashIndex)
}

func (q *LevelDBStagingQueue) Remove(ctx context.Context, proofHashes []string) error {
	return withTransaction(q.db, func(tx *leveldb.Transaction) error {
		for _, hash := range proofHashes {
			indexKey := append(bz(keyPrefixHashIndex), bz(hash)...)
			id, err := tx.Get(indexKey, nil)
			if err != nil {
				if errors.Is(err, leveldb.ErrNotFound) {
					// Already removed; at-least-once delivery makes
					// duplicate removals normal.
					continue
				}

				return err
			}

			if err := tx.Delete(indexKey, nil); err != nil {
				return err
			}

			if err := tx.Delete(append(bz(keyPrefixStaged), id...), nil); err != nil && !errors.Is(err, leveldb.ErrNotFound) {
				return err
			}
		}

		return nil
	})
}

func scanJobs(db *leveldb.DB, prefix string, after *JobId, limit int) ([]IngestJobWithId, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}

	it := db.NewIterator(util.BytesPrefix(bz(prefix)), nil)
	defer it.Release()

	ok := it.First()
	if after != nil {
		// Seek positions on the cursor itself when it still exists, or on
		// the first key past it when it has been acked. Only step forward in
		// the former case so the scan resumes strictly after the cursor
		// without dropping the landed entry.
		ok = it.Seek(jobKey(prefix, *after))
		if ok {
			id, err := idFromKey(it.Key(), prefix)
			if err != nil {
				return nil, err
			}

			if id == *after {
				ok = it.Next()
			}
		}
	}

	var jobs []IngestJobWithId
	for ; ok && len(jobs) < limit; ok = it.Next() {
		id, err := idFromKey(it.Key(), prefix)
		if err != nil {
			return nil, err
		}

		value := make([]byte, len(it.Value()))
		copy(value, it.Value())

		var job IngestJob
		if err := json.Unmarshal(value, &job); err != nil {
			return nil, err
		}

		jobs = append(jobs, IngestJobWithId{
			IngestJob: job,
			Id:        id,
		})
	}

	return jobs, it.Error()
}

func countPrefix(db *leveldb.DB, prefix string) (int, error) {
	it := db.NewIterator(util.BytesPrefix(bz(prefix)), nil)
	defer it.Release()

	count := 0
	for it.Next() {
		count++
	}

	return count, it.Error()
}

func withIncrementingId(db *leveldb.DB, counterKey string, f func(tx *leveldb.Transaction, id JobId) error) (JobId, error) {
	var id JobId
	if err := withTransaction(db, func(tx *leveldb.Transaction) error {
		counterBytes, err := tx.Get(bz(counterKey), nil)
		if err == nil {
			if len(counterBytes) != 16 {
				return fmt.Errorf("invalid counter length: %d", len(counterBytes))
			}

			id = JobId(counterBytes)
		} else if !errors.Is(err, leveldb.ErrNotFound) {
			return err
		}

		id = nextId(id)

		if err := tx.Put(bz(counterKey), id[:], nil); err != nil {
			return err
		}

		return f(tx, id)
	}); err != nil {
		return JobId{}, err
	}

	return id, nil
}

func withTransaction(db *leveldb.DB, f func(tx *leveldb.Transaction) error) error {
	tx, err := db.OpenTransaction()
	if err != nil {
		return err
	}

	defer tx.Discard()

	if err := f(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func jobKey(prefix string, id JobId) []byte {
	return append(bz(prefix), id[:]...)
}

func idFromKey(key []byte, prefix string) (JobId, error) {
	raw := key[len(prefix):]
	if len(raw) != 16 {
		return JobId{}, fmt.Errorf("invalid key length %d for prefix %s", len(raw), prefix)
	}

	return JobId(raw), nil
}

// nextId increments the 16-byte counter with carry. Keys compare
// lexicographically, so assignment order equals iteration order.
func nextId(current JobId) JobId {
	next := current
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			break
		}
	}

	return next
}

func bz(s string) []byte {
	return []byte(s)
}
