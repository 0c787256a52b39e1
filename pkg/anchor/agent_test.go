package anchor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dotrep/contribchain/internal/config"
	"github.com/dotrep/contribchain/pkg/contentstore"
	"github.com/dotrep/contribchain/pkg/ledger"
	"github.com/dotrep/contribchain/pkg/queue"
	"github.com/dotrep/contribchain/pkg/repository"
	"github.com/dotrep/contribchain/pkg/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryAnchorRepository struct {
	mu      sync.Mutex
	records map[string]types.AnchorRecord
}

var _ repository.Repository = (*memoryAnchorRepository)(nil)

func newMemoryAnchorRepository() *memoryAnchorRepository {
	return &memoryAnchorRepository{
		records: make(map[string]types.AnchorRecord),
	}
}

func (m *memoryAnchorRepository) Contributors() repository.ContributorRepository { return nil }

func (m *memoryAnchorRepository) Contributions() repository.ContributionRepository { return nil }

func (m *memoryAnchorRepository) Proofs() repository.ProofRepository { return nil }

func (m *memoryAnchorRepository) Anchors() repository.AnchorRepository { return m }

func (m *memoryAnchorRepository) TestConnection() error { return nil }

func (m *memoryAnchorRepository) Store(_ context.Context, record types.AnchorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.ProofHash]; ok {
		return repository.ErrAnchorAlreadyStored
	}

	m.records[record.ProofHash] = record
	return nil
}

func (m *memoryAnchorRepository) SetTxHash(_ context.Context, proofHash, txHash string, blockNumber *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[proofHash]
	if !ok {
		return repository.ErrAnchorNotFound
	}

	record.TxHash = txHash
	record.BlockNumber = blockNumber
	m.records[proofHash] = record
	return nil
}

func (m *memoryAnchorRepository) GetByProofHash(_ context.Context, proofHash string) (types.AnchorRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[proofHash]
	return record, ok, nil
}

func (m *memoryAnchorRepository) List(_ context.Context, _ int) ([]types.AnchorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.AnchorRecord, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, record)
	}

	return out, nil
}

func (m *memoryAnchorRepository) only(t *testing.T) types.AnchorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	require.Len(t, m.records, 1)
	for _, record := range m.records {
		return record
	}

	panic("unreachable")
}

type stubLedger struct {
	err      error
	response ledger.AnchorResponse
	calls    int
}

func (s *stubLedger) Submit(_ context.Context, _ ledger.AnchorRequest) (ledger.AnchorResponse, error) {
	s.calls++
	if s.err != nil {
		return ledger.AnchorResponse{}, s.err
	}

	return s.response, nil
}

type failingStore struct{}

func (failingStore) Pin(_ context.Context, _ []byte) (string, error) {
	return "", errors.New("pin service unavailable")
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Anchor.Interval = types.MarshalledDuration(time.Minute)
	cfg.Anchor.BatchSize = 100
	cfg.Anchor.CycleTimeout = types.MarshalledDuration(30 * time.Second)
	return cfg
}

func stageProofs(t *testing.T, staging queue.StagingQueue, n int) {
	for i := 0; i < n; i++ {
		hash := fmt.Sprintf("%064d", i)
		_, err := staging.Push(context.Background(), types.Proof{
			RawEvent: types.RawEvent{
				EventId:        fmt.Sprintf("evt-%d", i),
				ProviderLogin:  "alice",
				EventType:      types.EventTypeCommit,
				RepoIdentifier: "dotrep/core",
			},
			ProofHash: hash,
		})
		require.NoError(t, err)
	}
}

func TestRunCycleNoopWhenEmpty(t *testing.T) {
	repo := newMemoryAnchorRepository()
	agent := NewAgent(testConfig(), zap.NewNop(), queue.NewMemoryStagingQueue(), contentstore.NewMemoryStore(), nil, repo)

	require.NoError(t, agent.RunCycle())
	require.Empty(t, repo.records)
}

func TestRunCycleAnchorsWithoutLedger(t *testing.T) {
	repo := newMemoryAnchorRepository()
	staging := queue.NewMemoryStagingQueue()
	stageProofs(t, staging, 3)

	agent := NewAgent(testConfig(), zap.NewNop(), staging, contentstore.NewMemoryStore(), nil, repo)
	require.NoError(t, agent.RunCycle())

	record := repo.only(t)
	require.NotEmpty(t, record.ContentStoreCid)
	require.NotEmpty(t, record.MerkleRoot)
	require.Empty(t, record.TxHash)
	require.Equal(t, 3, record.ContributionCount)

	count, err := staging.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRunCycleLedgerFailureIsNonFatal(t *testing.T) {
	// Scenario: 50 staged proofs, successful pin, failed ledger call. The
	// record must be content-anchored with a null tx hash and the proofs
	// removed from staging.
	repo := newMemoryAnchorRepository()
	staging := queue.NewMemoryStagingQueue()
	stageProofs(t, staging, 50)

	ledgerStub := &stubLedger{err: errors.New("ledger timeout")}
	agent := NewAgent(testConfig(), zap.NewNop(), staging, contentstore.NewMemoryStore(), ledgerStub, repo)

	require.NoError(t, agent.RunCycle())
	require.Equal(t, 1, ledgerStub.calls)

	record := repo.only(t)
	require.NotEmpty(t, record.ContentStoreCid)
	require.Empty(t, record.TxHash)
	require.Equal(t, 50, record.ContributionCount)

	count, err := staging.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRunCycleLedgerSuccessSetsTxHash(t *testing.T) {
	repo := newMemoryAnchorRepository()
	staging := queue.NewMemoryStagingQueue()
	stageProofs(t, staging, 2)

	blockNumber := int64(12345)
	ledgerStub := &stubLedger{response: ledger.AnchorResponse{TxHash: "0xabc", BlockNumber: &blockNumber}}
	agent := NewAgent(testConfig(), zap.NewNop(), staging, contentstore.NewMemoryStore(), ledgerStub, repo)

	require.NoError(t, agent.RunCycle())

	record := repo.only(t)
	require.Equal(t, "0xabc", record.TxHash)
	require.NotNil(t, record.BlockNumber)
	require.Equal(t, blockNumber, *record.BlockNumber)
}

func TestRunCyclePinFailureLeavesProofsStaged(t *testing.T) {
	repo := newMemoryAnchorRepository()
	staging := queue.NewMemoryStagingQueue()
	stageProofs(t, staging, 5)

	agent := NewAgent(testConfig(), zap.NewNop(), staging, failingStore{}, nil, repo)

	require.Error(t, agent.RunCycle())
	require.Empty(t, repo.records)

	count, err := staging.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, count)
}

func TestRunCycleRespectsBatchSize(t *testing.T) {
	cfg := testConfig()
	cfg.Anchor.BatchSize = 10

	repo := newMemoryAnchorRepository()
	staging := queue.NewMemoryStagingQueue()
	stageProofs(t, staging, 25)

	agent := NewAgent(cfg, zap.NewNop(), staging, contentstore.NewMemoryStore(), nil, repo)
	require.NoError(t, agent.RunCycle())

	record := repo.only(t)
	require.Equal(t, 10, record.ContributionCount)

	count, err := staging.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 15, count)
}

func TestBatchIdUniquePerCycle(t *testing.T) {
	agent := NewAgent(testConfig(), zap.NewNop(), queue.NewMemoryStagingQueue(), contentstore.NewMemoryStore(), nil, newMemoryAnchorRepository())

	proofSet := []types.Proof{{ProofHash: fmt.Sprintf("%064d", 1)}}

	first, err := agent.assembleBatch(proofSet)
	require.NoError(t, err)

	second, err := agent.assembleBatch(proofSet)
	require.NoError(t, err)

	// The nonce makes identical proof sets distinguishable across cycles.
	require.NotEqual(t, first.BatchId, second.BatchId)
}
