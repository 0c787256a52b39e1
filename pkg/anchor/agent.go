// Package anchor implements the periodic drain-and-anchor cycle: staged
// proofs are assembled into a batch, pinned to the content-addressed store
// and, best-effort, anchored on an external ledger.
package anchor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/cometbft/cometbft/crypto/merkle"
	"github.com/dotrep/contribchain/internal/config"
	"github.com/dotrep/contribchain/internal/metrics"
	"github.com/dotrep/contribchain/pkg/canonical"
	"github.com/dotrep/contribchain/pkg/contentstore"
	"github.com/dotrep/contribchain/pkg/ledger"
	"github.com/dotrep/contribchain/pkg/queue"
	"github.com/dotrep/contribchain/pkg/repository"
	"github.com/dotrep/contribchain/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Agent drains the staging queue on a fixed interval. It runs as a single
// goroutine, so anchor cycles never overlap: a tick that fires while a cycle
// is still running is simply absorbed by the ticker. Cycles are not
// cancellable mid-flight; partial anchors are unacceptable.
type Agent struct {
	config       config.Config
	logger       *zap.Logger
	staging      queue.StagingQueue
	contentStore contentstore.Store
	// ledgerClient is nil when no ledger endpoint is configured; chain
	// anchoring is then skipped entirely without error.
	ledgerClient ledger.Client
	repository   repository.Repository

	now func() time.Time
}

func NewAgent(
	cfg config.Config,
	logger *zap.Logger,
	staging queue.StagingQueue,
	contentStore contentstore.Store,
	ledgerClient ledger.Client,
	repo repository.Repository,
) *Agent {
	return &Agent{
		config:       cfg,
		logger:       logger,
		staging:      staging,
		contentStore: contentStore,
		ledgerClient: ledgerClient,
		repository:   repo,
		now:          time.Now,
	}
}

func (a *Agent) StartLoop(shutdownCh chan chan error) {
	ticker := time.NewTicker(a.config.Anchor.Interval.Duration())
	defer ticker.Stop()

	if a.config.Anchor.RunAtStartup {
		if err := a.RunCycle(); err != nil {
			a.logger.Error("Failed to run anchor cycle at startup", zap.Error(err))
		}
	}

	for {
		select {
		case ch := <-shutdownCh:
			ch <- nil
			return
		case <-ticker.C:
			if err := a.RunCycle(); err != nil {
				a.logger.Error("Failed to run anchor cycle", zap.Error(err))
			}
		}
	}
}

// RunCycle executes one drain-and-anchor cycle. The content-store pin is the
// durability boundary: any failure before the anchor record is persisted
// leaves the batch staged for the next interval, and only a fully-anchored
// batch is removed from staging.
func (a *Agent) RunCycle() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.Anchor.CycleTimeout.Duration())
	defer cancel()

	staged, err := a.staging.Peek(ctx, a.config.Anchor.BatchSize)
	if err != nil {
		return err
	}

	if len(staged) == 0 {
		a.logger.Debug("No proofs staged, skipping anchor cycle")
		return nil
	}

	batchProofs := make([]types.Proof, len(staged))
	for i, entry := range staged {
		batchProofs[i] = entry.Proof
	}

	batch, err := a.assembleBatch(batchProofs)
	if err != nil {
		return err
	}

	payload, err := canonical.Marshal(batch)
	if err != nil {
		return err
	}

	// The batch proof hash is the on-chain anchor reference, distinct from
	// the individual proof hashes and from the nonce-mixed batch id.
	batchHash := canonical.HashBytes(payload)

	merkleRoot, err := merkleRootOf(batchProofs)
	if err != nil {
		return err
	}

	cid, err := a.contentStore.Pin(ctx, payload)
	if err != nil {
		metrics.PinFailures.Inc()
		a.logger.Error(
			"Failed to pin batch, leaving proofs staged",
			zap.Error(err),
			zap.String("batchId", batch.BatchId),
			zap.Int("proofCount", len(batchProofs)),
		)
		return err
	}

	record := types.AnchorRecord{
		ProofHash:         batchHash,
		MerkleRoot:        merkleRoot,
		ContentStoreCid:   cid,
		ContributionCount: len(batchProofs),
		CreatedAt:         a.now().UTC(),
	}

	if err := a.repository.Anchors().Store(ctx, record); err != nil {
		return err
	}

	a.logger.Info(
		"Batch pinned to content store",
		zap.String("batchId", batch.BatchId),
		zap.String("proofHash", batchHash),
		zap.String("cid", cid),
		zap.Int("proofCount", len(batchProofs)),
	)

	a.submitToLedger(ctx, batch, batchHash, cid, len(batchProofs))

	hashes := make([]string, len(batchProofs))
	for i, proof := range batchProofs {
		hashes[i] = proof.ProofHash
	}

	if err := a.staging.Remove(ctx, hashes); err != nil {
		return err
	}

	metrics.BatchesAnchored.Inc()
	if remaining, err := a.staging.Count(ctx); err == nil {
		metrics.StagedProofGauge.Set(float64(remaining))
	}

	return nil
}

// assembleBatch stamps the proof set with a batch id derived from the proofs
// plus a creation-time nonce. Identical proof sets anchored at different
// times intentionally produce distinct batch ids; only the batch proof hash
// and the CID are content-addressed.
func (a *Agent) assembleBatch(batchProofs []types.Proof) (types.Batch, error) {
	encoded, err := json.Marshal(batchProofs)
	if err != nil {
		return types.Batch{}, err
	}

	timestamp := a.now().UTC()
	nonce := timestamp.Format(time.RFC3339Nano) + uuid.NewString()
	batchId := canonical.HashBytes(append(encoded, []byte(nonce)...))

	return types.Batch{
		BatchId:        batchId,
		BatchTimestamp: timestamp,
		Proofs:         batchProofs,
	}, nil
}

// submitToLedger is best-effort: content anchoring already succeeded, so a
// failed or absent ledger leaves the record chain-pending rather than
// failing the batch.
func (a *Agent) submitToLedger(ctx context.Context, batch types.Batch, batchHash, cid string, proofCount int) {
	if a.ledgerClient == nil {
		a.logger.Debug("No ledger configured, leaving batch content-anchored only")
		return
	}

	res, err := a.ledgerClient.Submit(ctx, ledger.AnchorRequest{
		Cid:        cid,
		BatchId:    batch.BatchId,
		ProofHash:  batchHash,
		ProofCount: proofCount,
	})
	if err != nil {
		metrics.LedgerFailures.Inc()
		a.logger.Error(
			"Ledger anchor failed, batch remains chain-pending",
			zap.Error(err),
			zap.String("batchId", batch.BatchId),
		)
		return
	}

	if err := a.repository.Anchors().SetTxHash(ctx, batchHash, res.TxHash, res.BlockNumber); err != nil {
		a.logger.Error("Failed to record anchor tx hash", zap.Error(err), zap.String("txHash", res.TxHash))
		return
	}

	a.logger.Info(
		"Batch anchored on ledger",
		zap.String("batchId", batch.BatchId),
		zap.String("txHash", res.TxHash),
	)
}

// merkleRootOf computes the hex-encoded merkle root over the individual
// proof hashes, in drain order.
func merkleRootOf(batchProofs []types.Proof) (string, error) {
	leaves := make([][]byte, len(batchProofs))
	for i, proof := range batchProofs {
		decoded, err := hex.DecodeString(proof.ProofHash)
		if err != nil {
			return "", err
		}

		leaves[i] = decoded
	}

	return hex.EncodeToString(merkle.HashFromByteSlices(leaves)), nil
}
