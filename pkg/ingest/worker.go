// Package ingest runs the bounded-concurrency worker pool that consumes raw
// provider events, verifies them, builds proofs and stages them for
// anchoring.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/dotrep/contribchain/internal/config"
	"github.com/dotrep/contribchain/internal/metrics"
	"github.com/dotrep/contribchain/pkg/broadcast"
	"github.com/dotrep/contribchain/pkg/proofs"
	"github.com/dotrep/contribchain/pkg/queue"
	"github.com/dotrep/contribchain/pkg/repository"
	"github.com/dotrep/contribchain/pkg/types"
	"github.com/dotrep/contribchain/pkg/verify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Worker consumes the ingest queue with a fixed pool of goroutines. Workers
// share nothing except the queues and the external stores; job identity and
// proof idempotency make duplicate deliveries harmless.
type Worker struct {
	config     config.Config
	logger     *zap.Logger
	ingest     queue.IngestQueue
	staging    queue.StagingQueue
	verifier   *verify.Verifier
	builder    *proofs.Builder
	repository repository.Repository
	limiter    *rate.Limiter

	shutdownOrchestrator *broadcast.ErrorWaitChannel
}

func NewWorker(
	cfg config.Config,
	logger *zap.Logger,
	ingest queue.IngestQueue,
	staging queue.StagingQueue,
	verifier *verify.Verifier,
	builder *proofs.Builder,
	repo repository.Repository,
) *Worker {
	return &Worker{
		config:               cfg,
		logger:               logger,
		ingest:               ingest,
		staging:              staging,
		verifier:             verifier,
		builder:              builder,
		repository:           repo,
		limiter:              rate.NewLimiter(rate.Limit(cfg.Ingest.RateLimit), cfg.Ingest.RateLimitBurst),
		shutdownOrchestrator: broadcast.NewErrorWaitChannel(),
	}
}

// Run starts the dispatcher and worker goroutines. It returns immediately;
// use Shutdown for a graceful stop.
func (w *Worker) Run() {
	jobCh := make(chan queue.IngestJobWithId)
	doneCh := make(chan queue.JobId, w.config.Ingest.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.config.Ingest.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runWorker(jobCh, doneCh)
		}()
	}

	go w.dispatch(jobCh, doneCh, &wg)
}

// Shutdown stops intake and waits for in-flight jobs to complete or hit
// their timeout.
func (w *Worker) Shutdown() error {
	w.logger.Info("Shutting down ingest workers")
	return w.shutdownOrchestrator.Await(w.config.Ingest.JobTimeout.Duration() + time.Second*5)
}

// dispatch polls the durable queue and fans jobs out to the pool. Jobs stay
// queued until a worker acks them, so the dispatcher tracks what is in
// flight to avoid handing the same job to two workers.
func (w *Worker) dispatch(jobCh chan<- queue.IngestJobWithId, doneCh <-chan queue.JobId, wg *sync.WaitGroup) {
	shutdownCh := w.shutdownOrchestrator.Subscribe()
	ticker := time.NewTicker(w.config.Ingest.PollInterval.Duration())
	defer ticker.Stop()

	inFlight := make(map[queue.JobId]struct{})

	stop := func(ch chan error) {
		close(jobCh)

		// Workers that finished a job may still be blocked reporting on
		// doneCh, so keep draining it until the pool has fully exited.
		exited := make(chan struct{})
		go func() {
			wg.Wait()
			close(exited)
		}()

		for {
			select {
			case <-doneCh:
			case <-exited:
				ch <- nil
				return
			}
		}
	}

	for {
		select {
		case ch := <-shutdownCh:
			stop(ch)
			return
		case id := <-doneCh:
			delete(inFlight, id)
		case <-ticker.C:
			jobs, err := w.ingest.Pending(context.Background(), nil, w.config.Ingest.Concurrency*4)
			if err != nil {
				w.logger.Error("Failed to poll ingest queue", zap.Error(err))
				continue
			}

			for _, job := range jobs {
				if _, busy := inFlight[job.Id]; busy {
					continue
				}

				select {
				case jobCh <- job:
					inFlight[job.Id] = struct{}{}
				case id := <-doneCh:
					delete(inFlight, id)
				case ch := <-shutdownCh:
					stop(ch)
					return
				}
			}
		}
	}
}

func (w *Worker) runWorker(jobCh <-chan queue.IngestJobWithId, doneCh chan<- queue.JobId) {
	for job := range jobCh {
		w.handle(job)
		doneCh <- job.Id
	}
}

func (w *Worker) handle(job queue.IngestJobWithId) {
	metrics.EventsIngested.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), w.config.Ingest.JobTimeout.Duration())
	defer cancel()

	if err := w.limiter.Wait(ctx); err != nil {
		w.fail(job, err)
		return
	}

	if err := w.process(ctx, job.Event); err != nil {
		w.fail(job, err)
		return
	}

	if err := w.ingest.Ack(context.Background(), job.Id); err != nil {
		w.logger.Error("Failed to ack ingest job", zap.Error(err), zap.String("eventId", job.Event.EventId))
	}
}

// process runs the verify -> build -> persist -> stage pipeline for one
// event. A returned error is treated as transient and retried via the
// queue; verification failures are terminal and are acked away here.
func (w *Worker) process(ctx context.Context, event types.RawEvent) error {
	outcome, err := w.verifier.Verify(ctx, event)
	if err != nil {
		// Store lookup failed: transient, leave the job for retry.
		return err
	}

	if !outcome.Ok {
		// Deterministic rejection. Retrying would produce the same result,
		// so the job is dropped, not dead-lettered.
		metrics.VerificationFailures.WithLabelValues(outcome.Reason).Inc()
		w.logger.Warn(
			"Event failed verification",
			zap.String("eventId", event.EventId),
			zap.String("login", event.ProviderLogin),
			zap.String("reason", outcome.Reason),
		)
		return nil
	}

	proof, err := w.builder.Build(event, outcome)
	if err != nil {
		return err
	}

	// Best-effort side writes: the proof is the source of truth, so a
	// failed contribution or audit write is logged and the job continues.
	if details, ok := outcome.Details.(verify.VerifiedDetails); ok {
		if err := w.repository.Contributions().RecordContribution(ctx, types.Contribution{
			ContributorId: details.ContributorId,
			Type:          event.EventType,
			Repo:          event.RepoIdentifier,
			Title:         event.Metadata.Title,
			URL:           event.Metadata.URL,
			Verified:      true,
			CreatedAt:     proof.Verification.VerifiedAt,
		}); err != nil {
			w.logger.Warn("Failed to record contribution", zap.Error(err), zap.String("eventId", event.EventId))
		}
	}

	if err := w.repository.Proofs().Store(ctx, proof); err != nil {
		w.logger.Warn("Failed to persist proof audit record", zap.Error(err), zap.String("proofHash", proof.ProofHash))
	}

	added, err := w.staging.Push(ctx, proof)
	if err != nil {
		return err
	}

	if added {
		metrics.ProofsStaged.Inc()
	} else {
		metrics.DuplicateProofs.Inc()
		w.logger.Debug("Proof already staged", zap.String("proofHash", proof.ProofHash))
	}

	return nil
}

func (w *Worker) fail(job queue.IngestJobWithId, cause error) {
	deadLettered, err := w.ingest.Fail(context.Background(), job.Id, cause.Error(), w.config.Ingest.MaxAttempts)
	if err != nil {
		w.logger.Error("Failed to record job failure", zap.Error(err), zap.String("eventId", job.Event.EventId))
		return
	}

	if deadLettered {
		metrics.DeadLetteredJobs.Inc()
		w.logger.Error(
			"Ingest job exhausted retries and was dead-lettered",
			zap.String("eventId", job.Event.EventId),
			zap.NamedError("cause", cause),
		)
	} else {
		w.logger.Warn(
			"Ingest job failed, will retry",
			zap.String("eventId", job.Event.EventId),
			zap.NamedError("cause", cause),
		)
	}
}
