package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contribchain_events_ingested_total",
		Help: "Total number of raw events pulled from the ingest queue.",
	})

	VerificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contribchain_verification_failures_total",
		Help: "Total number of events rejected by the verifier, labelled by reason.",
	}, []string{"reason"})

	ProofsStaged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contribchain_proofs_staged_total",
		Help: "Total number of proofs staged for anchoring.",
	})

	DuplicateProofs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contribchain_duplicate_proofs_total",
		Help: "Total number of staging pushes deduplicated by proof hash.",
	})

	DeadLetteredJobs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contribchain_dead_lettered_jobs_total",
		Help: "Total number of ingest jobs moved to the dead-letter space.",
	})

	BatchesAnchored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contribchain_batches_anchored_total",
		Help: "Total number of batches pinned to the content store.",
	})

	PinFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contribchain_pin_failures_total",
		Help: "Total number of anchor cycles aborted by a failed content-store pin.",
	})

	LedgerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contribchain_ledger_failures_total",
		Help: "Total number of batches left chain-pending after a failed ledger call.",
	})

	StagedProofGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "contribchain_staged_proofs",
		Help: "Number of proofs currently awaiting anchoring.",
	})
)
