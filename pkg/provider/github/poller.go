package github

import (
	"context"
	"time"

	"github.com/dotrep/contribchain/internal/config"
	"github.com/dotrep/contribchain/pkg/queue"
	"go.uber.org/zap"
)

// Poller periodically fetches contribution activity for the configured
// logins and enqueues it for ingestion. Delivery is at-least-once: poll
// windows overlap on failure and duplicates are absorbed downstream by the
// proof hash.
type Poller struct {
	config config.GitHub
	logger *zap.Logger
	client *Client
	queue  queue.IngestQueue

	// lastPolled tracks the start of the next poll window per login.
	lastPolled map[string]time.Time
}

func NewPoller(cfg config.GitHub, logger *zap.Logger, client *Client, ingest queue.IngestQueue) *Poller {
	return &Poller{
		config:     cfg,
		logger:     logger,
		client:     client,
		queue:      ingest,
		lastPolled: make(map[string]time.Time),
	}
}

func (p *Poller) StartLoop(shutdownCh chan chan error) {
	ticker := time.NewTicker(p.config.PollInterval.Duration())
	defer ticker.Stop()

	p.poll()

	for {
		select {
		case ch := <-shutdownCh:
			ch <- nil
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PollInterval.Duration())
	defer cancel()

	for _, login := range p.config.Logins {
		since, ok := p.lastPolled[login]
		if !ok {
			since = time.Now().Add(-p.config.PollInterval.Duration())
		}

		polledAt := time.Now()
		events, err := p.client.FetchContributions(ctx, login, since)
		if err != nil {
			// The window is left untouched so the next poll retries it.
			p.logger.Error("Failed to fetch contributions",
				zap.String("login", login), zap.Error(err))
			continue
		}

		enqueued := 0
		for _, event := range events {
			if _, err := p.queue.Enqueue(ctx, event); err != nil {
				p.logger.Error("Failed to enqueue event",
					zap.String("login", login),
					zap.String("eventId", event.EventId),
					zap.Error(err))
				continue
			}
			enqueued++
		}

		p.lastPolled[login] = polledAt
		p.logger.Info("Polled contributions",
			zap.String("login", login),
			zap.Int("fetched", len(events)),
			zap.Int("enqueued", enqueued))
	}
}
