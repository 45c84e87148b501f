// Package worker runs queued fusion jobs through the pipeline.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fabric-fusion-backend/internal/logger"
	"fabric-fusion-backend/internal/models"
	"fabric-fusion-backend/internal/queue"
)

// JobRunner is satisfied by *pipeline.Orchestrator.
type JobRunner interface {
	Process(ctx context.Context, jobID uuid.UUID) ([]models.Candidate, error)
}

// Processor consumes the queue with a fixed number of goroutines, one job per
// goroutine at a time.
type Processor struct {
	consumer    queue.Consumer
	runner      JobRunner
	concurrency int
	log         *logger.Logger
}

func NewProcessor(consumer queue.Consumer, runner JobRunner, concurrency int, log *logger.Logger) *Processor {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Processor{
		consumer:    consumer,
		runner:      runner,
		concurrency: concurrency,
		log:         log.With("service", "FusionWorker"),
	}
}

// Start blocks until ctx is done and every worker has returned.
func (p *Processor) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.loop(ctx, n)
		}(i)
	}
	wg.Wait()
}

func (p *Processor) loop(ctx context.Context, n int) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.processMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		p.log.Error("Worker consume loop error", "worker", n, "error", err)

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Processor) processMessage(ctx context.Context, message queue.Message) error {
	jobID, err := uuid.Parse(message.JobID)
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", message.JobID, err)
	}

	p.log.Info("Processing fusion job", "job_id", jobID, "queued_for", time.Since(message.RequestedAt).Round(time.Millisecond))
	candidates, err := p.runner.Process(ctx, jobID)
	if err != nil {
		return fmt.Errorf("process job %s: %w", jobID, err)
	}
	p.log.Info("Fusion job finished", "job_id", jobID, "candidates", len(candidates))
	return nil
}
