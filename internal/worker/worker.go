package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/media-be/shared/rabbitmq"
)

// Config holds the worker pool configuration
type Config struct {
	// WorkerID is the stable identity used for job leases
	WorkerID string
	// Concurrency is the number of jobs processed in parallel
	Concurrency int
	// PrefetchCount bounds unacknowledged deliveries on the channel
	PrefetchCount int
}

// Worker consumes job wake-up messages from RabbitMQ and fans them out to
// a fixed pool of goroutines. The pool size is the only concurrency knob;
// each pool slot runs one pipeline at a time in its own workspace.
type Worker struct {
	config    Config
	logger    *slog.Logger
	rabbit    *rabbitmq.Client
	processor *Processor

	deliveries chan amqp.Delivery
	stopChan   chan struct{}
	wg         sync.WaitGroup
}

// New creates a Worker
func New(config Config, logger *slog.Logger, rabbit *rabbitmq.Client, processor *Processor) *Worker {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PrefetchCount <= 0 {
		config.PrefetchCount = config.Concurrency
	}

	return &Worker{
		config:     config,
		logger:     logger,
		rabbit:     rabbit,
		processor:  processor,
		deliveries: make(chan amqp.Delivery, config.Concurrency),
		stopChan:   make(chan struct{}),
	}
}

// Start begins consuming and processing. It returns once the consumer and
// the pool are running.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.rabbit.GetChannel().Qos(w.config.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set channel QoS: %w", err)
	}

	messages, err := w.rabbit.Consume(w.config.WorkerID)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	w.wg.Add(1)
	go w.dispatch(ctx, messages)

	w.spawnPool(ctx)

	w.logger.Info("Worker started",
		slog.String("worker_id", w.config.WorkerID),
		slog.Int("concurrency", w.config.Concurrency),
		slog.Int("prefetch", w.config.PrefetchCount),
	)

	return nil
}

// Stop drains the pool. In-flight jobs finish; unstarted deliveries are
// returned to the broker when the connection closes.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker", slog.String("worker_id", w.config.WorkerID))

	close(w.stopChan)
	w.wg.Wait()

	w.logger.Info("Worker stopped", slog.String("worker_id", w.config.WorkerID))
}

// dispatch moves broker deliveries onto the internal channel so the pool
// can be shut down independently of the AMQP consumer
func (w *Worker) dispatch(ctx context.Context, messages <-chan amqp.Delivery) {
	defer w.wg.Done()
	defer close(w.deliveries)

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case d, ok := <-messages:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			select {
			case w.deliveries <- d:
			case <-w.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
