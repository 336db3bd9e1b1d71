package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/media-be/internal/jobs"
)

// spawnPool starts the fixed set of processing goroutines
func (w *Worker) spawnPool(ctx context.Context) {
	for i := 1; i <= w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.poolLoop(ctx, i)
	}
}

// poolLoop drains deliveries until the dispatcher closes the channel
func (w *Worker) poolLoop(ctx context.Context, slot int) {
	defer w.wg.Done()

	logger := w.logger.With(slog.Int("pool_slot", slot))
	logger.Debug("Pool slot started")

	for d := range w.deliveries {
		w.handleDelivery(ctx, logger, d)
	}

	logger.Debug("Pool slot stopped")
}

func (w *Worker) handleDelivery(ctx context.Context, logger *slog.Logger, d amqp.Delivery) {
	msg, err := parseMessage(d.Body)
	if err != nil {
		logger.Error("Discarding malformed job message",
			slog.String("body", string(d.Body)),
			slog.Any("error", err),
		)
		w.nack(logger, d, false)
		return
	}

	if w.processor.Handle(ctx, msg) {
		w.ack(logger, d)
		return
	}

	// no durable verdict recorded, let the broker try again later
	w.nack(logger, d, true)
}

// parseMessage decodes and validates one wake-up message
func parseMessage(body []byte) (jobs.Message, error) {
	var msg jobs.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, err
	}

	if _, err := uuid.Parse(msg.JobID); err != nil {
		return msg, err
	}

	return msg, nil
}

func (w *Worker) ack(logger *slog.Logger, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		logger.Error("Failed to ack delivery", slog.Any("error", err))
	}
}

func (w *Worker) nack(logger *slog.Logger, d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		logger.Error("Failed to nack delivery", slog.Any("error", err))
	}
}
