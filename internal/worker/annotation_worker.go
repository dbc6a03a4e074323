package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"medtrak/internal/model"
	"medtrak/internal/platform/rabbitmq"
)

type JobHandler interface {
	Run(ctx context.Context, job model.AnnotationJob) error
}

// AnnotationWorker consumes annotation jobs one at a time. Failed jobs are
// dropped, not requeued.
type AnnotationWorker struct {
	conn      *amqp.Connection
	handler   JobHandler
	queueName string
	logger    zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAnnotationWorker(conn *amqp.Connection, handler JobHandler, queueName string, logger zerolog.Logger) *AnnotationWorker {
	return &AnnotationWorker{
		conn:      conn,
		handler:   handler,
		queueName: queueName,
		logger:    logger,
	}
}

func (w *AnnotationWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.process(workerCtx, d)
			}
		}
	}()

	w.logger.Info().Str("queue", w.queueName).Msg("annotation worker started")
	return nil
}

func (w *AnnotationWorker) process(ctx context.Context, d amqp.Delivery) {
	var job model.AnnotationJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.RecordID == "" {
		w.logger.Error().Err(err).Msg("worker decode job failed")
		_ = d.Nack(false, false)
		return
	}

	if err := w.handler.Run(ctx, job); err != nil {
		w.logger.Error().Err(err).Str("record_id", job.RecordID).Msg("worker annotate record failed")
		_ = d.Nack(false, false)
		return
	}

	_ = d.Ack(false)
}

func (w *AnnotationWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
