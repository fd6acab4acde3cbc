package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docqa-service/internal/model"
)

var errEmptyJob = errors.New("purge job has no document id")

type Purger interface {
	Purge(ctx context.Context, documentURL string) error
}

// PurgeWorker consumes purge jobs and deletes the stored document.
type PurgeWorker struct {
	conn      *amqp.Connection
	purger    Purger
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPurgeWorker(conn *amqp.Connection, purger Purger, queueName string) *PurgeWorker {
	return &PurgeWorker{
		conn:      conn,
		purger:    purger,
		queueName: queueName,
	}
}

func (w *PurgeWorker) Start(ctx context.Context) error {
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

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	// One purge at a time; a purge may issue many store deletes.
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
				w.deliver(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *PurgeWorker) deliver(ctx context.Context, d amqp.Delivery) {
	err := w.handle(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errEmptyJob), isDecodeError(err):
		log.Printf("purge worker: drop job: %v", err)
		_ = d.Nack(false, false)
	default:
		// Requeue once; a second failure drops the job.
		log.Printf("purge worker: purge failed (redelivered=%t): %v", d.Redelivered, err)
		_ = d.Nack(false, !d.Redelivered)
	}
}

func (w *PurgeWorker) handle(ctx context.Context, body []byte) error {
	var job model.PurgeJob
	if err := json.Unmarshal(body, &job); err != nil {
		return &decodeError{err: err}
	}
	if job.DocumentID == "" {
		return errEmptyJob
	}
	if err := w.purger.Purge(ctx, job.DocumentID); err != nil {
		return fmt.Errorf("purge %s (job %s): %w", job.DocumentID, job.ID, err)
	}
	log.Printf("purge worker: job %s done for %s", job.ID, job.DocumentID)
	return nil
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode purge job: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func isDecodeError(err error) bool {
	var de *decodeError
	return errors.As(err, &de)
}

func (w *PurgeWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
