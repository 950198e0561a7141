package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"animalfaces-api/internal/model"
	"animalfaces-api/internal/platform/rabbitmq"
)

var errMalformedEvent = errors.New("malformed prediction event")

type PredictionStore interface {
	Create(prediction *model.Prediction) error
}

// PredictionPersistWorker consumes prediction events and writes them to the store.
type PredictionPersistWorker struct {
	conn      *amqp.Connection
	store     PredictionStore
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPredictionPersistWorker(conn *amqp.Connection, store PredictionStore, queueName string) *PredictionPersistWorker {
	return &PredictionPersistWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
	}
}

func (w *PredictionPersistWorker) Start(ctx context.Context) error {
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

	if err := ch.Qos(16, 0, false); err != nil {
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

				if err := w.handle(d.Body); err != nil {
					log.Error().Err(err).Str("message_id", d.MessageId).Msg("worker persist prediction failed")
					// malformed payloads never succeed; storage failures get one redelivery
					requeue := !errors.Is(err, errMalformedEvent) && !d.Redelivered
					_ = d.Nack(false, requeue)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	log.Info().Str("queue", w.queueName).Msg("prediction persist worker started")
	return nil
}

func (w *PredictionPersistWorker) handle(body []byte) error {
	var event model.PredictionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}
	if event.ID == "" || event.Label == "" {
		return fmt.Errorf("%w: missing id or label", errMalformedEvent)
	}

	record, err := event.Record()
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}
	return w.store.Create(record)
}

func (w *PredictionPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
