package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-engagement/internal/domain"
	"tg-engagement/internal/infra/metrics"
)

// RabbitRecomputeQueue реализует очередь задач через AMQP.
type RabbitRecomputeQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

// NewRabbitRecomputeQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitRecomputeQueue(amqpURL, queue string) (*RabbitRecomputeQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &RabbitRecomputeQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitRecomputeQueue) Enqueue(ctx context.Context, job domain.RecomputeJob) error {
	job = withJobID(job)
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.RequestedAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive ждёт следующую задачу. Ack с success=false возвращает задачу в очередь.
func (q *RabbitRecomputeQueue) Receive(ctx context.Context) (domain.RecomputeJob, domain.AckFunc, error) {
	deliveries, err := q.consume()
	if err != nil {
		return domain.RecomputeJob{}, nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return domain.RecomputeJob{}, nil, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return domain.RecomputeJob{}, nil, errors.New("rabbitmq: delivery channel closed")
			}
			var job domain.RecomputeJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				_ = d.Nack(false, false)
				return domain.RecomputeJob{}, nil, fmt.Errorf("decode job: %w", err)
			}
			ack := func(success bool) error {
				if success {
					return d.Ack(false)
				}
				return d.Nack(false, true)
			}
			return job, ack, nil
		}
	}
}

func (q *RabbitRecomputeQueue) consume() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// Close закрывает канал и соединение.
func (q *RabbitRecomputeQueue) Close() error {
	if err := q.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
