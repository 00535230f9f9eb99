package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPQueue publishes to and consumes from one durable RabbitMQ queue
// through the default exchange.
type AMQPQueue struct {
	conn  *amqp.Connection
	name  string
	log   *zap.Logger
	mu    sync.Mutex
	pubCh *amqp.Channel
}

// NewAMQPQueue dials url and declares the durable queue name.
func NewAMQPQueue(url, name string, log *zap.Logger) (*AMQPQueue, error) {
	if name == "" {
		name = "classattend.jobs"
	}
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return &AMQPQueue{conn: conn, name: name, log: log, pubCh: ch}, nil
}

// channel returns the publish channel, reopening it after a channel-level error.
func (q *AMQPQueue) channel() (*amqp.Channel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pubCh != nil && !q.pubCh.IsClosed() {
		return q.pubCh, nil
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	q.log.Warn("rabbitmq publish channel reopened", zap.String("queue", q.name))
	q.pubCh = ch
	return ch, nil
}

// Publish sends a persistent message. The message type travels as the AMQP type property.
func (q *AMQPQueue) Publish(ctx context.Context, msg Message) error {
	ch, err := q.channel()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		Type:         msg.Type,
		ContentType:  "application/octet-stream",
		Body:         msg.Body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
}

// Consume uses manual acks. A delivery is acked once handed to the reader and
// requeued when ctx ends first.
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Message, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("register consumer: %w", err)
	}
	q.log.Info("started consuming messages", zap.String("queue", q.name))

	out := make(chan Message)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- Message{Type: d.Type, Body: d.Body}:
					if err := d.Ack(false); err != nil {
						q.log.Warn("ack failed", zap.Error(err))
					}
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close closes the connection.
func (q *AMQPQueue) Close() error {
	return q.conn.Close()
}
