package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer consumes send jobs from a RabbitMQ queue
type Consumer struct {
	conn      *Connection
	queueName string
	handler   JobHandler
	logger    *zap.Logger
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// JobHandler processes one send job. A returned error requeues the
// delivery once; a second failure drops it.
type JobHandler func(ctx context.Context, job *SendJob) error

// NewConsumer creates a new consumer instance
func NewConsumer(conn *Connection, queueName string, handler JobHandler, logger *zap.Logger) (*Consumer, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if queueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	if err := declareSendQueue(ch, queueName); err != nil {
		return nil, err
	}

	return &Consumer{
		conn:      conn,
		queueName: queueName,
		handler:   handler,
		logger:    logger,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}, nil
}

// Start starts consuming messages from the queue
func (c *Consumer) Start() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	// one unacknowledged job at a time
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual acknowledgement)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer close(c.doneChan)
		defer cancel()

		for {
			select {
			case <-c.stopChan:
				c.logger.Info("consumer stopping")
				return
			case d, ok := <-msgs:
				if !ok {
					c.logger.Warn("delivery channel closed")
					return
				}
				c.handleDelivery(ctx, d)
			}
		}
	}()

	c.logger.Info("consumer started", zap.String("queue", c.queueName))
	return nil
}

// Stop stops consuming messages gracefully
func (c *Consumer) Stop() error {
	close(c.stopChan)
	<-c.doneChan

	c.logger.Info("consumer stopped")
	return nil
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	err := c.processMessage(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	requeue := !d.Redelivered
	c.logger.Error("failed to process send job",
		zap.String("message_id", d.MessageId),
		zap.Bool("requeue", requeue),
		zap.Error(err),
	)
	_ = d.Nack(false, requeue)
}

// processMessage decodes and handles a single delivery body
func (c *Consumer) processMessage(ctx context.Context, body []byte) error {
	var job SendJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("failed to unmarshal send job: %w", err)
	}

	if err := c.handler(ctx, &job); err != nil {
		return fmt.Errorf("handler failed: %w", err)
	}

	return nil
}
