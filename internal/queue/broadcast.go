package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"wachannel/internal/simulator"
)

const resubscribeDelay = 2 * time.Second

// BroadcastPublisher relays simulator payloads through a fanout exchange so
// a worker process can reach observers connected to the API process.
type BroadcastPublisher struct {
	conn     *Connection
	exchange string
}

var _ simulator.Publisher = (*BroadcastPublisher)(nil)

func NewBroadcastPublisher(conn *Connection, exchange string) (*BroadcastPublisher, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if exchange == "" {
		return nil, errors.New("exchange name cannot be empty")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	if err := declareBroadcastExchange(ch, exchange); err != nil {
		return nil, err
	}

	return &BroadcastPublisher{conn: conn, exchange: exchange}, nil
}

// Publish implements simulator.Publisher
func (p *BroadcastPublisher) Publish(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal simulator payload: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	err = ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish simulator payload: %w", err)
	}
	return nil
}

// BroadcastSubscriber feeds the fanout exchange into a local publisher,
// normally the simulator hub.
type BroadcastSubscriber struct {
	conn     *Connection
	exchange string
	target   simulator.Publisher
	logger   *zap.Logger
	stopChan chan struct{}
	doneChan chan struct{}

	subscribe  func() (<-chan amqp.Delivery, error)
	retryDelay time.Duration
}

func NewBroadcastSubscriber(conn *Connection, exchange string, target simulator.Publisher, logger *zap.Logger) (*BroadcastSubscriber, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if exchange == "" {
		return nil, errors.New("exchange name cannot be empty")
	}
	if target == nil {
		return nil, errors.New("target publisher cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &BroadcastSubscriber{
		conn:       conn,
		exchange:   exchange,
		target:     target,
		logger:     logger,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
		retryDelay: resubscribeDelay,
	}
	s.subscribe = s.bind
	return s, nil
}

// Start binds a private queue to the exchange and begins relaying. When the
// broker drops the channel the queue is re-bound, since a fanout exchange
// discards messages while no queue is bound.
func (s *BroadcastSubscriber) Start() error {
	msgs, err := s.subscribe()
	if err != nil {
		return err
	}

	go func() {
		defer close(s.doneChan)
		for {
			if !s.drain(msgs) {
				return
			}
			s.logger.Warn("broadcast delivery channel closed, resubscribing")
			if msgs = s.resubscribe(); msgs == nil {
				return
			}
		}
	}()

	s.logger.Info("simulator relay started", zap.String("exchange", s.exchange))
	return nil
}

// drain relays deliveries until msgs closes (true) or Stop is called (false)
func (s *BroadcastSubscriber) drain(msgs <-chan amqp.Delivery) bool {
	for {
		select {
		case <-s.stopChan:
			return false
		case d, ok := <-msgs:
			if !ok {
				return true
			}
			s.relay(d.Body)
		}
	}
}

// resubscribe retries subscribe until it succeeds. It returns nil once Stop is called.
func (s *BroadcastSubscriber) resubscribe() <-chan amqp.Delivery {
	for {
		msgs, err := s.subscribe()
		if err == nil {
			s.logger.Info("simulator relay resubscribed", zap.String("exchange", s.exchange))
			return msgs
		}
		s.logger.Warn("simulator relay resubscribe failed", zap.Error(err))

		select {
		case <-s.stopChan:
			return nil
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *BroadcastSubscriber) bind() (<-chan amqp.Delivery, error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	if err := declareBroadcastExchange(ch, s.exchange); err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare broadcast queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", s.exchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind broadcast queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume broadcast queue: %w", err)
	}
	return msgs, nil
}

func (s *BroadcastSubscriber) Stop() {
	close(s.stopChan)
	<-s.doneChan
}

func (s *BroadcastSubscriber) relay(body []byte) {
	if !json.Valid(body) {
		s.logger.Warn("dropping malformed simulator payload", zap.Int("bytes", len(body)))
		return
	}
	if err := s.target.Publish(context.Background(), json.RawMessage(body)); err != nil {
		s.logger.Warn("simulator relay failed", zap.Error(err))
	}
}

func declareBroadcastExchange(ch *amqp.Channel, name string) error {
	err := ch.ExchangeDeclare(
		name,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}
	return nil
}
