package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wachannel/internal/composer"
)

type capturePublisher struct {
	payloads []any
	err      error
}

func (c *capturePublisher) Publish(_ context.Context, payload any) error {
	c.payloads = append(c.payloads, payload)
	return c.err
}

func TestConstructorsValidateInput(t *testing.T) {
	_, err := NewConnection("", nil)
	assert.Error(t, err)

	_, err = NewPublisher(nil, "whatsapp_sends")
	assert.Error(t, err)

	_, err = NewConsumer(nil, "whatsapp_sends", func(context.Context, *SendJob) error { return nil }, nil)
	assert.Error(t, err)

	_, err = NewBroadcastPublisher(nil, "simulator")
	assert.Error(t, err)

	_, err = NewBroadcastSubscriber(nil, "simulator", &capturePublisher{}, nil)
	assert.Error(t, err)
}

func TestConsumer_ProcessMessage(t *testing.T) {
	payload, err := composer.Text("+2348012345678", "Inspection booked for 10am")
	require.NoError(t, err)

	user := uuid.New()
	body, err := json.Marshal(SendJob{JobID: uuid.New(), Payload: payload, UserID: &user})
	require.NoError(t, err)

	var got *SendJob
	c := &Consumer{
		handler: func(_ context.Context, job *SendJob) error {
			got = job
			return nil
		},
		logger: zap.NewNop(),
	}

	require.NoError(t, c.processMessage(context.Background(), body))
	require.NotNil(t, got)
	assert.Equal(t, payload, got.Payload)
	assert.Equal(t, user, *got.UserID)
}

func TestConsumer_ProcessMessageErrors(t *testing.T) {
	boom := errors.New("database unavailable")
	c := &Consumer{
		handler: func(context.Context, *SendJob) error { return boom },
		logger:  zap.NewNop(),
	}

	assert.Error(t, c.processMessage(context.Background(), []byte("{not json")))
	assert.ErrorIs(t, c.processMessage(context.Background(), []byte(`{"payload":{}}`)), boom)
}

func TestBroadcastSubscriber_Relay(t *testing.T) {
	target := &capturePublisher{}
	s := &BroadcastSubscriber{target: target, logger: zap.NewNop()}

	s.relay([]byte(`{"to":"tenant-demo","type":"text"}`))
	s.relay([]byte(`not json`))

	require.Len(t, target.payloads, 1)
	raw, ok := target.payloads[0].(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"to":"tenant-demo","type":"text"}`, string(raw))
}

func TestBroadcastSubscriber_ResubscribesAfterChannelClose(t *testing.T) {
	target := &capturePublisher{}

	first := make(chan amqp.Delivery, 1)
	first <- amqp.Delivery{Body: []byte(`{"seq":1}`)}
	close(first)

	second := make(chan amqp.Delivery, 1)
	second <- amqp.Delivery{Body: []byte(`{"seq":2}`)}

	var mu sync.Mutex
	attempts := 0
	subs := []chan amqp.Delivery{first, nil, second}

	s := &BroadcastSubscriber{
		exchange:   "simulator",
		target:     target,
		logger:     zap.NewNop(),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
		retryDelay: time.Millisecond,
	}
	s.subscribe = func() (<-chan amqp.Delivery, error) {
		mu.Lock()
		defer mu.Unlock()
		next := subs[attempts]
		attempts++
		if next == nil {
			return nil, errors.New("connection refused")
		}
		return next, nil
	}

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 3 && len(second) == 0
	}, time.Second, 5*time.Millisecond)
	s.Stop()

	require.Len(t, target.payloads, 2)
	assert.JSONEq(t, `{"seq":2}`, string(target.payloads[1].(json.RawMessage)))
}
