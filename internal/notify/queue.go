package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Envelope is one queued notification. Payload is the kind-specific JSON
// document, carried untouched between the publisher and the dispatcher.
type Envelope struct {
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
	QueuedAt time.Time       `json:"queued_at"`
}

// Queue carries envelopes from request handlers to the dispatcher.
type Queue interface {
	Publish(ctx context.Context, env Envelope) error
	Consume(ctx context.Context) (<-chan Envelope, error)
}

var errNoKind = errors.New("envelope has no kind")

func encodeEnvelope(env Envelope) ([]byte, error) {
	if env.Kind == "" {
		return nil, errNoKind
	}
	return json.Marshal(env)
}

func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Kind == "" {
		return Envelope{}, errNoKind
	}
	return env, nil
}

// InMemory is a buffered queue for single-process deployments and tests.
// Envelopes published while nobody consumes wait in the buffer.
type InMemory struct {
	pending chan Envelope
}

// NewInMemory creates a queue holding up to size envelopes.
func NewInMemory(size int) *InMemory {
	return &InMemory{pending: make(chan Envelope, size)}
}

// Publish blocks while the buffer is full.
func (q *InMemory) Publish(ctx context.Context, env Envelope) error {
	select {
	case q.pending <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume hands envelopes to one dispatcher; the channel closes with ctx.
func (q *InMemory) Consume(ctx context.Context) (<-chan Envelope, error) {
	out := make(chan Envelope)
	go func() {
		defer close(out)
		for {
			var env Envelope
			select {
			case env = <-q.pending:
			case <-ctx.Done():
				return
			}
			if !deliver(ctx, out, env) {
				return
			}
		}
	}()
	return out, nil
}

const (
	defaultQueueKey = "attest:notifications"
	popTimeout      = 5 * time.Second
	minRetry        = 500 * time.Millisecond
	maxRetry        = 30 * time.Second
)

// RedisQueue keeps JSON envelopes in a Redis list shared by the API and the
// worker: LPUSH on publish, BRPOP on consume.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
	logger *zap.Logger
}

// NewRedisQueue builds a queue on the list at key.
func NewRedisQueue(client redis.UniversalClient, key string, logger *zap.Logger) *RedisQueue {
	if key == "" {
		key = defaultQueueKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQueue{client: client, key: key, logger: logger.With(zap.String("queue", key))}
}

// Publish appends the envelope to the list.
func (q *RedisQueue) Publish(ctx context.Context, env Envelope) error {
	raw, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, raw).Err()
}

// Consume pops envelopes until ctx is cancelled. While Redis is unreachable
// the loop retries with a doubling delay capped at maxRetry; unreadable list
// entries are dropped with a warning.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Envelope, error) {
	out := make(chan Envelope)
	go q.drain(ctx, out)
	return out, nil
}

func (q *RedisQueue) drain(ctx context.Context, out chan<- Envelope) {
	defer close(out)
	retry := minRetry
	for ctx.Err() == nil {
		raw, err := q.pop(ctx)
		if errors.Is(err, redis.Nil) {
			retry = minRetry
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Warn("notification queue unavailable", zap.Duration("retry_in", retry), zap.Error(err))
			if !pause(ctx, retry) {
				return
			}
			retry = min(2*retry, maxRetry)
			continue
		}
		retry = minRetry

		env, err := decodeEnvelope(raw)
		if err != nil {
			q.logger.Warn("dropping unreadable notification", zap.ByteString("entry", raw), zap.Error(err))
			continue
		}
		if !deliver(ctx, out, env) {
			return
		}
	}
}

// pop waits up to popTimeout for one entry; redis.Nil means none arrived.
func (q *RedisQueue) pop(ctx context.Context) ([]byte, error) {
	res, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
	if err != nil {
		return nil, err
	}
	// BRPOP answers [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d items", len(res))
	}
	return []byte(res[1]), nil
}

func deliver(ctx context.Context, out chan<- Envelope, env Envelope) bool {
	select {
	case out <- env:
		return true
	case <-ctx.Done():
		return false
	}
}

func pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
