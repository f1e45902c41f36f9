package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/NaraSky/mesh-talk-platform/internal/models"
)

const (
	halfMessageKeyPrefix = "im:tx:half:"
	pendingSetKey        = "im:tx:pending"
	eventField           = "event"
)

func halfMessageKey(messageID int64) string {
	return halfMessageKeyPrefix + strconv.FormatInt(messageID, 10)
}

// RedisProducerOptions tunes the check-back reaper.
type RedisProducerOptions struct {
	// CheckInterval is how long a half-message may stay undecided before
	// the reaper asks the handler to re-derive its outcome.
	CheckInterval time.Duration
	// MaxCheckAttempts caps check-backs per half-message; after that the
	// half-message is given up on and discarded.
	MaxCheckAttempts int
}

func (o *RedisProducerOptions) defaults() {
	if o.CheckInterval <= 0 {
		o.CheckInterval = 30 * time.Second
	}
	if o.MaxCheckAttempts <= 0 {
		o.MaxCheckAttempts = 15
	}
}

// RedisProducer implements the transactional-send contract over Redis: the
// half-message is recorded in a ledger (hash + deadline-ordered pending
// set), the local transaction runs inline, and a committed event is
// published to its destination stream. A crash between the local
// transaction and the publish is recovered by the reaper, which invokes
// CheckLocalTransaction and re-publishes on commit.
type RedisProducer struct {
	client  *redis.Client
	handler TxHandler
	opts    RedisProducerOptions

	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
}

// NewRedisProducer creates a producer and starts its check-back reaper.
func NewRedisProducer(client *redis.Client, handler TxHandler, opts RedisProducerOptions) *RedisProducer {
	opts.defaults()
	p := &RedisProducer{
		client:  client,
		handler: handler,
		opts:    opts,
		done:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.reapLoop()
	return p
}

// SendInTransaction records the half-message, runs the local transaction and
// publishes on commit. A non-nil error means the half-message was never
// accepted; any later failure is resolved by the reaper.
func (p *RedisProducer) SendInTransaction(ctx context.Context, event *models.TxEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding tx event %d: %w", event.MessageID, err)
	}

	key := halfMessageKey(event.MessageID)
	deadline := float64(time.Now().Add(p.opts.CheckInterval).UnixMilli())
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, key, eventField, payload)
	pipe.ZAdd(ctx, pendingSetKey, redis.Z{Score: deadline, Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording half-message %d: %w", event.MessageID, err)
	}

	switch p.handler.ExecuteLocalTransaction(ctx, event) {
	case OutcomeCommit:
		if err := p.publish(ctx, event.Destination, payload); err != nil {
			// The local transaction committed; leave the ledger entry so
			// the reaper re-derives commit and publishes.
			log.Printf("broker: publish of committed message %d failed, deferring to check-back: %v", event.MessageID, err)
			return nil
		}
		p.cleanup(ctx, key)
	case OutcomeRollback:
		p.cleanup(ctx, key)
	case OutcomeUnknown:
		// Ledger entry stays; the reaper will check back.
	}
	return nil
}

func (p *RedisProducer) publish(ctx context.Context, destination string, payload []byte) error {
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: destination,
		Values: map[string]interface{}{eventField: payload},
	}).Err()
}

func (p *RedisProducer) cleanup(ctx context.Context, key string) {
	pipe := p.client.TxPipeline()
	pipe.ZRem(ctx, pendingSetKey, key)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("broker: cleaning up half-message %s: %v", key, err)
	}
}

func (p *RedisProducer) reapLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.CheckInterval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reapDue()
		case <-p.done:
			return
		}
	}
}

// reapDue resolves half-messages whose check deadline has passed.
func (p *RedisProducer) reapDue() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	keys, err := p.client.ZRangeByScore(ctx, pendingSetKey, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil {
		log.Printf("broker: scanning pending half-messages: %v", err)
		return
	}

	for _, key := range keys {
		p.resolve(ctx, key)
	}
}

func (p *RedisProducer) resolve(ctx context.Context, key string) {
	raw, err := p.client.HGet(ctx, key, eventField).Result()
	if errors.Is(err, redis.Nil) {
		p.client.ZRem(ctx, pendingSetKey, key)
		return
	}
	if err != nil {
		log.Printf("broker: loading half-message %s: %v", key, err)
		return
	}

	var event models.TxEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		log.Printf("broker: discarding undecodable half-message %s: %v", key, err)
		p.cleanup(ctx, key)
		return
	}

	if p.handler.CheckLocalTransaction(ctx, &event) == OutcomeCommit {
		if err := p.publish(ctx, event.Destination, []byte(raw)); err != nil {
			log.Printf("broker: re-publishing message %d: %v", event.MessageID, err)
			return
		}
		p.cleanup(ctx, key)
		log.Printf("broker: check-back committed message %d", event.MessageID)
		return
	}

	attempts, err := p.client.HIncrBy(ctx, key, "attempts", 1).Result()
	if err != nil {
		log.Printf("broker: counting check attempts for %s: %v", key, err)
		return
	}
	if int(attempts) >= p.opts.MaxCheckAttempts {
		// Broker-side give-up: the local transaction never became visible.
		log.Printf("broker: giving up on half-message %d after %d checks", event.MessageID, attempts)
		p.cleanup(ctx, key)
		return
	}
	deadline := float64(time.Now().Add(p.opts.CheckInterval).UnixMilli())
	p.client.ZAdd(ctx, pendingSetKey, redis.Z{Score: deadline, Member: key})
}

// Close stops the reaper.
func (p *RedisProducer) Close() error {
	p.closed.Do(func() { close(p.done) })
	p.wg.Wait()
	return nil
}

// RedisConsumer reads committed events from destination streams through a
// consumer group, giving at-least-once delivery across service instances.
type RedisConsumer struct {
	client   *redis.Client
	group    string
	consumer string

	mu   sync.Mutex
	subs map[string]Handler

	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
}

// NewRedisConsumer creates a consumer named after a fresh uuid within the
// given group.
func NewRedisConsumer(client *redis.Client, group string) *RedisConsumer {
	return &RedisConsumer{
		client:   client,
		group:    group,
		consumer: "consumer-" + uuid.NewString(),
		subs:     make(map[string]Handler),
		done:     make(chan struct{}),
	}
}

// Subscribe registers a handler for a destination stream.
func (c *RedisConsumer) Subscribe(destination string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[destination] = h
}

// Start creates the consumer groups and launches one read loop per
// subscribed destination.
func (c *RedisConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for stream, handler := range c.subs {
		err := c.client.XGroupCreateMkStream(ctx, stream, c.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("creating consumer group on %s: %w", stream, err)
		}
		c.wg.Add(1)
		go c.readLoop(ctx, stream, handler)
	}
	return nil
}

func (c *RedisConsumer) readLoop(ctx context.Context, stream string, handler Handler) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{stream, ">"},
			Count:    32,
			Block:    5 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("broker: reading %s: %v", stream, err)
			time.Sleep(time.Second)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.handle(ctx, stream, handler, msg)
			}
		}
	}
}

func (c *RedisConsumer) handle(ctx context.Context, stream string, handler Handler, msg redis.XMessage) {
	raw, ok := msg.Values[eventField].(string)
	if !ok {
		log.Printf("broker: message %s on %s has no event payload", msg.ID, stream)
		c.client.XAck(ctx, stream, c.group, msg.ID)
		return
	}
	var event models.TxEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		log.Printf("broker: decoding message %s on %s: %v", msg.ID, stream, err)
		c.client.XAck(ctx, stream, c.group, msg.ID)
		return
	}
	handler(ctx, &event)
	c.client.XAck(ctx, stream, c.group, msg.ID)
}

// Close stops the read loops.
func (c *RedisConsumer) Close() error {
	c.closed.Do(func() { close(c.done) })
	c.wg.Wait()
	return nil
}
