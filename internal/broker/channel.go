package broker

import (
	"context"
	"log"
	"sync"

	"github.com/NaraSky/mesh-talk-platform/internal/models"
)

// ChannelBroker is an in-process broker carrying the same transactional
// contract as the Redis implementation. It backs single-node deployments
// and the test suite: the execute callback runs synchronously inside
// SendInTransaction and only committed events ever reach subscribers.
type ChannelBroker struct {
	handler TxHandler

	mu     sync.RWMutex
	subs   map[string][]Handler
	queue  chan *models.TxEvent
	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
}

// NewChannelBroker creates a broker dispatching committed events on a
// buffered queue of the given size.
func NewChannelBroker(handler TxHandler, queueSize int) *ChannelBroker {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &ChannelBroker{
		handler: handler,
		subs:    make(map[string][]Handler),
		queue:   make(chan *models.TxEvent, queueSize),
		done:    make(chan struct{}),
	}
}

// SendInTransaction executes the local transaction inline and, on commit,
// enqueues the event for delivery. There is no transport to fail here, so
// the only error path is a closed broker.
func (b *ChannelBroker) SendInTransaction(ctx context.Context, event *models.TxEvent) error {
	outcome := b.handler.ExecuteLocalTransaction(ctx, event)
	if outcome != OutcomeCommit {
		log.Printf("broker: local transaction for message %d finished as %s, discarding", event.MessageID, outcome)
		return nil
	}

	select {
	case b.queue <- event:
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Subscribe registers a handler for a destination.
func (b *ChannelBroker) Subscribe(destination string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[destination] = append(b.subs[destination], h)
}

// Start dispatches committed events until the context is cancelled or the
// broker is closed.
func (b *ChannelBroker) Start(ctx context.Context) error {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case event := <-b.queue:
				b.dispatch(ctx, event)
			case <-b.done:
				// Drain what is already queued before stopping.
				for {
					select {
					case event := <-b.queue:
						b.dispatch(ctx, event)
					default:
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (b *ChannelBroker) dispatch(ctx context.Context, event *models.TxEvent) {
	b.mu.RLock()
	handlers := b.subs[event.Destination]
	b.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, event)
	}
}

// Close stops dispatching after draining the queue.
func (b *ChannelBroker) Close() error {
	b.closed.Do(func() { close(b.done) })
	b.wg.Wait()
	return nil
}
