package broker

import (
	"context"

	"github.com/NaraSky/mesh-talk-platform/internal/models"
)

// LocalTxOutcome is the result of a local-transaction callback.
type LocalTxOutcome int

const (
	// OutcomeUnknown means the outcome could not be determined yet. The
	// broker keeps the half-message invisible and checks back later.
	OutcomeUnknown LocalTxOutcome = iota
	// OutcomeCommit makes the half-message visible to consumers.
	OutcomeCommit
	// OutcomeRollback discards the half-message.
	OutcomeRollback
)

func (o LocalTxOutcome) String() string {
	switch o {
	case OutcomeCommit:
		return "commit"
	case OutcomeRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// TxHandler supplies the two local-transaction callbacks of a transactional
// send. ExecuteLocalTransaction runs synchronously inside the send path and
// performs the durable local effect. CheckLocalTransaction is invoked
// out-of-band when the broker never learned the outcome of an earlier
// execute; it must be side-effect-free and derive the answer purely from
// durable state. Both may be called concurrently for different message ids
// and repeatedly for the same id.
type TxHandler interface {
	ExecuteLocalTransaction(ctx context.Context, event *models.TxEvent) LocalTxOutcome
	CheckLocalTransaction(ctx context.Context, event *models.TxEvent) LocalTxOutcome
}

// TransactionalProducer submits an event as a half-message. The returned
// error reports transport failure only, never the local-transaction
// outcome: a nil return means "accepted for processing", not "delivered".
type TransactionalProducer interface {
	SendInTransaction(ctx context.Context, event *models.TxEvent) error
}

// Handler consumes a committed event from a destination.
type Handler func(ctx context.Context, event *models.TxEvent)

// Consumer dispatches committed events to destination handlers with
// at-least-once semantics.
type Consumer interface {
	// Subscribe registers a handler for a destination. Must be called
	// before Start.
	Subscribe(destination string, h Handler)
	// Start begins consuming until ctx is cancelled or Close is called.
	Start(ctx context.Context) error
	Close() error
}
