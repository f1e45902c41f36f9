package services

import (
	"context"
	"log"

	"github.com/NaraSky/mesh-talk-platform/internal/broker"
	"github.com/NaraSky/mesh-talk-platform/internal/models"
)

// MessageEventConsumer handles committed message events: once the local
// transaction is committed and the broker makes the event visible, it
// builds the push payload and fans it out through the delivery gateway.
// Delivery here is best-effort; offline recipients catch up via the pull
// paths.
type MessageEventConsumer struct {
	gateway   DeliveryGateway
	positions ReadPositionStore
	opts      MessageOptions
}

func NewMessageEventConsumer(gateway DeliveryGateway, positions ReadPositionStore, opts MessageOptions) *MessageEventConsumer {
	opts.defaults()
	return &MessageEventConsumer{gateway: gateway, positions: positions, opts: opts}
}

// Register subscribes the consumer's handlers on their destinations.
func (c *MessageEventConsumer) Register(consumer broker.Consumer) {
	consumer.Subscribe(c.opts.PrivateDestination, c.HandlePrivate)
	consumer.Subscribe(c.opts.GroupDestination, c.HandleGroup)
}

// HandlePrivate pushes a committed private message to its recipient and to
// the sender's other terminals.
func (c *MessageEventConsumer) HandlePrivate(ctx context.Context, event *models.TxEvent) {
	if event.Kind != models.KindPrivate || event.Private == nil {
		log.Printf("consumer: discarding malformed private event %d", event.MessageID)
		return
	}
	msg := models.PrivateMessage{
		ID:       event.MessageID,
		SendID:   event.SenderID,
		RecvID:   event.Private.RecvID,
		Content:  event.Private.Content,
		Type:     event.Private.Type,
		Status:   models.StatusUnsent,
		SendTime: event.SendTime,
	}
	push := &PushMessage{
		Sender:      UserRef{UserID: event.SenderID, Terminal: event.Terminal},
		ReceiverIDs: []int64{msg.RecvID},
		SendToSelf:  true,
		Type:        msg.Type,
		Data:        msg,
	}
	if err := c.gateway.Push(ctx, push); err != nil {
		log.Printf("consumer: pushing private message %d failed: %v", msg.ID, err)
		return
	}
	log.Printf("consumer: private message delivered, sender %d, receiver %d, id %d", msg.SendID, msg.RecvID, msg.ID)
}

// HandleGroup pushes a committed group message to the recipient set frozen
// into the event. The sender is never in that set. For every recipient that
// was online for the push, the read position advances so the pull paths do
// not re-deliver.
func (c *MessageEventConsumer) HandleGroup(ctx context.Context, event *models.TxEvent) {
	if event.Kind != models.KindGroup || event.Group == nil {
		log.Printf("consumer: discarding malformed group event %d", event.MessageID)
		return
	}
	msg := models.GroupMessage{
		ID:           event.MessageID,
		GroupID:      event.Group.GroupID,
		SendID:       event.SenderID,
		SendNickName: event.Group.SendNickName,
		Content:      event.Group.Content,
		Type:         event.Group.Type,
		Status:       models.StatusUnsent,
		SendTime:     event.SendTime,
		AtUserIDs:    event.Group.AtUserIDs,
	}
	push := &PushMessage{
		Sender:      UserRef{UserID: event.SenderID, Terminal: event.Terminal},
		ReceiverIDs: event.Group.RecipientIDs,
		Type:        msg.Type,
		Data:        msg,
	}
	if err := c.gateway.Push(ctx, push); err != nil {
		log.Printf("consumer: pushing group message %d failed: %v", msg.ID, err)
		return
	}
	for _, userID := range c.gateway.OnlineUserIDs(event.Group.RecipientIDs) {
		if err := c.positions.Advance(ctx, msg.GroupID, userID, msg.ID); err != nil {
			log.Printf("consumer: advancing position for group %d user %d failed: %v", msg.GroupID, userID, err)
		}
	}
	log.Printf("consumer: group message delivered, sender %d, group %d, id %d, recipients %d", msg.SendID, msg.GroupID, msg.ID, len(event.Group.RecipientIDs))
}
