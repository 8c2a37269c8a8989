package telehealth

import (
	"context"

	"github.com/google/uuid"
	"github.com/saeid-a/TeleClinicBack/internal/models"
)

// ChatChannel builds the append-only in-session message log. Delivery to the
// remote participant is the signaling collaborator's responsibility; the
// engine only appends and emits.
type ChatChannel struct {
	directory Directory
	bus       *Bus
}

func NewChatChannel(directory Directory, bus *Bus) *ChatChannel {
	return &ChatChannel{directory: directory, bus: bus}
}

func (c *ChatChannel) compose(ctx context.Context, sessionID, senderID, text string, msgType models.MessageType) models.SessionMessage {
	name, err := c.directory.DisplayName(ctx, senderID)
	if err != nil || name == "" {
		name = senderID
	}
	return models.SessionMessage{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		SenderID:   senderID,
		SenderName: name,
		Message:    text,
		Timestamp:  nowUTC(),
		Type:       msgType,
	}
}

func (c *ChatChannel) emit(msg models.SessionMessage) {
	c.bus.Publish(Event{
		Type:      EventChatMessage,
		SessionID: msg.SessionID,
		UserID:    msg.SenderID,
		Message:   &msg,
	})
}
