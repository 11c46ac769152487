// Package activity defines the transport-agnostic turn model: activities,
// the per-activity TurnContext, and the middleware pipeline that carries a
// turn to the application handler.
package activity

import (
	"time"
)

const (
	TypeMessage = "message"
)

// Activity is one normalized chat message, inbound or outbound.
type Activity struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Text           string    `json:"text"`
	Author         string    `json:"author,omitempty"`
	AuthorID       string    `json:"author_id,omitempty"`
	RecipientID    string    `json:"recipient_id,omitempty"`
	ServiceURL     string    `json:"service_url,omitempty"`
	ChannelID      string    `json:"channel_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	ReplyToID      string    `json:"reply_to_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Receipt acknowledges one activity delivered to the transport.
type Receipt struct {
	ActivityID string    `json:"activity_id"`
	SentAt     time.Time `json:"sent_at"`
}

// ReplyTo returns an outbound message activity addressed to the same
// conversation as a. Identity fields are left to the sender.
func (a Activity) ReplyTo(text string) Activity {
	return Activity{
		Type:           TypeMessage,
		Text:           text,
		ServiceURL:     a.ServiceURL,
		ChannelID:      a.ChannelID,
		ConversationID: a.ConversationID,
		ReplyToID:      a.ID,
	}
}
