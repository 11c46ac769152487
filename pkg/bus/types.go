package bus

import "trovobridge/pkg/transport"

// InboundFrame is one transport event waiting for dispatch.
type InboundFrame struct {
	Channel   string          `json:"channel"`
	ChannelID string          `json:"channel_id"`
	Event     transport.Event `json:"-"`
}

// OutboundMessage is text an operator wants said in a chat channel without
// an inbound message to reply to.
type OutboundMessage struct {
	Channel   string `json:"channel"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}
