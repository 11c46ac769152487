// Package transport holds the collaborators at the edge of the bridge: the
// per-channel stream of raw WebSocket frames and the renderer that puts
// outbound text into the chat.
package transport

import (
	"context"
	"errors"
	"time"
)

// Kind is the WebSocket opcode class of a received frame.
type Kind int

const (
	KindBinary Kind = iota
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// ErrStreamClosed is returned by Recv after Close.
var ErrStreamClosed = errors.New("transport: stream closed")

// Event is one frame delivered by the transport.
type Event struct {
	Kind       Kind
	Payload    []byte
	ReceivedAt time.Time
}

// Stream delivers the frames of one chat channel. Recv returns io.EOF when
// a finite stream is exhausted.
type Stream interface {
	Recv(ctx context.Context) (Event, error)
	Close() error
}

// Source opens frame streams for chat channels.
type Source interface {
	Open(ctx context.Context, channelID string) (Stream, error)
}

// Renderer writes outbound chat text. InjectText fills the chat input and
// Submit sends it.
type Renderer interface {
	InjectText(ctx context.Context, text string) error
	Submit(ctx context.Context) error
}
