// Package chatproto decodes the protobuf chat record embedded in Trovo
// data frames.
//
// Only the fields the bridge consumes are mapped; everything else is
// skipped so newer server payloads keep decoding.
//
//	message TrovoMessage { ChatMessage chat = 1; }
//	message ChatMessage {
//	  string id = 1; string channel_id = 2; string session_id = 3;
//	  string content = 4; ChannelData channel_data = 5;
//	  int64 timestamp = 6; int32 type = 7;
//	}
//	message ChannelData { string display_name = 1; Details details = 2; string user_id = 3; }
//	message Details { bool __history__ = 1; }
package chatproto

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrProtocolDecode wraps every malformed or truncated blob.
var ErrProtocolDecode = errors.New("chatproto: decode failed")

// ChatMessage is one chat line decoded from a data frame.
type ChatMessage struct {
	ID        string
	ChannelID string
	SessionID string
	Content   string
	Author    string
	AuthorID  string
	Type      int32
	SentAt    time.Time
	IsHistory bool
}

const (
	fieldTrovoChat protowire.Number = 1

	fieldChatID          protowire.Number = 1
	fieldChatChannelID   protowire.Number = 2
	fieldChatSessionID   protowire.Number = 3
	fieldChatContent     protowire.Number = 4
	fieldChatChannelData protowire.Number = 5
	fieldChatTimestamp   protowire.Number = 6
	fieldChatType        protowire.Number = 7

	fieldDataDisplayName protowire.Number = 1
	fieldDataDetails     protowire.Number = 2
	fieldDataUserID      protowire.Number = 3

	fieldDetailsHistory protowire.Number = 1
)

// Parse decodes a TrovoMessage blob and returns its chat record.
func Parse(blob []byte) (ChatMessage, error) {
	var (
		msg     ChatMessage
		hasChat bool
	)

	err := walk(blob, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldTrovoChat {
			return skip(num, typ, b)
		}
		raw, n, err := consumeBytes(num, typ, b)
		if err != nil {
			return 0, err
		}
		if err := parseChat(raw, &msg); err != nil {
			return 0, err
		}
		hasChat = true
		return n, nil
	})
	if err != nil {
		return ChatMessage{}, err
	}
	if !hasChat {
		return ChatMessage{}, fmt.Errorf("%w: missing chat", ErrProtocolDecode)
	}
	return msg, nil
}

func parseChat(b []byte, msg *ChatMessage) error {
	var hasData bool

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldChatID:
			return consumeString(num, typ, b, &msg.ID)
		case fieldChatChannelID:
			return consumeString(num, typ, b, &msg.ChannelID)
		case fieldChatSessionID:
			return consumeString(num, typ, b, &msg.SessionID)
		case fieldChatContent:
			return consumeString(num, typ, b, &msg.Content)
		case fieldChatChannelData:
			raw, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			if err := parseChannelData(raw, msg); err != nil {
				return 0, err
			}
			hasData = true
			return n, nil
		case fieldChatTimestamp:
			v, n, err := consumeVarint(num, typ, b)
			if err != nil {
				return 0, err
			}
			if ms := int64(v); ms > 0 {
				msg.SentAt = time.UnixMilli(ms).UTC()
			}
			return n, nil
		case fieldChatType:
			v, n, err := consumeVarint(num, typ, b)
			if err != nil {
				return 0, err
			}
			msg.Type = int32(v)
			return n, nil
		default:
			return skip(num, typ, b)
		}
	})
	if err != nil {
		return err
	}

	if !hasData {
		return fmt.Errorf("%w: chat missing channel_data", ErrProtocolDecode)
	}
	if msg.Author == "" {
		return fmt.Errorf("%w: chat missing display_name", ErrProtocolDecode)
	}
	return nil
}

func parseChannelData(b []byte, msg *ChatMessage) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldDataDisplayName:
			return consumeString(num, typ, b, &msg.Author)
		case fieldDataUserID:
			return consumeString(num, typ, b, &msg.AuthorID)
		case fieldDataDetails:
			raw, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			if err := parseDetails(raw, msg); err != nil {
				return 0, err
			}
			return n, nil
		default:
			return skip(num, typ, b)
		}
	})
}

func parseDetails(b []byte, msg *ChatMessage) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldDetailsHistory {
			return skip(num, typ, b)
		}
		v, n, err := consumeVarint(num, typ, b)
		if err != nil {
			return 0, err
		}
		msg.IsHistory = protowire.DecodeBool(v)
		return n, nil
	})
}

// walk iterates the fields of one message. fn receives the bytes following
// the tag and returns how many of them it consumed.
func walk(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: tag: %v", ErrProtocolDecode, protowire.ParseError(n))
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, fmt.Errorf("%w: field %d: %v", ErrProtocolDecode, num, protowire.ParseError(n))
	}
	return n, nil
}

func consumeBytes(num protowire.Number, typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w: field %d: wire type %d, want bytes", ErrProtocolDecode, num, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("%w: field %d: %v", ErrProtocolDecode, num, protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeString(num protowire.Number, typ protowire.Type, b []byte, dst *string) (int, error) {
	v, n, err := consumeBytes(num, typ, b)
	if err != nil {
		return 0, err
	}
	*dst = string(v)
	return n, nil
}

func consumeVarint(num protowire.Number, typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("%w: field %d: wire type %d, want varint", ErrProtocolDecode, num, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, fmt.Errorf("%w: field %d: %v", ErrProtocolDecode, num, protowire.ParseError(n))
	}
	return v, n, nil
}
