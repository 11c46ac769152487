package chatproto

import "google.golang.org/protobuf/encoding/protowire"

// Marshal encodes msg as a TrovoMessage blob. Zero-valued optional fields
// are omitted.
func Marshal(msg ChatMessage) []byte {
	var details []byte
	if msg.IsHistory {
		details = protowire.AppendTag(details, fieldDetailsHistory, protowire.VarintType)
		details = protowire.AppendVarint(details, protowire.EncodeBool(true))
	}

	var data []byte
	data = appendString(data, fieldDataDisplayName, msg.Author)
	data = protowire.AppendTag(data, fieldDataDetails, protowire.BytesType)
	data = protowire.AppendBytes(data, details)
	data = appendString(data, fieldDataUserID, msg.AuthorID)

	var chat []byte
	chat = appendString(chat, fieldChatID, msg.ID)
	chat = appendString(chat, fieldChatChannelID, msg.ChannelID)
	chat = appendString(chat, fieldChatSessionID, msg.SessionID)
	chat = appendString(chat, fieldChatContent, msg.Content)
	chat = protowire.AppendTag(chat, fieldChatChannelData, protowire.BytesType)
	chat = protowire.AppendBytes(chat, data)
	if !msg.SentAt.IsZero() {
		chat = protowire.AppendTag(chat, fieldChatTimestamp, protowire.VarintType)
		chat = protowire.AppendVarint(chat, uint64(msg.SentAt.UnixMilli()))
	}
	if msg.Type != 0 {
		chat = protowire.AppendTag(chat, fieldChatType, protowire.VarintType)
		chat = protowire.AppendVarint(chat, uint64(msg.Type))
	}

	var out []byte
	out = protowire.AppendTag(out, fieldTrovoChat, protowire.BytesType)
	out = protowire.AppendBytes(out, chat)
	return out
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
