// Package filter decides which decoded chat messages may become activities.
package filter

import "trovobridge/pkg/chatproto"

// Outcome is the result of classifying one chat message.
type Outcome int

const (
	Accepted Outcome = iota
	// HistorySkipped marks messages replayed from chat history on join.
	HistorySkipped
	// SelfSkipped marks messages authored by the bot itself.
	SelfSkipped
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case HistorySkipped:
		return "history_skipped"
	case SelfSkipped:
		return "self_skipped"
	default:
		return "unknown"
	}
}

// Classify reports why msg would or would not be dispatched. History wins
// over authorship.
func Classify(msg chatproto.ChatMessage, selfIdentity string) Outcome {
	if msg.IsHistory {
		return HistorySkipped
	}
	if msg.Author == selfIdentity {
		return SelfSkipped
	}
	return Accepted
}

// Accept reports whether msg should be dispatched for a bot whose chat
// display name is selfIdentity.
func Accept(msg chatproto.ChatMessage, selfIdentity string) bool {
	return Classify(msg, selfIdentity) == Accepted
}
