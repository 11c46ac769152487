package activity

import (
	"context"
	"errors"
	"sync"
)

// Sender delivers outbound activities for a turn, in order.
type Sender interface {
	Send(ctx context.Context, tc *TurnContext, activities []Activity) ([]Receipt, error)
}

// TurnContext carries one inbound activity through the pipeline together
// with the adapter that received it.
type TurnContext struct {
	sender Sender

	mu        sync.Mutex
	activity  Activity
	responses []Activity
	pending   []Activity
}

// NewTurnContext creates a turn for act received by sender.
func NewTurnContext(sender Sender, act Activity) *TurnContext {
	return &TurnContext{activity: act, sender: sender}
}

// Activity returns the inbound activity of this turn.
func (tc *TurnContext) Activity() Activity {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.activity
}

// UpdateActivity lets middleware rewrite the inbound activity seen by the
// rest of the chain. RecipientID and ServiceURL keep the values the adapter
// set.
func (tc *TurnContext) UpdateActivity(fn func(*Activity)) {
	if fn == nil {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	act := tc.activity
	fn(&act)
	act.RecipientID = tc.activity.RecipientID
	act.ServiceURL = tc.activity.ServiceURL
	tc.activity = act
}

// Sender returns the adapter that owns this turn.
func (tc *TurnContext) Sender() Sender {
	return tc.sender
}

// SendActivities delivers activities immediately through the adapter.
// Empty routing fields are filled from the inbound activity. Activities
// that reached the transport are recorded as responses even when a later
// one fails.
func (tc *TurnContext) SendActivities(ctx context.Context, activities ...Activity) ([]Receipt, error) {
	if len(activities) == 0 {
		return nil, nil
	}
	if tc.sender == nil {
		return nil, errors.New("turn has no sender")
	}

	in := tc.Activity()
	out := make([]Activity, len(activities))
	for i, act := range activities {
		out[i] = address(in, act)
	}

	receipts, err := tc.sender.Send(ctx, tc, out)

	tc.mu.Lock()
	tc.responses = append(tc.responses, out[:min(len(receipts), len(out))]...)
	tc.mu.Unlock()

	return receipts, err
}

// SendText replies to the inbound activity with a plain message.
func (tc *TurnContext) SendText(ctx context.Context, text string) (Receipt, error) {
	receipts, err := tc.SendActivities(ctx, tc.Activity().ReplyTo(text))
	if err != nil {
		return Receipt{}, err
	}
	if len(receipts) == 0 {
		return Receipt{}, nil
	}
	return receipts[0], nil
}

// Queue records activities to be sent by the adapter once the pipeline
// finishes without error.
func (tc *TurnContext) Queue(activities ...Activity) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for _, act := range activities {
		tc.pending = append(tc.pending, address(tc.activity, act))
	}
}

// TakePending returns the queued activities and clears the queue.
func (tc *TurnContext) TakePending() []Activity {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	pending := tc.pending
	tc.pending = nil
	return pending
}

// Responses returns a snapshot of the activities already sent in this turn.
func (tc *TurnContext) Responses() []Activity {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	out := make([]Activity, len(tc.responses))
	copy(out, tc.responses)
	return out
}

// Responded reports whether at least one activity was sent in this turn.
func (tc *TurnContext) Responded() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.responses) > 0
}

// address fills empty routing fields of act from the inbound activity.
func address(in, act Activity) Activity {
	if act.Type == "" {
		act.Type = TypeMessage
	}
	if act.ServiceURL == "" {
		act.ServiceURL = in.ServiceURL
	}
	if act.ChannelID == "" {
		act.ChannelID = in.ChannelID
	}
	if act.ConversationID == "" {
		act.ConversationID = in.ConversationID
	}
	if act.ReplyToID == "" {
		act.ReplyToID = in.ID
	}
	return act
}
