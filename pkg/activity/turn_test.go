package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func inbound() Activity {
	return Activity{
		ID:             "in-1",
		Type:           TypeMessage,
		Text:           "!ping",
		Author:         "Viewer1",
		ServiceURL:     "https://trovo.live/chat/streamer",
		ChannelID:      "trovo",
		ConversationID: "streamer",
	}
}

func TestSendActivitiesAddressesFromInbound(t *testing.T) {
	sender := &recordingSender{}
	tc := NewTurnContext(sender, inbound())

	receipts, err := tc.SendActivities(context.Background(), Activity{ID: "out-1", Text: "pong"})
	require.NoError(t, err)
	require.Len(t, receipts, 1)

	require.Len(t, sender.sent, 1)
	got := sender.sent[0]
	require.Equal(t, TypeMessage, got.Type)
	require.Equal(t, "https://trovo.live/chat/streamer", got.ServiceURL)
	require.Equal(t, "streamer", got.ConversationID)
	require.Equal(t, "in-1", got.ReplyToID)
	require.True(t, tc.Responded())
	require.Equal(t, []Activity{got}, tc.Responses())
}

func TestSendActivitiesRecordsDeliveredPrefixOnFailure(t *testing.T) {
	wantErr := errors.New("transport down")
	sender := &recordingSender{failAt: 1, sendErr: wantErr}
	tc := NewTurnContext(sender, inbound())

	receipts, err := tc.SendActivities(context.Background(),
		Activity{ID: "a", Text: "one"},
		Activity{ID: "b", Text: "two"},
		Activity{ID: "c", Text: "three"},
	)
	require.ErrorIs(t, err, wantErr)
	require.Len(t, receipts, 1)

	responses := tc.Responses()
	require.Len(t, responses, 1)
	require.Equal(t, "a", responses[0].ID)
}

func TestSendActivitiesWithoutSender(t *testing.T) {
	tc := NewTurnContext(nil, inbound())
	_, err := tc.SendActivities(context.Background(), Activity{Text: "x"})
	require.Error(t, err)

	receipts, err := tc.SendActivities(context.Background())
	require.NoError(t, err)
	require.Nil(t, receipts)
}

func TestSendText(t *testing.T) {
	sender := &recordingSender{}
	tc := NewTurnContext(sender, inbound())

	_, err := tc.SendText(context.Background(), "pong")
	require.NoError(t, err)
	require.Equal(t, "pong", sender.sent[0].Text)
	require.Equal(t, "in-1", sender.sent[0].ReplyToID)
}

func TestQueueAndTakePending(t *testing.T) {
	sender := &recordingSender{}
	tc := NewTurnContext(sender, inbound())

	tc.Queue(Activity{Text: "first"}, Activity{Text: "second"})
	require.False(t, tc.Responded())
	require.Zero(t, sender.sendCall)

	pending := tc.TakePending()
	require.Len(t, pending, 2)
	require.Equal(t, "first", pending[0].Text)
	require.Equal(t, "streamer", pending[1].ConversationID)
	require.Empty(t, tc.TakePending())
}

func TestReplyTo(t *testing.T) {
	reply := inbound().ReplyTo("hi")
	require.Equal(t, TypeMessage, reply.Type)
	require.Equal(t, "in-1", reply.ReplyToID)
	require.Empty(t, reply.Author)
	require.Empty(t, reply.ID)
}

func TestUpdateActivityKeepsRouting(t *testing.T) {
	in := inbound()
	in.RecipientID = "999999999"
	sender := &recordingSender{}
	tc := NewTurnContext(sender, in)

	tc.UpdateActivity(func(act *Activity) {
		act.Text = "!echo rewritten"
		act.ConversationID = "other"
		act.RecipientID = "someone"
		act.ServiceURL = "https://elsewhere.example"
	})
	tc.UpdateActivity(nil)

	got := tc.Activity()
	require.Equal(t, "!echo rewritten", got.Text)
	require.Equal(t, "other", got.ConversationID)
	require.Equal(t, "999999999", got.RecipientID)
	require.Equal(t, "https://trovo.live/chat/streamer", got.ServiceURL)

	_, err := tc.SendText(context.Background(), "rewritten")
	require.NoError(t, err)
	require.Equal(t, "other", sender.sent[0].ConversationID)
}
