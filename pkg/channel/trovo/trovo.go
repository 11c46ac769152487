package trovo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"trovobridge/pkg/activity"
	"trovobridge/pkg/bus"
	"trovobridge/pkg/channel"
	"trovobridge/pkg/chatproto"
	"trovobridge/pkg/config"
	"trovobridge/pkg/filter"
	"trovobridge/pkg/frame"
	"trovobridge/pkg/transport"
)

const channelName = "trovo"
const messagePreviewLimit = 240

// ErrTransportWrite wraps renderer failures returned by Send.
var ErrTransportWrite = errors.New("trovo: transport write failed")

// Deps are the collaborators an Adapter talks to.
type Deps struct {
	// Source yields the channel's WebSocket frames. Required by Run.
	Source transport.Source
	// Renderer types outbound text into the chat. Required.
	Renderer transport.Renderer
	// Bus queues frames in ordered mode and receives lifecycle events. A
	// private bus is created when nil.
	Bus *bus.MessageBus
	// Mode is config.DispatchOrdered (default) or config.DispatchConcurrent.
	Mode    string
	Workers int
}

// Adapter bridges one Trovo chat channel into the activity pipeline. Inbound
// frames are decoded, filtered and dispatched as activities; outbound
// activities are rendered back into the chat input one at a time.
type Adapter struct {
	cfg        config.ChannelConfig
	source     transport.Source
	renderer   transport.Renderer
	bus        *bus.MessageBus
	mode       string
	workers    int
	serviceURL string
	pipeline   *activity.Pipeline
	log        *slog.Logger

	now   func() time.Time
	newID func() string

	handlerMu sync.RWMutex
	handler   activity.Handler

	sendMu sync.Mutex
	ready  atomic.Bool

	frames     atomic.Uint64
	textFrames atomic.Uint64
	dropped    atomic.Uint64
	skipped    atomic.Uint64
	dispatched atomic.Uint64
	failed     atomic.Uint64
	sent       atomic.Uint64
	sendErrors atomic.Uint64
}

// NewAdapter validates channel configuration and constructs an adapter.
func NewAdapter(cfg config.ChannelConfig, deps Deps, log *slog.Logger) (*Adapter, error) {
	cfg.Channel = strings.TrimSpace(cfg.Channel)
	if cfg.Channel == "" {
		return nil, errors.New("channels.trovo.channel is required")
	}
	if strings.TrimSpace(cfg.BotName) == "" {
		return nil, errors.New("channels.trovo.bot_name is required")
	}
	if deps.Renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if strings.TrimSpace(cfg.BotID) == "" {
		cfg.BotID = config.DefaultBotID
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = config.DefaultBaseURL
	}

	mode := deps.Mode
	switch mode {
	case "":
		mode = config.DispatchOrdered
	case config.DispatchOrdered, config.DispatchConcurrent:
	default:
		return nil, fmt.Errorf("unknown dispatch mode %q", mode)
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}

	mb := deps.Bus
	if mb == nil {
		mb = bus.NewMessageBus()
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:        cfg,
		source:     deps.Source,
		renderer:   deps.Renderer,
		bus:        mb,
		mode:       mode,
		workers:    workers,
		serviceURL: baseURL + "/chat/" + url.PathEscape(cfg.Channel),
		pipeline:   activity.NewPipeline(),
		log:        log.With("component", "channel.trovo", "channel_id", cfg.Channel),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}, nil
}

// Name returns the channel identifier used in bus events and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Use appends middleware to the adapter's pipeline.
func (a *Adapter) Use(middleware ...activity.Middleware) *Adapter {
	a.pipeline.Use(middleware...)
	return a
}

// ServiceURL is the chat page address stamped on every inbound activity.
func (a *Adapter) ServiceURL() string {
	return a.serviceURL
}

// Ready reports whether Run has an open stream.
func (a *Adapter) Ready() bool {
	return a.ready.Load()
}

// Stats returns a snapshot of the adapter's counters.
func (a *Adapter) Stats() channel.Stats {
	return channel.Stats{
		Frames:     a.frames.Load(),
		TextFrames: a.textFrames.Load(),
		Dropped:    a.dropped.Load(),
		Skipped:    a.skipped.Load(),
		Dispatched: a.dispatched.Load(),
		Failed:     a.failed.Load(),
		Sent:       a.sent.Load(),
		SendErrors: a.sendErrors.Load(),
	}
}

// Run opens the channel stream and dispatches every accepted chat message to
// handler until ctx ends or the stream fails. A finite stream that reaches
// io.EOF ends Run with nil once its queued frames are handled.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	if a.source == nil {
		return errors.New("transport source is required")
	}
	a.setHandler(handler)

	stream, err := a.source.Open(ctx, a.cfg.Channel)
	if err != nil {
		return fmt.Errorf("open channel %s: %w", a.cfg.Channel, err)
	}
	defer stream.Close()

	a.ready.Store(true)
	defer a.ready.Store(false)

	a.log.Info("Trovo channel started", "mode", a.mode, "service_url", a.serviceURL)
	a.publish(ctx, bus.Event{Type: bus.EventChannelStarted, Payload: map[string]string{"mode": a.mode}})

	g, gctx := errgroup.WithContext(ctx)
	var inflight sync.WaitGroup

	var deliver func(transport.Event) bool
	switch a.mode {
	case config.DispatchConcurrent:
		pool, err := ants.NewPool(a.workers)
		if err != nil {
			return fmt.Errorf("create dispatch pool: %w", err)
		}
		defer pool.Release()

		deliver = func(ev transport.Event) bool {
			inflight.Add(1)
			if err := pool.Submit(func() {
				defer inflight.Done()
				_ = a.HandleEvent(gctx, ev)
			}); err != nil {
				inflight.Done()
				a.log.Error("Failed to submit frame", "error", err)
				return false
			}
			return true
		}
	default:
		deliver = func(ev transport.Event) bool {
			inflight.Add(1)
			ok := a.bus.PublishInbound(gctx, bus.InboundFrame{Channel: channelName, ChannelID: a.cfg.Channel, Event: ev})
			if !ok {
				inflight.Done()
			}
			return ok
		}
		g.Go(func() error {
			return a.consumeInbound(gctx, &inflight)
		})
	}

	g.Go(func() error {
		return a.consumeOutbound(gctx)
	})
	g.Go(func() error {
		return a.readLoop(gctx, stream, deliver, &inflight)
	})

	err = g.Wait()
	if errors.Is(err, errStreamDrained) || ctx.Err() != nil {
		return nil
	}
	return err
}

// errStreamDrained stops the run group after a finite stream is fully handled.
var errStreamDrained = errors.New("stream drained")

func (a *Adapter) readLoop(ctx context.Context, stream transport.Stream, deliver func(transport.Event) bool, inflight *sync.WaitGroup) error {
	for {
		ev, err := stream.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				a.log.Info("Trovo stream ended")
				waitInflight(ctx, inflight)
				return errStreamDrained
			}
			return fmt.Errorf("receive frame: %w", err)
		}
		if !deliver(ev) {
			if ctx.Err() != nil {
				return nil
			}
			return errors.New("dispatch queue closed")
		}
	}
}

func waitInflight(ctx context.Context, inflight *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}
}

// consumeInbound is the single ordered dispatcher.
func (a *Adapter) consumeInbound(ctx context.Context, inflight *sync.WaitGroup) error {
	for {
		msg, ok := a.bus.ConsumeInbound(ctx)
		if !ok {
			return nil
		}
		_ = a.HandleEvent(ctx, msg.Event)
		inflight.Done()
	}
}

// consumeOutbound posts operator messages addressed to this channel.
func (a *Adapter) consumeOutbound(ctx context.Context) error {
	for {
		msg, ok := a.bus.SubscribeOutbound(ctx)
		if !ok {
			return nil
		}
		if msg.Channel != "" && msg.Channel != channelName {
			a.log.Warn("Ignoring outbound message for another channel", "channel", msg.Channel)
			continue
		}
		if msg.ChannelID != "" && msg.ChannelID != a.cfg.Channel {
			a.log.Warn("Ignoring outbound message for another chat", "target", msg.ChannelID)
			continue
		}
		if _, err := a.Announce(ctx, msg.Content); err != nil {
			a.log.Error("Failed to send outbound message", "error", err)
		}
	}
}

// HandleEvent takes one transport event through decode, parse and filter,
// and dispatches the result. Text frames, non-chat opcodes and filtered
// messages return nil. Decode and parse failures are logged here and
// returned; callers keep reading the stream.
func (a *Adapter) HandleEvent(ctx context.Context, ev transport.Event) error {
	a.frames.Add(1)

	if ev.Kind == transport.KindText {
		a.textFrames.Add(1)
		a.log.Debug("Ignoring text frame", "size", len(ev.Payload))
		return nil
	}

	fr, err := frame.Decode(ev.Payload)
	if err != nil {
		a.drop(ctx, ev, err)
		return err
	}
	if !fr.IsData() {
		a.log.Debug("Ignoring non-chat frame", "opcode", fr.Opcode)
		return nil
	}

	msg, err := chatproto.Parse(fr.Blob)
	if err != nil {
		a.drop(ctx, ev, err)
		return err
	}

	if outcome := filter.Classify(msg, a.cfg.BotName); outcome != filter.Accepted {
		a.skipped.Add(1)
		a.log.Debug("Skipping chat message", "reason", outcome.String(), "author", msg.Author)
		return nil
	}

	return a.Dispatch(ctx, msg)
}

func (a *Adapter) drop(ctx context.Context, ev transport.Event, err error) {
	a.dropped.Add(1)
	a.log.Warn("Dropping malformed frame", "size", len(ev.Payload), "error", err)
	a.publish(ctx, bus.Event{Type: bus.EventFrameDropped, Error: err.Error()})
}

// Dispatch turns an accepted chat message into an activity and runs it
// through the pipeline to the handler registered by Run. Responses queued on
// the turn are sent once the pipeline succeeds. Every call builds a new
// activity, so the same message dispatched twice runs two turns.
func (a *Adapter) Dispatch(ctx context.Context, msg chatproto.ChatMessage) error {
	act := a.newActivity(msg)
	tc := activity.NewTurnContext(a, act)

	a.dispatched.Add(1)
	a.log.Info("Received message", "activity_id", act.ID, "author", act.Author, "content", previewText(act.Text))
	a.publish(ctx, bus.Event{
		Type:       bus.EventActivityDispatched,
		ActivityID: act.ID,
		Author:     act.Author,
		Text:       act.Text,
	})

	err := a.pipeline.Run(ctx, tc, a.currentHandler())
	if err == nil {
		if pending := tc.TakePending(); len(pending) > 0 {
			_, err = tc.SendActivities(ctx, pending...)
		}
	}
	if err != nil {
		a.failed.Add(1)
		a.log.Error("Failed to process activity", "activity_id", act.ID, "error", err)
		a.publish(ctx, bus.Event{
			Type:       bus.EventActivityFailed,
			ActivityID: act.ID,
			Author:     act.Author,
			Error:      err.Error(),
		})
		return fmt.Errorf("dispatch activity %s: %w", act.ID, err)
	}
	return nil
}

func (a *Adapter) newActivity(msg chatproto.ChatMessage) activity.Activity {
	ts := msg.SentAt
	if ts.IsZero() {
		ts = a.now()
	}
	return activity.Activity{
		ID:             a.newID(),
		Type:           activity.TypeMessage,
		Text:           msg.Content,
		Author:         msg.Author,
		AuthorID:       msg.AuthorID,
		RecipientID:    a.cfg.BotID,
		ServiceURL:     a.serviceURL,
		ChannelID:      channelName,
		ConversationID: a.cfg.Channel,
		Timestamp:      ts,
	}
}

// Send renders activities into the chat in order: the text is injected into
// the chat input and submitted before the next one starts. Batches from
// concurrent turns never interleave. The first failure ends the batch; the
// receipts of the activities already sent are returned with an error
// wrapping ErrTransportWrite.
func (a *Adapter) Send(ctx context.Context, _ *activity.TurnContext, activities []activity.Activity) ([]activity.Receipt, error) {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	receipts := make([]activity.Receipt, 0, len(activities))
	for i, act := range activities {
		if err := a.renderer.InjectText(ctx, act.Text); err != nil {
			return receipts, a.sendFailed(ctx, act, i, len(activities), "inject text", err)
		}
		if err := a.renderer.Submit(ctx); err != nil {
			return receipts, a.sendFailed(ctx, act, i, len(activities), "submit", err)
		}

		id := act.ID
		if id == "" {
			id = a.newID()
		}
		receipts = append(receipts, activity.Receipt{ActivityID: id, SentAt: a.now()})
		a.sent.Add(1)
		a.log.Info("Sending message", "activity_id", id, "reply_to", act.ReplyToID, "content", previewText(act.Text))
		a.publish(ctx, bus.Event{Type: bus.EventActivitySent, ActivityID: id, Text: act.Text})
	}
	return receipts, nil
}

func (a *Adapter) sendFailed(ctx context.Context, act activity.Activity, index, total int, step string, err error) error {
	a.sendErrors.Add(1)
	a.publish(ctx, bus.Event{Type: bus.EventActivityFailed, ActivityID: act.ID, Text: act.Text, Error: err.Error()})
	return fmt.Errorf("%w: %s for activity %d of %d: %w", ErrTransportWrite, step, index+1, total, err)
}

// Announce sends text to the channel outside of any inbound turn.
func (a *Adapter) Announce(ctx context.Context, text string) (activity.Receipt, error) {
	ref := activity.Activity{
		Type:           activity.TypeMessage,
		ServiceURL:     a.serviceURL,
		ChannelID:      channelName,
		ConversationID: a.cfg.Channel,
	}
	return activity.NewTurnContext(a, ref).SendText(ctx, text)
}

func (a *Adapter) setHandler(handler activity.Handler) {
	a.handlerMu.Lock()
	defer a.handlerMu.Unlock()
	a.handler = handler
}

func (a *Adapter) currentHandler() activity.Handler {
	a.handlerMu.RLock()
	defer a.handlerMu.RUnlock()
	return a.handler
}

func (a *Adapter) publish(ctx context.Context, event bus.Event) {
	event.Channel = channelName
	event.ChannelID = a.cfg.Channel
	a.bus.PublishEvent(context.WithoutCancel(ctx), event)
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
