package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trovobridge/pkg/activity"
	"trovobridge/pkg/bot"
	"trovobridge/pkg/bus"
	"trovobridge/pkg/channel"
	"trovobridge/pkg/channel/trovo"
	"trovobridge/pkg/chatproto"
	"trovobridge/pkg/config"
	"trovobridge/pkg/frame"
	"trovobridge/pkg/transport"

	"github.com/stretchr/testify/require"
)

type nopHandler struct{}

func (nopHandler) HandleTurn(context.Context, *activity.TurnContext) error { return nil }

// scriptedAdapter runs each inbound text through the handler as one turn and
// collects what the handler sends back.
type scriptedAdapter struct {
	name    string
	inbound []string
	runErr  error
	ready   atomic.Bool

	mu   sync.Mutex
	sent []string
	done chan struct{}
}

func (a *scriptedAdapter) Name() string {
	return a.name
}

func (a *scriptedAdapter) Ready() bool {
	return a.ready.Load()
}

func (a *scriptedAdapter) Send(_ context.Context, _ *activity.TurnContext, acts []activity.Activity) ([]activity.Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	receipts := make([]activity.Receipt, 0, len(acts))
	for _, act := range acts {
		a.sent = append(a.sent, act.Text)
		receipts = append(receipts, activity.Receipt{ActivityID: act.ID, SentAt: time.Now()})
	}
	return receipts, nil
}

func (a *scriptedAdapter) Run(ctx context.Context, handler channel.Handler) error {
	a.ready.Store(true)
	defer a.ready.Store(false)

	for i, text := range a.inbound {
		tc := activity.NewTurnContext(a, activity.Activity{ID: fmt.Sprintf("in-%d", i), Text: text, Author: "Viewer1"})
		if err := handler.HandleTurn(ctx, tc); err != nil {
			return err
		}
	}
	close(a.done)

	if a.runErr != nil {
		return a.runErr
	}
	<-ctx.Done()
	return nil
}

func (a *scriptedAdapter) sentTexts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sent...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{Gateway: config.GatewayConfig{Host: "127.0.0.1", Port: freeTCPPort(t)}}
}

func TestGatewayServiceRunE2EScriptedAdapterCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter := &scriptedAdapter{
		name:    "trovo",
		inbound: []string{"!ping", "just chatting", "!echo hi there"},
		done:    make(chan struct{}),
	}
	svc, err := NewService(testConfig(t), []channel.Adapter{adapter}, bot.NewCommands(nil), bus.NewMessageBus(), slog.Default())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	select {
	case <-adapter.done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for adapter scripted messages")
	}

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}

	require.Equal(t, []string{"pong", "hi there"}, adapter.sentTexts())
}

func TestGatewayServiceRunE2EAdapterFailure(t *testing.T) {
	lost := errors.New("connection lost")
	adapter := &scriptedAdapter{name: "trovo", runErr: lost, done: make(chan struct{})}
	svc, err := NewService(testConfig(t), []channel.Adapter{adapter}, nopHandler{}, bus.NewMessageBus(), slog.Default())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(context.Background())
	}()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, lost)
		require.Contains(t, err.Error(), "run trovo channel")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to fail")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeReplay(t *testing.T, messages []chatproto.ChatMessage) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "{channel}.cap.zst")
	cw, err := transport.CreateCapture(filepath.Join(filepath.Dir(path), "streamer.cap.zst"))
	require.NoError(t, err)

	require.NoError(t, cw.Write(transport.Event{Kind: transport.KindText, Payload: []byte(`{"type":"PONG"}`)}))
	for _, msg := range messages {
		payload := frame.Encode(frame.OpcodeChatData, chatproto.Marshal(msg), frame.MinHeaderSize)
		require.NoError(t, cw.Write(transport.Event{Kind: transport.KindBinary, Payload: payload}))
	}
	require.NoError(t, cw.Close())
	return path
}

func TestGatewayServiceRunE2EReplayThroughTrovoAdapter(t *testing.T) {
	replay := writeReplay(t, []chatproto.ChatMessage{
		{Author: "Viewer1", Content: "!ping", IsHistory: true},
		{Author: "Viewer1", Content: "!ping"},
		{Author: "BotName", Content: "!ping"},
		{Author: "Viewer2", Content: "!echo  hello chat"},
		{Author: "Viewer3", Content: "nice stream"},
	})

	cfg := testConfig(t)
	cfg.Channels.Trovo = config.ChannelConfig{Enabled: true, Channel: "streamer", BotName: "BotName"}

	var out syncBuffer
	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	adapter, err := trovo.NewAdapter(cfg.Channels.Trovo, trovo.Deps{
		Source:   &transport.ReplaySource{Path: replay},
		Renderer: transport.NewWriterRenderer(&out, ""),
		Bus:      mb,
	}, log)
	require.NoError(t, err)
	adapter.Use(activity.Recover(), activity.Logging(log))

	svc, err := NewService(cfg, []channel.Adapter{adapter}, bot.NewCommands(log), mb, log, ExitWhenIdle())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(context.Background())
	}()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for replay to finish")
	}

	require.Equal(t, "pong\nhello chat\n", out.String())
	stats := adapter.Stats()
	require.Equal(t, uint64(6), stats.Frames)
	require.Equal(t, uint64(1), stats.TextFrames)
	require.Equal(t, uint64(2), stats.Skipped)
	require.Equal(t, uint64(3), stats.Dispatched)
	require.Equal(t, uint64(2), stats.Sent)
}

func TestGatewayServiceReadyzFollowsAdapter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t)
	adapter := &scriptedAdapter{name: "trovo", done: make(chan struct{})}
	svc, err := NewService(cfg, []channel.Adapter{adapter}, nopHandler{}, bus.NewMessageBus(), slog.Default())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	base := fmt.Sprintf("http://%s", cfg.Gateway.Address())
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, base+"/healthz", 2*time.Second))
	<-adapter.done
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, base+"/readyz", 2*time.Second))

	adapter.ready.Store(false)
	require.Equal(t, http.StatusServiceUnavailable, waitHTTPStatus(t, base+"/readyz", 2*time.Second))

	adapter.ready.Store(true)
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, base+"/readyz", 2*time.Second))

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func waitHTTPStatus(t *testing.T, url string, timeout time.Duration) int {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		response, err := http.Get(url)
		if err == nil {
			statusCode := response.StatusCode
			require.NoError(t, response.Body.Close())
			return statusCode
		}

		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %v", url, err)
		}

		time.Sleep(25 * time.Millisecond)
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}
