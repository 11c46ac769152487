package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"trovobridge/pkg/activity"
	"trovobridge/pkg/bus"
	"trovobridge/pkg/channel"
	"trovobridge/pkg/config"
)

const eventBuffer = 256

// errChannelsIdle ends Run once every channel has finished, when requested.
var errChannelsIdle = errors.New("all channels finished")

// Service runs the chat adapters against one application handler and serves
// health and readiness endpoints while they run.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	bus      *bus.MessageBus
	handler  activity.Handler
	channels []channel.Adapter

	exitWhenIdle bool

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
}

// Option adjusts a Service.
type Option func(*Service)

// ExitWhenIdle makes Run return once every channel has stopped without
// error, instead of waiting for ctx. Replay runs use it.
func ExitWhenIdle() Option {
	return func(s *Service) { s.exitWhenIdle = true }
}

type channelState struct {
	Running bool           `json:"running"`
	Ready   bool           `json:"ready"`
	Error   string         `json:"error,omitempty"`
	Stats   *channel.Stats `json:"stats,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	QueuedFrames  int                     `json:"queued_frames"`
	Channels      map[string]channelState `json:"channels"`
}

// NewService wires adapters to handler. mb receives the adapters' lifecycle
// events, which the service logs.
func NewService(cfg *config.Config, adapters []channel.Adapter, handler activity.Handler, mb *bus.MessageBus, log *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if mb == nil {
		return nil, errors.New("message bus is required")
	}
	if log == nil {
		log = slog.Default()
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	s := &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		bus:           mb,
		handler:       handler,
		channels:      adapters,
		channelStates: channelStates,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run starts the status server, the event log and every adapter. It returns
// nil when ctx ends, or the first adapter or server failure.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.runStatusServer(gctx)
	})

	events, unsubscribe := s.bus.SubscribeEvents(gctx, eventBuffer)
	defer unsubscribe()
	g.Go(func() error {
		s.logEvents(events)
		return nil
	})

	var remaining sync.WaitGroup
	for _, adapter := range s.channels {
		remaining.Add(1)
		s.setChannelState(adapter.Name(), channelState{Running: true})

		g.Go(func() error {
			defer remaining.Done()
			err := adapter.Run(gctx, s.handler)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
			s.log.Info("Channel stopped", "channel", adapter.Name())
			return nil
		})
	}

	if s.exitWhenIdle {
		g.Go(func() error {
			idle := make(chan struct{})
			go func() {
				remaining.Wait()
				close(idle)
			}()
			select {
			case <-gctx.Done():
				return nil
			case <-idle:
				return errChannelsIdle
			}
		})
	}

	err := g.Wait()
	if errors.Is(err, errChannelsIdle) || ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Service) logEvents(events <-chan bus.Event) {
	for event := range events {
		attrs := []any{"channel", event.Channel, "channel_id", event.ChannelID}
		if event.ActivityID != "" {
			attrs = append(attrs, "activity_id", event.ActivityID)
		}
		if event.Author != "" {
			attrs = append(attrs, "author", event.Author)
		}
		switch event.Type {
		case bus.EventActivityFailed, bus.EventFrameDropped:
			s.log.Debug("Bridge event", append(attrs, "type", string(event.Type), "error", event.Error)...)
		default:
			s.log.Debug("Bridge event", append(attrs, "type", string(event.Type))...)
		}
	}
}

func (s *Service) runStatusServer(ctx context.Context) error {
	addr := s.cfg.Gateway.Address()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start status server: %w", err)
	}
	return nil
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}
	for _, adapter := range s.channels {
		state := channels[adapter.Name()]
		state.Ready = adapterReady(adapter, state)
		if reporter, ok := adapter.(channel.StatsReporter); ok {
			stats := reporter.Stats()
			state.Stats = &stats
		}
		channels[adapter.Name()] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		QueuedFrames:  s.bus.InboundLen(),
		Channels:      channels,
	}
}

// isReady is true when at least one running channel has its stream open.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, adapter := range s.channels {
		if adapterReady(adapter, s.channelStates[adapter.Name()]) {
			return true
		}
	}
	return false
}

// adapterReady defers to the adapter's own Ready when it has one.
func adapterReady(adapter channel.Adapter, state channelState) bool {
	if !state.Running {
		return false
	}
	if r, ok := adapter.(interface{ Ready() bool }); ok {
		return r.Ready()
	}
	return true
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
