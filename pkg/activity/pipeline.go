package activity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNextCalledTwice is returned when a middleware continues the chain more
// than once for the same turn.
var ErrNextCalledTwice = errors.New("activity: next called more than once")

// Handler is the application logic at the end of the pipeline.
type Handler interface {
	HandleTurn(ctx context.Context, tc *TurnContext) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, tc *TurnContext) error

func (f HandlerFunc) HandleTurn(ctx context.Context, tc *TurnContext) error {
	return f(ctx, tc)
}

// Next continues a turn with the rest of the pipeline.
type Next interface {
	Continue(ctx context.Context, tc *TurnContext) error
}

// Middleware observes or modifies a turn. Returning without calling
// next.Continue ends the turn before the remaining middleware and the
// handler run.
type Middleware interface {
	OnTurn(ctx context.Context, tc *TurnContext, next Next) error
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, tc *TurnContext, next Next) error

func (f MiddlewareFunc) OnTurn(ctx context.Context, tc *TurnContext, next Next) error {
	return f(ctx, tc, next)
}

// Pipeline is an ordered list of middleware. It is safe to register
// middleware while turns are running; a running turn keeps the list it
// started with.
type Pipeline struct {
	mu    sync.RWMutex
	units []Middleware
}

// NewPipeline returns a pipeline running units in order.
func NewPipeline(units ...Middleware) *Pipeline {
	p := &Pipeline{}
	return p.Use(units...)
}

// Use appends middleware to the end of the pipeline. Nil entries are ignored.
func (p *Pipeline) Use(units ...Middleware) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, unit := range units {
		if unit != nil {
			p.units = append(p.units, unit)
		}
	}
	return p
}

// Len returns the number of registered middleware.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.units)
}

// Run executes the middleware in order, ending at terminal. A nil terminal
// ends the chain after the last middleware.
func (p *Pipeline) Run(ctx context.Context, tc *TurnContext, terminal Handler) error {
	p.mu.RLock()
	units := make([]Middleware, len(p.units))
	copy(units, p.units)
	p.mu.RUnlock()

	start := &step{units: units, terminal: terminal}
	return start.Continue(ctx, tc)
}

// step runs units[index] and everything after it.
type step struct {
	units    []Middleware
	index    int
	terminal Handler
	called   atomic.Bool
}

func (s *step) Continue(ctx context.Context, tc *TurnContext) error {
	if !s.called.CompareAndSwap(false, true) {
		return ErrNextCalledTwice
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if s.index == len(s.units) {
		if s.terminal == nil {
			return nil
		}
		return s.terminal.HandleTurn(ctx, tc)
	}

	next := &step{units: s.units, index: s.index + 1, terminal: s.terminal}
	return s.units[s.index].OnTurn(ctx, tc, next)
}
