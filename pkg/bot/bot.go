// Package bot holds the chat command responder that sits at the end of the
// activity pipeline.
package bot

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"trovobridge/pkg/activity"
)

const commandPrefix = "!"

// CommandFunc answers one command. args is the text after the command name,
// trimmed. An empty reply sends nothing.
type CommandFunc func(ctx context.Context, tc *activity.TurnContext, args string) (string, error)

// Commands dispatches "!name args" chat lines to registered commands. Plain
// chat and unknown commands are ignored.
type Commands struct {
	mu       sync.RWMutex
	commands map[string]CommandFunc
	log      *slog.Logger
}

// NewCommands returns a responder with the built-in ping, echo and help
// commands.
func NewCommands(log *slog.Logger) *Commands {
	if log == nil {
		log = slog.Default()
	}
	c := &Commands{
		commands: make(map[string]CommandFunc),
		log:      log.With("component", "bot"),
	}
	c.Register("ping", func(context.Context, *activity.TurnContext, string) (string, error) {
		return "pong", nil
	})
	c.Register("echo", func(_ context.Context, _ *activity.TurnContext, args string) (string, error) {
		return args, nil
	})
	c.Register("help", func(context.Context, *activity.TurnContext, string) (string, error) {
		return "commands: " + strings.Join(c.Names(), ", "), nil
	})
	return c
}

// Register adds or replaces a command. Names are case-insensitive.
func (c *Commands) Register(name string, fn CommandFunc) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands[name] = fn
}

// Names lists the registered commands with their prefix, sorted.
func (c *Commands) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, commandPrefix+name)
	}
	sort.Strings(names)
	return names
}

// HandleTurn implements activity.Handler.
func (c *Commands) HandleTurn(ctx context.Context, tc *activity.TurnContext) error {
	name, args, ok := ParseCommand(tc.Activity().Text)
	if !ok {
		return nil
	}
	c.mu.RLock()
	fn, found := c.commands[name]
	c.mu.RUnlock()
	if !found {
		c.log.Debug("Ignoring unknown command", "command", name, "author", tc.Activity().Author)
		return nil
	}

	reply, err := fn(ctx, tc, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(reply) == "" {
		return nil
	}
	_, err = tc.SendText(ctx, reply)
	return err
}

// ParseCommand splits "!name rest" into a lower-cased name and the trimmed
// rest. ok is false when text is not a command.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, commandPrefix) {
		return "", "", false
	}
	text = text[len(commandPrefix):]
	name, args, _ = strings.Cut(text, " ")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(args), true
}
