package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"
)

// Recover turns a panic further down the chain into an error for the turn.
func Recover() Middleware {
	return MiddlewareFunc(func(ctx context.Context, tc *TurnContext, next Next) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("turn %s panicked: %v", tc.Activity().ID, r)
			}
		}()
		return next.Continue(ctx, tc)
	})
}

// Logging records the outcome and duration of every turn.
func Logging(log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "activity.pipeline")

	return MiddlewareFunc(func(ctx context.Context, tc *TurnContext, next Next) error {
		act := tc.Activity()
		started := time.Now()
		err := next.Continue(ctx, tc)

		attrs := []any{
			"activity_id", act.ID,
			"conversation_id", act.ConversationID,
			"author", act.Author,
			"responses", len(tc.Responses()),
			"duration", time.Since(started),
		}
		if err != nil {
			log.Error("Turn failed", append(attrs, "error", err)...)
			return err
		}
		log.Debug("Turn completed", attrs...)
		return nil
	})
}

// MaxTextLength ends turns whose inbound text is longer than limit runes.
// A limit of zero or less disables the check.
func MaxTextLength(limit int) Middleware {
	return MiddlewareFunc(func(ctx context.Context, tc *TurnContext, next Next) error {
		if limit > 0 && utf8.RuneCountInString(tc.Activity().Text) > limit {
			return nil
		}
		return next.Continue(ctx, tc)
	})
}
