// ABOUTME: Controller runs one exchange: guard, append, stream open, fold, terminal
// ABOUTME: Single-flight is enforced through the store's busy flag with deferred release

package exchange

import (
	"context"
	"log/slog"
	"strings"

	"github.com/2389/familiar/internal/completion"
	"github.com/2389/familiar/internal/conversation"
)

// DefaultErrorText is substituted for the reply when an exchange fails and
// the config provides no localized text.
const DefaultErrorText = "Sorry, something went wrong. Please try again."

// Store defines what the controller needs from conversation state.
type Store interface {
	Acquire() bool
	Release()
	AppendUser(text string)
	AppendPlaceholder() error
	ReplaceLast(msg conversation.Message) error
	FoldIncrement(delta string)
}

// Controller orchestrates exchanges against the completion session. It is
// the only writer of conversation state and the only holder of the busy
// flag; everything else observes through store snapshots.
type Controller struct {
	store     Store
	session   completion.Session
	errorText string
	logger    *slog.Logger
}

// New creates a controller. A nil session is valid and turns every
// submission into a silent no-op (the missing-credential mode).
func New(store Store, session completion.Session, errorText string, logger *slog.Logger) *Controller {
	if errorText == "" {
		errorText = DefaultErrorText
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:     store,
		session:   session,
		errorText: errorText,
		logger:    logger.With("component", "exchange"),
	}
}

// Submit runs one full exchange synchronously and reports whether the
// submission was accepted. Rejections — empty input, an exchange already
// in flight, no session — are silent: false, with no state change.
//
// An accepted exchange blocks the calling goroutine until its terminal
// state. There is no timeout and no abort: a stalled stream stalls the
// exchange with the busy flag held.
func (c *Controller) Submit(ctx context.Context, raw string) bool {
	run := c.begin(raw)
	if run == nil {
		return false
	}
	run(ctx)
	return true
}

// SubmitAsync applies the same guards as Submit synchronously — the
// returned bool is the same accepted/rejected verdict, and the busy flag,
// user turn, and placeholder are all in place before it returns — but runs
// the streaming phase in its own goroutine on ctx. The widget HTTP surface
// uses this to answer submit requests immediately while the exchange runs
// on the widget's lifecycle context.
func (c *Controller) SubmitAsync(ctx context.Context, raw string) bool {
	run := c.begin(raw)
	if run == nil {
		return false
	}
	go run(ctx)
	return true
}

// begin applies the submission guards and, on acceptance, acquires the
// busy flag and appends the user turn plus the typing placeholder. It
// returns the streaming phase still to run, or nil for a rejected
// submission (no state change). The returned phase releases the busy flag
// on every terminal path.
func (c *Controller) begin(raw string) func(context.Context) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	if c.session == nil {
		c.logger.Debug("submission dropped, no session configured")
		return nil
	}
	if !c.store.Acquire() {
		c.logger.Debug("submission dropped, exchange in flight")
		return nil
	}

	c.store.AppendUser(text)
	placeholderErr := c.store.AppendPlaceholder()

	return func(ctx context.Context) {
		// Terminal states all pass through here: the flag is released
		// on success, on failure, and on any panic out of the fold loop.
		defer c.store.Release()

		if placeholderErr != nil {
			// Unreachable while single-flight holds: no other writer
			// can leave a placeholder behind.
			c.logger.Error("placeholder append failed", "error", placeholderErr)
			c.substituteError()
			return
		}
		c.stream(ctx, text)
	}
}

// stream opens the reply stream and folds increments until a terminal
// state is reached.
func (c *Controller) stream(ctx context.Context, text string) {
	stream, err := c.session.SendStream(ctx, text)
	if err != nil {
		c.logger.Warn("reply stream failed to open", "error", err)
		c.substituteError()
		return
	}

	// Stream is open: drop the placeholder for a fresh empty reply
	// before the first fold.
	if err := c.store.ReplaceLast(conversation.Message{Sender: conversation.SenderBot}); err != nil {
		c.logger.Error("placeholder replace failed", "error", err)
		c.substituteError()
		return
	}

	increments := 0
	for inc := range stream {
		if inc.Err != nil {
			c.logger.Warn("reply stream failed",
				"error", inc.Err,
				"increments", increments)
			c.substituteError()
			return
		}
		// Empty increments fold as no-ops; arrival order is fold order.
		c.store.FoldIncrement(inc.Text)
		increments++
	}

	c.logger.Debug("exchange completed", "increments", increments)
}

// substituteError replaces the last log entry with the fixed error text,
// discarding any partial reply. Failures are absorbed here; nothing
// propagates to the submitter.
func (c *Controller) substituteError() {
	err := c.store.ReplaceLast(conversation.Message{
		Text:   c.errorText,
		Sender: conversation.SenderBot,
	})
	if err != nil {
		c.logger.Error("error substitution failed", "error", err)
	}
}
