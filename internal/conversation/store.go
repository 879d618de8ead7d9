// ABOUTME: Store is the single authority over the conversation log and busy flag
// ABOUTME: Every mutation produces a fresh immutable State and notifies subscribers

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPlaceholderExists is returned when a typing placeholder is appended
// while the last entry already is one. This is a logic error in the caller,
// not a runtime condition.
var ErrPlaceholderExists = errors.New("typing placeholder already present")

// ErrEmptyLog is returned when a replace targets an empty log. Stores built
// through NewStore always seed a greeting, so this is unreachable in normal
// operation.
var ErrEmptyLog = errors.New("conversation log is empty")

// Store owns the conversation state: the append-biased message log and the
// busy flag that serializes exchanges. All reads go through immutable State
// snapshots; all mutations bump the version and publish the new State to
// subscribers.
//
// The busy flag lives inside the published State so renderers see log and
// flag atomically, but only the exchange controller calls Acquire/Release.
// Check-and-set under the store mutex keeps the busy handoff atomic.
type Store struct {
	mu          sync.RWMutex
	state       State
	broadcaster *StateBroadcaster
	logger      *slog.Logger
}

// NewStore creates a store seeded with a single greeting message from the
// bot. There is no error path: a store always starts with a non-empty log.
func NewStore(greeting string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		state: State{
			Version:  1,
			Messages: []Message{{Text: greeting, Sender: SenderBot}},
		},
		broadcaster: NewStateBroadcaster(logger),
		logger:      logger.With("component", "conversation"),
	}
}

// State returns the current snapshot. The returned value shares no mutable
// structure with the store; callers may hold it indefinitely.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// AppendUser appends a visitor message to the log. Callers are responsible
// for trimming and rejecting empty input before this point.
func (s *Store) AppendUser(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneLocked(1)
	next = append(next, Message{Text: text, Sender: SenderUser})
	s.advanceLocked(next)
}

// AppendPlaceholder appends the typing placeholder. It fails if the last
// entry already is a placeholder; the log never holds two.
func (s *Store) AppendPlaceholder() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.state.Last(); ok && last.IsTyping {
		return ErrPlaceholderExists
	}

	next := s.cloneLocked(1)
	next = append(next, Message{Sender: SenderBot, IsTyping: true})
	s.advanceLocked(next)
	return nil
}

// ReplaceLast swaps the final log entry for msg. Used to drop the typing
// placeholder for the first streamed text and to substitute the error
// message on a failed exchange.
func (s *Store) ReplaceLast(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.state.Messages) == 0 {
		return ErrEmptyLog
	}

	next := s.cloneLocked(0)
	next[len(next)-1] = msg
	s.advanceLocked(next)
	return nil
}

// FoldIncrement concatenates delta onto the last entry's text, preserving
// its sender and clearing IsTyping. An empty delta still counts as a
// mutation: the version advances and subscribers are notified, so the
// every-mutation-emits rule holds uniformly.
func (s *Store) FoldIncrement(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneLocked(0)
	last := &next[len(next)-1]
	last.Text += delta
	last.IsTyping = false
	s.advanceLocked(next)
}

// Acquire atomically checks and sets the busy flag. It returns false when
// an exchange is already in flight, in which case nothing changes and no
// event is published.
func (s *Store) Acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Busy {
		return false
	}
	s.setBusyLocked(true)
	return true
}

// Release clears the busy flag unconditionally. Safe to call on every
// terminal path; releasing an idle store is a no-op.
func (s *Store) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Busy {
		return
	}
	s.setBusyLocked(false)
}

// Subscribe registers an observer for State snapshots. The returned channel
// receives every subsequent mutation (subject to the broadcaster's drop
// policy for slow consumers) and is closed on unsubscribe. The subscription
// is cleaned up automatically when ctx is cancelled.
func (s *Store) Subscribe(ctx context.Context) (<-chan State, string) {
	return s.broadcaster.Subscribe(ctx)
}

// Unsubscribe removes a subscription by ID and closes its channel.
func (s *Store) Unsubscribe(subID string) {
	s.broadcaster.Unsubscribe(subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (s *Store) Close() {
	s.broadcaster.Close()
}

// cloneLocked copies the message log into a fresh backing array with room
// for extra appends. Must be called with mu held.
func (s *Store) cloneLocked(extra int) []Message {
	next := make([]Message, len(s.state.Messages), len(s.state.Messages)+extra)
	copy(next, s.state.Messages)
	return next
}

// advanceLocked installs a new log, bumps the version, and publishes the
// resulting State. Publishing is non-blocking, so holding mu here is safe
// and keeps delivery order identical to version order. Must be called with
// mu held.
func (s *Store) advanceLocked(messages []Message) {
	s.state = State{
		Version:  s.state.Version + 1,
		Messages: messages,
		Busy:     s.state.Busy,
	}
	s.broadcaster.Publish(s.state)
}

// setBusyLocked flips the busy flag, bumps the version, and publishes. The
// log's backing array is shared with the previous State, which stays safe
// because logs are never mutated in place. Must be called with mu held.
func (s *Store) setBusyLocked(busy bool) {
	s.state = State{
		Version:  s.state.Version + 1,
		Messages: s.state.Messages,
		Busy:     busy,
	}
	s.logger.Debug("busy flag changed", "busy", busy, "version", s.state.Version)
	s.broadcaster.Publish(s.state)
}
