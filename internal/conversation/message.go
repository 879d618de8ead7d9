// ABOUTME: Core data types for the conversation log
// ABOUTME: Defines Message, Sender and the immutable State snapshot

package conversation

// Sender identifies who authored a message.
type Sender string

const (
	// SenderUser marks messages typed by the visitor.
	SenderUser Sender = "user"
	// SenderBot marks messages produced by the completion service
	// (including the greeting and error substitutions).
	SenderBot Sender = "bot"
)

// Message is a single entry in the conversation log. Messages are held by
// value and never mutated after they appear in a published State; the store
// replaces the last entry wholesale instead.
type Message struct {
	Text   string
	Sender Sender

	// IsTyping marks the transient placeholder shown between submitting a
	// message and receiving the first streamed increment. At most one
	// message carries it, always the last entry.
	IsTyping bool
}

// State is an immutable snapshot of the conversation: the ordered message
// log plus the busy flag, stamped with a monotonically increasing version.
// Every store mutation produces a new State with a fresh backing array, so
// observers compare versions instead of deep-comparing logs.
type State struct {
	Version  uint64
	Messages []Message
	Busy     bool
}

// Last returns the final message in the log. It reports false when the log
// is empty (only possible for a zero-value State, never for one published
// by a store).
func (s State) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
