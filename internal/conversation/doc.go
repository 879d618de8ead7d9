// Package conversation holds the widget's conversation state: the ordered
// message log and the busy flag that serializes exchanges.
//
// # Overview
//
// The Store is the single authority over conversation state. Everything a
// renderer needs lives in one immutable State snapshot:
//
//	{Version, Messages, Busy}
//
// Every mutation produces a new snapshot with a fresh backing array and a
// bumped version, then publishes it to all subscribers. Observers compare
// versions to detect change; they never deep-compare logs and never see a
// log mutate underneath them.
//
// # Store
//
// A store starts with a greeting so the log is never empty:
//
//	store := conversation.NewStore("Hi! How can I help you today?", logger)
//
// Mutations, in the order an exchange uses them:
//
//   - AppendUser(text): append the visitor's message
//   - AppendPlaceholder(): append the typing indicator (at most one,
//     always last)
//   - ReplaceLast(msg): swap the final entry (placeholder drop, error
//     substitution)
//   - FoldIncrement(delta): concatenate streamed text onto the final entry
//
// # Busy Flag
//
// Acquire and Release gate exchanges. Acquire is an atomic check-and-set:
// it returns false while an exchange is in flight, and the caller treats
// that as a silent rejection. The flag is part of the published State so
// renderers can disable input the moment an exchange starts.
//
// # Broadcasting
//
// Renderers subscribe for snapshots:
//
//	ch, subID := store.Subscribe(ctx)
//
// Publishing never blocks: slow subscribers lose intermediate snapshots,
// which is safe because each snapshot is self-contained.
package conversation
