// ABOUTME: Tests for the exchange Controller state machine
// ABOUTME: Covers guards, single-flight, fold ordering, error substitution, busy release

package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/familiar/internal/completion"
	"github.com/2389/familiar/internal/conversation"
)

const testGreeting = "Hi! How can I help you today?"

// mockSession scripts one increment list per expected call. Tests needing
// finer control (blocking, failures at open) override send directly.
type mockSession struct {
	mu      sync.Mutex
	calls   []string
	scripts [][]completion.Increment
	send    func(text string) (<-chan completion.Increment, error)
}

func (m *mockSession) SendStream(_ context.Context, text string) (<-chan completion.Increment, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	idx := len(m.calls) - 1
	m.mu.Unlock()

	if m.send != nil {
		return m.send(text)
	}

	var script []completion.Increment
	if idx < len(m.scripts) {
		script = m.scripts[idx]
	}
	return streamOf(script...), nil
}

func (m *mockSession) sentTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// streamOf returns a pre-filled, already-closed increment channel.
func streamOf(incs ...completion.Increment) <-chan completion.Increment {
	ch := make(chan completion.Increment, len(incs))
	for _, inc := range incs {
		ch <- inc
	}
	close(ch)
	return ch
}

func incs(texts ...string) []completion.Increment {
	out := make([]completion.Increment, len(texts))
	for i, text := range texts {
		out[i] = completion.Increment{Text: text}
	}
	return out
}

func newTestController(t *testing.T, session completion.Session) (*Controller, *conversation.Store) {
	t.Helper()
	store := conversation.NewStore(testGreeting, nil)
	t.Cleanup(store.Close)
	return New(store, session, "", nil), store
}

func waitDone(t *testing.T, done <-chan bool) bool {
	t.Helper()
	select {
	case accepted := <-done:
		return accepted
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exchange to finish")
		return false
	}
}

func TestController_HappyPath(t *testing.T) {
	session := &mockSession{scripts: [][]completion.Increment{incs("Hi", " there")}}
	ctrl, store := newTestController(t, session)

	accepted := ctrl.Submit(t.Context(), "Hello")
	require.True(t, accepted)

	state := store.State()
	require.Len(t, state.Messages, 3)
	assert.Equal(t, conversation.Message{Text: "Hello", Sender: conversation.SenderUser}, state.Messages[1])
	assert.Equal(t, conversation.Message{Text: "Hi there", Sender: conversation.SenderBot}, state.Messages[2])
	assert.False(t, state.Busy)
	assert.Equal(t, []string{"Hello"}, session.sentTexts())
}

func TestController_TrimsInputBeforeSend(t *testing.T) {
	session := &mockSession{scripts: [][]completion.Increment{incs("ok")}}
	ctrl, store := newTestController(t, session)

	require.True(t, ctrl.Submit(t.Context(), "  Hello  \n"))

	assert.Equal(t, "Hello", store.State().Messages[1].Text)
	assert.Equal(t, []string{"Hello"}, session.sentTexts())
}

func TestController_EmptyInputIsSilentNoOp(t *testing.T) {
	session := &mockSession{}
	ctrl, store := newTestController(t, session)

	before := store.State().Version

	for _, input := range []string{"", "   ", "\t\n  "} {
		assert.False(t, ctrl.Submit(t.Context(), input), "input %q must be rejected", input)
	}

	// No log entry, no busy blip: the version never moved
	assert.Equal(t, before, store.State().Version)
	assert.Empty(t, session.sentTexts())
}

func TestController_NilSessionIsSilentNoOp(t *testing.T) {
	store := conversation.NewStore(testGreeting, nil)
	defer store.Close()
	ctrl := New(store, nil, "", nil)

	before := store.State().Version

	assert.False(t, ctrl.Submit(t.Context(), "Hello"))
	assert.False(t, ctrl.Submit(t.Context(), "Anyone there?"))

	assert.Equal(t, before, store.State().Version, "rejected submissions must not touch state")
}

func TestController_SecondSubmissionRejectedWhileBusy(t *testing.T) {
	gate := make(chan struct{})
	opened := make(chan struct{})
	session := &mockSession{}
	session.send = func(string) (<-chan completion.Increment, error) {
		out := make(chan completion.Increment)
		go func() {
			defer close(out)
			<-gate
			out <- completion.Increment{Text: "answer to A"}
		}()
		close(opened)
		return out, nil
	}
	ctrl, store := newTestController(t, session)

	done := make(chan bool, 1)
	go func() { done <- ctrl.Submit(context.Background(), "A") }()

	select {
	case <-opened:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream to open")
	}

	assert.False(t, ctrl.Submit(t.Context(), "B"), "second submission must be rejected while busy")

	close(gate)
	require.True(t, waitDone(t, done))

	state := store.State()
	require.Len(t, state.Messages, 3)
	assert.Equal(t, "A", state.Messages[1].Text)
	assert.Equal(t, "answer to A", state.Messages[2].Text)
	assert.Equal(t, []string{"A"}, session.sentTexts(), "B must never reach the session")
	assert.False(t, state.Busy)
}

func TestController_OpenFailureSubstitutesError(t *testing.T) {
	session := &mockSession{}
	session.send = func(string) (<-chan completion.Increment, error) {
		return nil, errors.New("endpoint unreachable")
	}
	ctrl, store := newTestController(t, session)

	accepted := ctrl.Submit(t.Context(), "X")
	require.True(t, accepted, "a guarded-in submission is accepted even when the stream fails")

	state := store.State()
	require.Len(t, state.Messages, 3)
	assert.Equal(t, conversation.Message{Text: "X", Sender: conversation.SenderUser}, state.Messages[1])
	assert.Equal(t, conversation.Message{Text: DefaultErrorText, Sender: conversation.SenderBot}, state.Messages[2])
	assert.False(t, state.Busy)
}

func TestController_InBandOpenFailureSubstitutesError(t *testing.T) {
	// Some providers report open-time failures as the first in-band
	// increment instead of an error return.
	session := &mockSession{scripts: [][]completion.Increment{{
		{Err: errors.New("quota exhausted")},
	}}}
	ctrl, store := newTestController(t, session)

	require.True(t, ctrl.Submit(t.Context(), "X"))

	last, _ := store.State().Last()
	assert.Equal(t, DefaultErrorText, last.Text)
	assert.Equal(t, conversation.SenderBot, last.Sender)
	assert.False(t, last.IsTyping)
	assert.False(t, store.State().Busy)
}

func TestController_MidStreamFailureDiscardsPartialText(t *testing.T) {
	session := &mockSession{scripts: [][]completion.Increment{{
		{Text: "Hel"},
		{Text: "lo"},
		{Err: errors.New("connection reset")},
	}}}
	ctrl, store := newTestController(t, session)

	require.True(t, ctrl.Submit(t.Context(), "Hello"))

	state := store.State()
	require.Len(t, state.Messages, 3)
	last, _ := state.Last()
	assert.Equal(t, DefaultErrorText, last.Text, "partial text must be discarded, not kept")
	assert.False(t, state.Busy)
}

func TestController_CustomErrorText(t *testing.T) {
	session := &mockSession{}
	session.send = func(string) (<-chan completion.Increment, error) {
		return nil, errors.New("boom")
	}
	store := conversation.NewStore(testGreeting, nil)
	defer store.Close()
	ctrl := New(store, session, "Das hat leider nicht geklappt.", nil)

	require.True(t, ctrl.Submit(t.Context(), "Hallo"))

	last, _ := store.State().Last()
	assert.Equal(t, "Das hat leider nicht geklappt.", last.Text)
}

func TestController_EmptyIncrementsAreHarmless(t *testing.T) {
	session := &mockSession{scripts: [][]completion.Increment{incs("a", "", "b")}}
	ctrl, store := newTestController(t, session)

	require.True(t, ctrl.Submit(t.Context(), "Q"))

	last, _ := store.State().Last()
	assert.Equal(t, "ab", last.Text)
	assert.False(t, last.IsTyping)
}

func TestController_PlaceholderVisibleUntilStreamOpens(t *testing.T) {
	inSend := make(chan struct{})
	gate := make(chan struct{})
	session := &mockSession{}
	session.send = func(string) (<-chan completion.Increment, error) {
		close(inSend)
		<-gate
		return streamOf(incs("ok")...), nil
	}
	ctrl, store := newTestController(t, session)

	done := make(chan bool, 1)
	go func() { done <- ctrl.Submit(context.Background(), "Q") }()

	select {
	case <-inSend:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream open to start")
	}

	// While the open is pending the placeholder is the last entry
	state := store.State()
	require.Len(t, state.Messages, 3)
	last, _ := state.Last()
	assert.True(t, last.IsTyping)
	assert.Equal(t, conversation.SenderBot, last.Sender)
	assert.Empty(t, last.Text)
	assert.True(t, state.Busy)

	typing := 0
	for _, msg := range state.Messages {
		if msg.IsTyping {
			typing++
		}
	}
	assert.Equal(t, 1, typing, "at most one placeholder, ever")

	close(gate)
	require.True(t, waitDone(t, done))

	last, _ = store.State().Last()
	assert.Equal(t, "ok", last.Text)
	assert.False(t, last.IsTyping)
}

func TestController_NotTypingWhileStreaming(t *testing.T) {
	out := make(chan completion.Increment)
	step := make(chan struct{})
	session := &mockSession{}
	session.send = func(string) (<-chan completion.Increment, error) {
		go func() {
			defer close(out)
			for _, delta := range []string{"d1", "d2"} {
				<-step
				out <- completion.Increment{Text: delta}
			}
		}()
		return out, nil
	}
	ctrl, store := newTestController(t, session)

	done := make(chan bool, 1)
	go func() { done <- ctrl.Submit(context.Background(), "Q") }()

	step <- struct{}{}
	require.Eventually(t, func() bool {
		last, _ := store.State().Last()
		return last.Text == "d1"
	}, 5*time.Second, 5*time.Millisecond, "first fold never landed")

	// Mid-stream: reply is growing, typing is off, busy is held
	state := store.State()
	last, _ := state.Last()
	assert.False(t, last.IsTyping, "typing must be cleared before the first fold")
	assert.True(t, state.Busy)

	step <- struct{}{}
	require.True(t, waitDone(t, done))

	last, _ = store.State().Last()
	assert.Equal(t, "d1d2", last.Text)
	assert.False(t, store.State().Busy)
}

func TestController_SequentialExchangesKeepOrder(t *testing.T) {
	session := &mockSession{scripts: [][]completion.Increment{
		incs("first answer"),
		incs("second answer"),
	}}
	ctrl, store := newTestController(t, session)

	require.True(t, ctrl.Submit(t.Context(), "first question"))
	require.True(t, ctrl.Submit(t.Context(), "second question"))

	state := store.State()
	require.Len(t, state.Messages, 5)
	assert.Equal(t, testGreeting, state.Messages[0].Text)
	assert.Equal(t, "first question", state.Messages[1].Text)
	assert.Equal(t, "first answer", state.Messages[2].Text)
	assert.Equal(t, "second question", state.Messages[3].Text)
	assert.Equal(t, "second answer", state.Messages[4].Text)
	assert.Equal(t, []string{"first question", "second question"}, session.sentTexts())
}

func TestController_RecoversAfterFailure(t *testing.T) {
	session := &mockSession{}
	failed := false
	session.send = func(string) (<-chan completion.Increment, error) {
		if !failed {
			failed = true
			return nil, errors.New("first call fails")
		}
		return streamOf(incs("recovered")...), nil
	}
	ctrl, store := newTestController(t, session)

	require.True(t, ctrl.Submit(t.Context(), "doomed"))
	require.True(t, ctrl.Submit(t.Context(), "retry"), "busy must be released after a failure")

	state := store.State()
	require.Len(t, state.Messages, 5)
	assert.Equal(t, DefaultErrorText, state.Messages[2].Text)
	assert.Equal(t, "recovered", state.Messages[4].Text)
	assert.False(t, state.Busy)
}

func TestController_StreamWithNoIncrementsCompletes(t *testing.T) {
	session := &mockSession{scripts: [][]completion.Increment{{}}}
	ctrl, store := newTestController(t, session)

	require.True(t, ctrl.Submit(t.Context(), "Q"))

	state := store.State()
	require.Len(t, state.Messages, 3)
	last, _ := state.Last()
	assert.Empty(t, last.Text)
	assert.False(t, last.IsTyping)
	assert.False(t, state.Busy)
}

func TestController_SubmitAsyncVerdictIsImmediate(t *testing.T) {
	gate := make(chan struct{})
	session := &mockSession{}
	session.send = func(string) (<-chan completion.Increment, error) {
		<-gate
		return streamOf(incs("done")...), nil
	}
	ctrl, store := newTestController(t, session)

	require.True(t, ctrl.SubmitAsync(context.Background(), "Q"))

	// Before the stream even opens, the synchronous part of the exchange
	// is already visible: busy held, user turn and placeholder appended.
	state := store.State()
	require.Len(t, state.Messages, 3)
	assert.True(t, state.Busy)
	assert.Equal(t, "Q", state.Messages[1].Text)
	last, _ := state.Last()
	assert.True(t, last.IsTyping)

	assert.False(t, ctrl.SubmitAsync(context.Background(), "R"), "single-flight must hold across async submissions")

	close(gate)
	require.Eventually(t, func() bool {
		return !store.State().Busy
	}, 5*time.Second, 5*time.Millisecond, "exchange never reached a terminal state")

	last, _ = store.State().Last()
	assert.Equal(t, "done", last.Text)
	assert.Equal(t, []string{"Q"}, session.sentTexts())
}

func TestController_SubmitAsyncRejectionsAreSilent(t *testing.T) {
	session := &mockSession{}
	ctrl, store := newTestController(t, session)

	before := store.State().Version
	assert.False(t, ctrl.SubmitAsync(t.Context(), "   "))
	assert.Equal(t, before, store.State().Version)
	assert.Empty(t, session.sentTexts())
}
