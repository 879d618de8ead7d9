// ABOUTME: HTTP handlers for the embeddable chat widget surface
// ABOUTME: Serves the demo page, browser assets, and the JSON/SSE API

package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/2389/familiar/internal/conversation"
)

// Submitter is what the widget needs from the exchange layer: a guard
// verdict now, the reply later through the store's stream.
type Submitter interface {
	SubmitAsync(ctx context.Context, raw string) bool
}

// Options are the fixed, user-facing widget texts plus the mount prefix.
// They are set once at startup; there is no runtime reconfiguration.
type Options struct {
	Title       string
	Placeholder string
	MountPath   string
}

// Widget wires the conversation store and the exchange controller to HTTP.
type Widget struct {
	store     *conversation.Store
	submitter Submitter
	opts      Options

	// lifecycle scopes accepted exchanges. Deliberately not the request
	// context: a visitor closing the tab must not abort an in-flight
	// reply, because the busy flag only clears on a terminal state.
	lifecycle context.Context

	logger *slog.Logger
}

// New creates the widget surface. lifecycle should be the process signal
// context; opts fields fall back to nothing, callers pass complete config.
func New(lifecycle context.Context, store *conversation.Store, submitter Submitter, opts Options, logger *slog.Logger) *Widget {
	if logger == nil {
		logger = slog.Default()
	}
	return &Widget{
		store:     store,
		submitter: submitter,
		opts:      opts,
		lifecycle: lifecycle,
		logger:    logger.With("component", "widget"),
	}
}

// RegisterRoutes attaches all widget routes to mux under the mount prefix.
// The API routes are wrapped in permissive CORS middleware so the widget
// works embedded on any origin.
func (wg *Widget) RegisterRoutes(mux *http.ServeMux) {
	prefix := strings.TrimSuffix(wg.opts.MountPath, "/")

	corsMW := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})

	mux.HandleFunc(prefix+"/", wg.handleDemo)
	mux.HandleFunc(prefix+"/widget.js", wg.handleAsset("assets/widget.js", "application/javascript; charset=utf-8"))
	mux.HandleFunc(prefix+"/widget.css", wg.handleAsset("assets/widget.css", "text/css; charset=utf-8"))
	mux.HandleFunc(prefix+"/help", wg.handleHelp)
	mux.Handle(prefix+"/api/state", corsMW(http.HandlerFunc(wg.handleState)))
	mux.Handle(prefix+"/api/messages", corsMW(http.HandlerFunc(wg.handleSubmit)))
	mux.Handle(prefix+"/api/stream", corsMW(http.HandlerFunc(wg.handleStream)))
}

// SubmitRequest is the JSON request body for POST {prefix}/api/messages.
type SubmitRequest struct {
	Text string `json:"text"`
}

// SubmitResponse is the JSON response for POST {prefix}/api/messages.
// Rejected submissions are not errors: the widget greys its input out
// while busy, and a rejection just confirms nothing changed.
type SubmitResponse struct {
	Accepted bool `json:"accepted"`
	Busy     bool `json:"busy"`
}

// MessageResponse is the JSON shape of one log entry.
type MessageResponse struct {
	Text     string `json:"text"`
	Sender   string `json:"sender"`
	IsTyping bool   `json:"is_typing"`
}

// StateResponse is the JSON shape of one conversation snapshot, used both
// by GET {prefix}/api/state and as SSE event data on the stream.
type StateResponse struct {
	Version  uint64            `json:"version"`
	Messages []MessageResponse `json:"messages"`
	Busy     bool              `json:"busy"`
}

func stateResponse(state conversation.State) StateResponse {
	messages := make([]MessageResponse, len(state.Messages))
	for i, msg := range state.Messages {
		messages[i] = MessageResponse{
			Text:     msg.Text,
			Sender:   string(msg.Sender),
			IsTyping: msg.IsTyping,
		}
	}
	return StateResponse{
		Version:  state.Version,
		Messages: messages,
		Busy:     state.Busy,
	}
}

// handleDemo renders the host page: the widget running live plus the
// copy-paste embed snippet.
func (wg *Widget) handleDemo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// The trailing-slash pattern catches every unmatched subpath too.
	prefix := strings.TrimSuffix(wg.opts.MountPath, "/")
	if r.URL.Path != prefix+"/" && r.URL.Path != prefix {
		http.NotFound(w, r)
		return
	}

	data := struct {
		Title       string
		Placeholder string
		Prefix      string
	}{
		Title:       wg.opts.Title,
		Placeholder: wg.opts.Placeholder,
		Prefix:      prefix,
	}

	tmpl := template.Must(template.ParseFS(templateFS, "templates/demo.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		wg.logger.Error("failed to render demo page", "error", err)
	}
}

// handleAsset serves one embedded browser asset with a fixed content type.
func (wg *Widget) handleAsset(path, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		data, err := assetsFS.ReadFile(path)
		if err != nil {
			wg.logger.Error("failed to read embedded asset", "path", path, "error", err)
			http.Error(w, "asset not found", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Write(data)
	}
}

// handleState answers GET {prefix}/api/state with the current snapshot.
func (wg *Widget) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stateResponse(wg.store.State()))
}

// handleSubmit answers POST {prefix}/api/messages. The verdict comes back
// immediately; the reply streams through the store, not this response.
func (wg *Widget) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		wg.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	accepted := wg.submitter.SubmitAsync(wg.lifecycle, req.Text)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SubmitResponse{
		Accepted: accepted,
		Busy:     wg.store.State().Busy,
	})
}

// handleStream answers GET {prefix}/api/stream with an SSE feed: the
// current snapshot immediately, then one event per store mutation until
// the client disconnects.
func (wg *Widget) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		wg.logger.Error("streaming not supported")
		wg.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Subscribe before the initial snapshot so no mutation falls in the
	// gap; versions let the client discard the overlap.
	events, subID := wg.store.Subscribe(r.Context())
	defer wg.store.Unsubscribe(subID)

	wg.writeSSEEvent(w, "state", stateResponse(wg.store.State()))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case state, ok := <-events:
			if !ok {
				return
			}
			wg.writeSSEEvent(w, "state", stateResponse(state))
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (wg *Widget) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		wg.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sendJSONError writes a JSON error response.
func (wg *Widget) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
