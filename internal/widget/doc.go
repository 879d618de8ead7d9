// Package widget is the HTTP surface of the chat widget: the embeddable
// browser assets, the JSON/SSE API they talk to, and the embedding docs.
//
// # Routes
//
// Everything registers under a configurable mount prefix (default
// /familiar):
//
//	GET  {prefix}/            demo host page with the embed snippet
//	GET  {prefix}/widget.js   embeddable widget script
//	GET  {prefix}/widget.css  widget styles
//	GET  {prefix}/help        embedding and configuration docs
//	GET  {prefix}/api/state   current conversation snapshot as JSON
//	POST {prefix}/api/messages submit a message, answers {accepted, busy}
//	GET  {prefix}/api/stream  SSE feed of conversation snapshots
//
// The API routes carry permissive CORS headers: an embedded widget calls
// them from whatever origin hosts the page.
//
// # Rendering model
//
// The widget script renders purely from State snapshots. It fetches one
// snapshot on load, then follows the SSE stream; each event carries the
// full state, so a dropped event is recovered by the next one. Submissions
// are fire-and-forget: the POST answers as soon as the exchange is
// accepted or rejected, and the reply arrives through the stream.
//
// Accepted exchanges run on the widget's lifecycle context, not the
// request context, so closing the browser tab mid-reply does not abort
// the exchange.
package widget
