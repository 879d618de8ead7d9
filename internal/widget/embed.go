// ABOUTME: Embeds the widget's templates, browser assets, and help docs
// ABOUTME: Everything the HTTP surface serves ships inside the binary

package widget

import "embed"

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets/widget.js assets/widget.css
var assetsFS embed.FS

//go:embed docs/help/*.md
var helpDocsFS embed.FS
