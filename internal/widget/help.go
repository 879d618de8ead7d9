// ABOUTME: Help documentation handler rendering embedded markdown topics
// ABOUTME: Topics cover embedding the widget and configuring the server

package widget

import (
	"bytes"
	"html/template"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
)

// helpTopic represents one help documentation page.
type helpTopic struct {
	Slug   string
	Title  string
	Active bool
}

// helpTopicOrder pins the sidebar order; unknown topics sort last by slug.
var helpTopicOrder = map[string]int{
	"getting-started": 1,
	"embedding":       2,
	"configuration":   3,
}

// handleHelp renders GET {prefix}/help: a topic list plus the selected
// topic's markdown converted to HTML.
func (wg *Widget) handleHelp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	selectedTopic := r.URL.Query().Get("topic")
	if selectedTopic == "" {
		selectedTopic = "getting-started"
	}

	entries, err := helpDocsFS.ReadDir("docs/help")
	if err != nil {
		wg.logger.Error("failed to read help docs", "error", err)
		http.Error(w, "Failed to load help", http.StatusInternalServerError)
		return
	}

	var topics []helpTopic
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		slug := strings.TrimSuffix(entry.Name(), ".md")
		topics = append(topics, helpTopic{
			Slug:   slug,
			Title:  formatHelpTitle(slug),
			Active: slug == selectedTopic,
		})
	}

	sort.Slice(topics, func(i, j int) bool {
		orderI, okI := helpTopicOrder[topics[i].Slug]
		orderJ, okJ := helpTopicOrder[topics[j].Slug]
		if !okI {
			orderI = 100
		}
		if !okJ {
			orderJ = 100
		}
		if orderI != orderJ {
			return orderI < orderJ
		}
		return topics[i].Slug < topics[j].Slug
	})

	mdPath := filepath.Join("docs/help", selectedTopic+".md")
	mdContent, err := helpDocsFS.ReadFile(mdPath)
	if err != nil {
		wg.logger.Error("failed to read help topic", "topic", selectedTopic, "error", err)
		mdContent = []byte("# Not Found\n\nThis help topic could not be found.")
	}

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert(mdContent, &htmlBuf); err != nil {
		wg.logger.Error("failed to convert markdown", "error", err)
		htmlBuf.WriteString("<p>Failed to render help content.</p>")
	}

	data := struct {
		Title   string
		Prefix  string
		Topics  []helpTopic
		Content template.HTML
	}{
		Title:   wg.opts.Title,
		Prefix:  strings.TrimSuffix(wg.opts.MountPath, "/"),
		Topics:  topics,
		Content: template.HTML(htmlBuf.String()),
	}

	tmpl := template.Must(template.ParseFS(templateFS, "templates/help.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		wg.logger.Error("failed to render help page", "error", err)
	}
}

// formatHelpTitle converts a slug to a display title.
func formatHelpTitle(slug string) string {
	words := strings.Split(slug, "-")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
