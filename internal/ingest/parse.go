package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Parse reads raw file content and produces its linear text form, dispatched
// by filename extension: plain text and Markdown are returned verbatim, PDF
// pages are concatenated, and JSON is inspected for a ChatGPT export schema
// (a list of conversations each with a "mapping" tree); anything else that
// is valid JSON collapses to its compact stringified form.
func Parse(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", "":
		return string(data), nil
	case ".pdf":
		return parsePDF(data)
	case ".json":
		return parseJSON(data)
	default:
		return string(data), nil
	}
}

func parsePDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("ingest: open pdf: %w", err)
	}

	var buf strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}
	return buf.String(), nil
}

// chatGPTMessage mirrors the subset of a ChatGPT export's mapping-node
// shape this parser needs.
type chatGPTMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	Content struct {
		Parts []any `json:"parts"`
	} `json:"content"`
}

type chatGPTMappingNode struct {
	Message *chatGPTMessage `json:"message"`
}

type chatGPTConversation struct {
	Title   string                         `json:"title"`
	Mapping map[string]chatGPTMappingNode `json:"mapping"`
}

func parseJSON(data []byte) (string, error) {
	var conversations []chatGPTConversation
	if err := json.Unmarshal(data, &conversations); err == nil && isChatGPTExport(conversations) {
		return renderChatGPTExport(conversations), nil
	}

	// Unknown JSON shape: collapse to its compact stringified form rather
	// than failing the ingest outright.
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", fmt.Errorf("ingest: parse json: %w", err)
	}
	collapsed, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("ingest: stringify json: %w", err)
	}
	return string(collapsed), nil
}

// isChatGPTExport reports whether any conversation actually carries a
// non-empty mapping tree, distinguishing a real export from an arbitrary
// JSON array that happens to unmarshal into the same shape.
func isChatGPTExport(conversations []chatGPTConversation) bool {
	for _, c := range conversations {
		if len(c.Mapping) > 0 {
			return true
		}
	}
	return false
}

func renderChatGPTExport(conversations []chatGPTConversation) string {
	var buf strings.Builder
	for _, conv := range conversations {
		title := conv.Title
		if title == "" {
			title = "Unknown Conversation"
		}
		fmt.Fprintf(&buf, "\n\n=== Conversation: %s ===\n", title)
		for _, node := range conv.Mapping {
			if node.Message == nil {
				continue
			}
			var parts []string
			for _, p := range node.Message.Content.Parts {
				if s, ok := p.(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
			content := strings.Join(parts, " ")
			if content == "" {
				continue
			}
			fmt.Fprintf(&buf, "[%s]: %s\n", node.Message.Author.Role, content)
		}
	}
	return buf.String()
}
