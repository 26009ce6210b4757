package transcript

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"pdf-chat/internal/models"
)

const style = `<style>
.chat-message { padding: 1.5rem; border-radius: 0.5rem; margin-bottom: 1rem; }
.chat-message.user { background-color: #DCF8C6; }
.chat-message.assistant { background-color: #E5E5EA; }
</style>
`

var speakers = map[models.Role]string{
	models.RoleUser:      "You",
	models.RoleAssistant: "Assistant",
}

// Markdown renders the conversation, one section per turn.
func Markdown(history []models.Turn) string {
	var sb strings.Builder
	sb.WriteString("# Chat transcript\n")
	for _, turn := range history {
		fmt.Fprintf(&sb, "\n### %s\n\n%s\n", speaker(turn.Role), strings.TrimSpace(turn.Content))
	}
	return sb.String()
}

// HTML renders each turn's Markdown into a styled message block. Raw HTML in
// turns is not passed through.
func HTML(history []models.Turn) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
	var buf bytes.Buffer
	buf.WriteString(style)
	for i, turn := range history {
		fmt.Fprintf(&buf, "<div class=\"chat-message %s\">\n<div class=\"speaker\">%s</div>\n<div class=\"message\">\n", turn.Role, speaker(turn.Role))
		if err := md.Convert([]byte(turn.Content), &buf); err != nil {
			return "", fmt.Errorf("failed to render turn %d: %w", i, err)
		}
		buf.WriteString("</div>\n</div>\n")
	}
	return buf.String(), nil
}

// Save writes the transcript to path, as HTML for .html/.htm and Markdown otherwise.
func Save(path string, history []models.Turn) error {
	var out string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		var err error
		if out, err = HTML(history); err != nil {
			return err
		}
	default:
		out = Markdown(history)
	}
	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}

func speaker(r models.Role) string {
	if s, ok := speakers[r]; ok {
		return s
	}
	return string(r)
}
