package viewer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"mailwatch/models"
)

// ANSI256 colors per email type.
const (
	colorSensitive = 203 // red
	colorAlert     = 208 // orange
	colorNonUrgent = 71  // green
	colorUnknown   = 245 // gray
)

// ShouldUseColor returns true when ANSI colors should be used on f.
// It respects NO_COLOR, CLICOLOR_FORCE, CLICOLOR, and TTY detection.
func ShouldUseColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Renderer prints viewer snapshots as plain text.
type Renderer struct {
	w     io.Writer
	color bool
	// Clear redraws from the top of the screen on every Render.
	Clear bool
}

func NewRenderer(w io.Writer, color bool) *Renderer {
	return &Renderer{w: w, color: color}
}

// Render writes the connection header, the email list and the last notice.
func (r *Renderer) Render(s State) error {
	var b strings.Builder
	if r.Clear {
		b.WriteString("\x1b[H\x1b[2J")
	}

	status := "○ Disconnected"
	if s.Connected {
		status = "● Connected"
	}
	b.WriteString("Email Monitor  ")
	b.WriteString(status)
	if !s.LastUpdate.IsZero() {
		fmt.Fprintf(&b, "  Last update: %s", s.LastUpdate.Format("15:04:05"))
	}
	b.WriteString("\n")

	if s.LastEvent != nil {
		ev := s.LastEvent.Envelope
		fmt.Fprintf(&b, "Relay: [%s] %s", ev.Type, ev.Message)
		if !s.RelayConnected {
			b.WriteString("  (relay offline)")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(s.Emails) == 0 {
		b.WriteString("No email records\nNew emails will appear here\n")
	}
	for _, rec := range s.Emails {
		r.writeEmail(&b, rec)
	}

	if s.Notice != "" {
		fmt.Fprintf(&b, "\n%s\n", s.Notice)
	}

	_, err := io.WriteString(r.w, b.String())
	return err
}

// RenderWords writes one word list.
func (r *Renderer) RenderWords(list models.WordList, ls WordListState) error {
	var b strings.Builder
	if list == models.SensitiveList {
		fmt.Fprintf(&b, "Default sensitive words (%d):\n", len(ls.Default))
		writeWords(&b, ls.Default)
		fmt.Fprintf(&b, "Custom sensitive words (%d):\n", len(ls.Current))
		writeWords(&b, ls.Current)
	} else {
		fmt.Fprintf(&b, "Watch words (%d):\n", len(ls.Current))
		writeWords(&b, ls.Current)
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

func (r *Renderer) writeEmail(b *strings.Builder, rec models.EmailRecord) {
	label := fmt.Sprintf("%s %s", typeIcon(rec.Type), displayType(rec.Type))
	fmt.Fprintf(b, "%s  %s\n", r.paint(label, typeColor(rec.Type)), rec.Timestamp)
	fmt.Fprintf(b, "  %s\n", rec.Title)
	if rec.Reason != "" {
		fmt.Fprintf(b, "  %s\n", rec.Reason)
	}
	if len(rec.MatchedWatchWords) > 0 {
		fmt.Fprintf(b, "  Watch words matched: %s\n", strings.Join(rec.MatchedWatchWords, ", "))
	}
	if rec.BodyPreview != "" {
		fmt.Fprintf(b, "  > %s\n", strings.ReplaceAll(rec.BodyPreview, "\n", " "))
	}
	b.WriteString("\n")
}

func (r *Renderer) paint(s string, color int) string {
	if !r.color {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

func writeWords(b *strings.Builder, words []string) {
	if len(words) == 0 {
		b.WriteString("  (none)\n")
		return
	}
	for _, w := range words {
		fmt.Fprintf(b, "  - %s\n", w)
	}
}

func displayType(t models.EmailType) string {
	if t == "" {
		return "Unknown"
	}
	return string(t)
}

func typeColor(t models.EmailType) int {
	switch t {
	case models.EmailTypeSensitive:
		return colorSensitive
	case models.EmailTypeAlert:
		return colorAlert
	case models.EmailTypeNonUrgent:
		return colorNonUrgent
	}
	return colorUnknown
}

func typeIcon(t models.EmailType) string {
	switch t {
	case models.EmailTypeSensitive:
		return "🔒"
	case models.EmailTypeAlert:
		return "⚠️"
	case models.EmailTypeNonUrgent:
		return "📧"
	}
	return "📄"
}
