// Package render draws the conversation transcript in a terminal.
package render

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/omochice/sabi-chat/internal/chat"
)

// PendingText is shown while a reply is outstanding.
const PendingText = "..."

// Styles holds the per-role look of the transcript.
type Styles struct {
	Label   map[chat.Role]lipgloss.Style
	Body    map[chat.Role]lipgloss.Style
	Link    lipgloss.Style
	Pending lipgloss.Style
}

// DefaultStyles returns the built-in palette.
func DefaultStyles() Styles {
	return Styles{
		Label: map[chat.Role]lipgloss.Style{
			chat.RoleUser:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
			chat.RoleAssistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
			chat.RoleSystem:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8")),
		},
		Body: map[chat.Role]lipgloss.Style{
			chat.RoleUser:      lipgloss.NewStyle(),
			chat.RoleAssistant: lipgloss.NewStyle(),
			chat.RoleSystem:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		},
		Link:    lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("14")),
		Pending: lipgloss.NewStyle().Faint(true),
	}
}

// Transcript is the scrollable, append-only list of turns. It implements
// chat.Renderer and always follows the newest content.
type Transcript struct {
	viewport   viewport.Model
	turns      []chat.Turn
	pending    bool
	hyperlinks bool
	styles     Styles
	width      int
}

var _ chat.Renderer = (*Transcript)(nil)

// NewTranscript creates an empty transcript of the given size, scrolled to
// the bottom.
func NewTranscript(width, height int) *Transcript {
	t := &Transcript{
		viewport:   viewport.New(width, height),
		hyperlinks: true,
		styles:     DefaultStyles(),
		width:      width,
	}
	t.refresh()
	return t
}

// SetHyperlinks toggles OSC 8 hyperlinks for URL segments.
func (t *Transcript) SetHyperlinks(enabled bool) {
	t.hyperlinks = enabled
	t.refresh()
}

// SetStyles replaces the palette.
func (t *Transcript) SetStyles(s Styles) {
	t.styles = s
	t.refresh()
}

// Append implements chat.Renderer.
func (t *Transcript) Append(turn chat.Turn) {
	t.turns = append(t.turns, turn)
	t.refresh()
}

// ShowPending implements chat.Renderer. Showing an already visible
// placeholder is a no-op.
func (t *Transcript) ShowPending() {
	if t.pending {
		return
	}
	t.pending = true
	t.refresh()
}

// ClearPending implements chat.Renderer.
func (t *Transcript) ClearPending() {
	if !t.pending {
		return
	}
	t.pending = false
	t.refresh()
}

// Turns returns the rendered turns in order.
func (t *Transcript) Turns() []chat.Turn {
	return append([]chat.Turn(nil), t.turns...)
}

// Pending reports whether the placeholder is visible.
func (t *Transcript) Pending() bool { return t.pending }

// SetSize resizes the viewport and re-wraps the content.
func (t *Transcript) SetSize(width, height int) {
	t.width = width
	t.viewport.Width = width
	t.viewport.Height = height
	t.refresh()
}

// AtBottom reports whether the newest line is visible.
func (t *Transcript) AtBottom() bool { return t.viewport.AtBottom() }

// Update handles scroll keys and mouse wheel events.
func (t *Transcript) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	t.viewport, cmd = t.viewport.Update(msg)
	return cmd
}

func (t *Transcript) View() string { return t.viewport.View() }

// Content returns the full rendered transcript, independent of scrolling.
func (t *Transcript) Content() string {
	blocks := make([]string, 0, len(t.turns)+1)
	for _, turn := range t.turns {
		blocks = append(blocks, t.renderTurn(turn))
	}
	if t.pending {
		blocks = append(blocks, t.renderPending())
	}
	return strings.Join(blocks, "\n\n")
}

func (t *Transcript) refresh() {
	t.viewport.SetContent(t.Content())
	t.viewport.GotoBottom()
}

func (t *Transcript) renderTurn(turn chat.Turn) string {
	label := t.styles.Label[turn.Role()].Render(string(turn.Role()))

	var body strings.Builder
	for _, seg := range turn.Segments() {
		if !seg.Link {
			body.WriteString(seg.Text)
			continue
		}
		link := t.styles.Link.Render(seg.Text)
		if t.hyperlinks {
			link = termenv.Hyperlink(seg.Text, link)
		}
		body.WriteString(link)
	}

	style := t.styles.Body[turn.Role()]
	if t.width > 0 {
		style = style.Width(t.width)
	}
	return label + "\n" + style.Render(body.String())
}

func (t *Transcript) renderPending() string {
	label := t.styles.Label[chat.RoleAssistant].Render(string(chat.RoleAssistant))
	return label + "\n" + t.styles.Pending.Render(PendingText)
}
