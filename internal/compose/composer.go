// Package compose implements the chat input: a multi-line text area that
// grows with its content and submits on a key chord.
package compose

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/omochice/sabi-chat/internal/chat"
)

const (
	// MinHeight is the baseline height in lines.
	MinHeight = 1
	// DefaultMaxHeight bounds auto-height growth.
	DefaultMaxHeight = 8
)

// Sender receives submitted text. *chat.Manager implements it.
type Sender interface {
	Send(text string)
}

// KeyMap holds the composer's chords.
type KeyMap struct {
	Submit  key.Binding
	Newline key.Binding
}

// DefaultKeyMap submits on enter and inserts a newline on alt+enter or ctrl+j.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Newline: key.NewBinding(
			key.WithKeys("alt+enter", "ctrl+j"),
			key.WithHelp("alt+enter", "new line"),
		),
	}
}

// Composer owns the input value and its height. Its submit affordance is
// driven by the connection manager through SetSendEnabled.
type Composer struct {
	input     textarea.Model
	sender    Sender
	keys      KeyMap
	enabled   bool
	maxHeight int
}

var _ chat.Affordance = (*Composer)(nil)

// New creates a focused, empty composer that submits to sender. Sending
// starts disabled.
func New(sender Sender, width int) *Composer {
	keys := DefaultKeyMap()

	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.KeyMap.InsertNewline = keys.Newline
	// Height is bounded here, not by the textarea, which would also cap
	// the number of lines.
	ta.MaxHeight = 0
	ta.SetWidth(width)
	ta.Focus()

	c := &Composer{
		input:     ta,
		sender:    sender,
		keys:      keys,
		maxHeight: DefaultMaxHeight,
	}
	c.resize()
	return c
}

// SetSender replaces the receiver of submitted text.
func (c *Composer) SetSender(s Sender) { c.sender = s }

// SetSendEnabled implements chat.Affordance.
func (c *Composer) SetSendEnabled(enabled bool) { c.enabled = enabled }

// Enabled reports whether submit is currently allowed.
func (c *Composer) Enabled() bool { return c.enabled }

// SetMaxHeight bounds auto-height growth.
func (c *Composer) SetMaxHeight(h int) {
	if h < MinHeight {
		h = MinHeight
	}
	c.maxHeight = h
	c.resize()
}

// SetWidth resizes the input and refits its height to the new wrapping.
func (c *Composer) SetWidth(w int) {
	c.input.SetWidth(w)
	c.resize()
}

// Update handles one key or other message. The submit chord triggers Submit;
// everything else edits the text.
func (c *Composer) Update(msg tea.Msg) tea.Cmd {
	if km, ok := msg.(tea.KeyMsg); ok && key.Matches(km, c.keys.Submit) {
		c.Submit()
		return nil
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	c.resize()
	return cmd
}

// Submit hands the current value to the sender, then clears the input and
// resets its height whether or not anything was sent. It does nothing while
// sending is disabled.
func (c *Composer) Submit() {
	if !c.enabled {
		return
	}
	if c.sender != nil {
		c.sender.Send(strings.TrimSpace(c.input.Value()))
	}
	c.input.Reset()
	c.resize()
}

func (c *Composer) Value() string { return c.input.Value() }

// SetValue replaces the content and refits the height.
func (c *Composer) SetValue(s string) {
	c.input.SetValue(s)
	c.resize()
}

// Height returns the current visible height in lines.
func (c *Composer) Height() int { return c.input.Height() }

func (c *Composer) View() string { return c.input.View() }

// resize resets the height to the baseline and grows it to fit the content,
// counting soft-wrapped rows.
func (c *Composer) resize() {
	c.input.SetHeight(MinHeight)
	h := 0
	for _, line := range strings.Split(c.input.Value(), "\n") {
		h += wrappedRows(line, c.input.Width())
	}
	if h > c.maxHeight {
		h = c.maxHeight
	}
	if h > MinHeight {
		c.input.SetHeight(h)
	}
}

// wrappedRows is the number of rows the textarea word-wraps line into at the
// given width. The last row keeps a cell free for the cursor.
func wrappedRows(line string, width int) int {
	if width < 1 {
		return 1
	}
	rows, rowW, spaces := 1, 0, 0
	var word strings.Builder
	for _, r := range line {
		if unicode.IsSpace(r) {
			spaces++
		} else {
			word.WriteRune(r)
		}

		wordW := lipgloss.Width(word.String())
		switch {
		case spaces > 0:
			if rowW+wordW+spaces > width {
				rows++
				rowW = 0
			}
			rowW += wordW + spaces
			spaces = 0
			word.Reset()
		case wordW+lipgloss.Width(string(r)) > width:
			// a word wider than the row is hard-wrapped
			if rowW > 0 {
				rows++
			}
			rowW = wordW
			word.Reset()
		}
	}
	if rowW+lipgloss.Width(word.String())+spaces >= width {
		rows++
	}
	return rows
}
