package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tale555/dify-chat-webapp/internal/events"
	"github.com/tale555/dify-chat-webapp/internal/history"
)

// ConversationRepository defines the history operations needed by the list
type ConversationRepository interface {
	ListAll() []*history.Conversation
	Delete(id string) error
}

type (
	// conversationsLoadedMsg carries a fresh snapshot of the list
	conversationsLoadedMsg struct {
		conversations []*history.Conversation
	}
	// selectConversationMsg asks the chat view to open a conversation
	selectConversationMsg struct {
		id string
	}
	// newConversationMsg asks the chat view to start a new conversation
	newConversationMsg struct{}
	// conversationDeletedMsg reports the outcome of a delete
	conversationDeletedMsg struct {
		id  string
		err error
	}
	// changeMsg wraps a repository change event
	changeMsg struct {
		event events.ChangeEvent
	}
)

// waitForChange returns a command that delivers the next change event.
// It yields nil once the channel is closed.
func waitForChange(ch <-chan events.ChangeEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return changeMsg{event: ev}
	}
}

// ListModel shows the stored conversations. Row 0 is "New conversation".
type ListModel struct {
	repo ConversationRepository
	now  func() time.Time

	conversations []*history.Conversation
	cursor        int
	current       string
	confirming    bool
	focused       bool
	err           error

	width  int
	height int
}

// NewListModel creates a conversation list backed by repo
func NewListModel(repo ConversationRepository) ListModel {
	return ListModel{
		repo: repo,
		now:  time.Now,
	}
}

// Init loads the conversations
func (m ListModel) Init() tea.Cmd {
	return m.load()
}

func (m ListModel) load() tea.Cmd {
	return func() tea.Msg {
		return conversationsLoadedMsg{conversations: m.repo.ListAll()}
	}
}

// SetCurrent marks id as the active conversation
func (m *ListModel) SetCurrent(id string) {
	m.current = id
}

// SetFocused toggles keyboard focus
func (m *ListModel) SetFocused(focused bool) {
	m.focused = focused
	if !focused {
		m.confirming = false
	}
}

// SetSize sets the panel dimensions
func (m *ListModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Conversations returns the loaded snapshot
func (m ListModel) Conversations() []*history.Conversation {
	return m.conversations
}

// Confirming reports whether a delete confirmation is pending
func (m ListModel) Confirming() bool {
	return m.confirming
}

// Update handles list messages. Keys are ignored unless focused.
func (m ListModel) Update(msg tea.Msg) (ListModel, tea.Cmd) {
	switch msg := msg.(type) {
	case conversationsLoadedMsg:
		m.conversations = msg.conversations
		if m.cursor > len(m.conversations) {
			m.cursor = len(m.conversations)
		}
		return m, nil

	case changeMsg:
		return m, m.load()

	case conversationDeletedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
		}
		return m, m.load()

	case tea.KeyMsg:
		if !m.focused {
			return m, nil
		}
		if m.confirming {
			return m.updateConfirm(msg)
		}

		switch msg.String() {
		case "up", "k":
			m.cursor--
			if m.cursor < 0 {
				m.cursor = len(m.conversations)
			}
		case "down", "j":
			m.cursor++
			if m.cursor > len(m.conversations) {
				m.cursor = 0
			}
		case "home", "g":
			m.cursor = 0
		case "end", "G":
			m.cursor = len(m.conversations)
		case "n":
			return m, func() tea.Msg { return newConversationMsg{} }
		case "enter":
			if m.cursor == 0 {
				return m, func() tea.Msg { return newConversationMsg{} }
			}
			id := m.conversations[m.cursor-1].ID
			return m, func() tea.Msg { return selectConversationMsg{id: id} }
		case "d", "delete":
			if m.cursor > 0 {
				m.confirming = true
			}
		}
	}

	return m, nil
}

func (m ListModel) updateConfirm(msg tea.KeyMsg) (ListModel, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.confirming = false
		if m.cursor == 0 || m.cursor > len(m.conversations) {
			return m, nil
		}
		id := m.conversations[m.cursor-1].ID
		repo := m.repo
		return m, func() tea.Msg {
			return conversationDeletedMsg{id: id, err: repo.Delete(id)}
		}
	case "n", "N", "esc":
		m.confirming = false
	}
	return m, nil
}

// View renders the list panel
func (m ListModel) View() string {
	width := m.width
	if width < 20 {
		width = 20
	}
	inner := width - 4

	lines := []string{sidebarTitleStyle.Render("Conversations"), ""}
	lines = append(lines, m.renderItem(0, "+ "+history.NewConversationTitle, "", false, inner))

	if len(m.conversations) == 0 {
		lines = append(lines, hintStyle.Render("  No saved conversations"))
	}

	maxItems := max(3, (m.height-8)/2)
	offset := 0
	if m.cursor > maxItems {
		offset = m.cursor - maxItems
	}
	end := min(offset+maxItems, len(m.conversations))
	if offset > 0 {
		lines = append(lines, hintStyle.Render("  ..."))
	}
	now := m.now()
	for i := offset; i < end; i++ {
		conv := m.conversations[i]
		lines = append(lines, m.renderItem(i+1, conv.Title, history.FormatListDate(conv.UpdatedAt, now), conv.ID == m.current, inner))
	}
	if end < len(m.conversations) {
		lines = append(lines, hintStyle.Render("  ..."))
	}

	if m.confirming && m.cursor > 0 && m.cursor <= len(m.conversations) {
		lines = append(lines, "", confirmStyle.Render(fmt.Sprintf("Delete %q? (y/n)", truncate(m.conversations[m.cursor-1].Title, inner-12))))
	}
	if m.err != nil {
		lines = append(lines, "", errorStyle.Render(truncate(m.err.Error(), inner)))
	}

	style := sidebarStyle.Width(width - 2)
	if m.focused {
		style = style.BorderForeground(colorHighlight)
	}
	if m.height > 2 {
		style = style.Height(m.height - 2)
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m ListModel) renderItem(index int, title, date string, current bool, width int) string {
	cursor := "  "
	style := listItemStyle
	if index == m.cursor && m.focused {
		cursor = listCursorStyle.Render("> ")
		style = listSelectedStyle
	}

	marker := ""
	if current {
		marker = listCurrentStyle.Render("* ")
	}

	line := cursor + marker + style.Render(truncate(title, width-6))
	if date != "" {
		line += "\n    " + listDateStyle.Render(date)
	}
	return line
}

// truncate shortens s to n runes with an ellipsis
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if n <= 3 || len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
