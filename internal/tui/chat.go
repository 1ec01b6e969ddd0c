package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tale555/dify-chat-webapp/internal/api"
	apperrors "github.com/tale555/dify-chat-webapp/internal/errors"
	"github.com/tale555/dify-chat-webapp/internal/events"
	"github.com/tale555/dify-chat-webapp/internal/history"
	"github.com/tale555/dify-chat-webapp/internal/render"
	"github.com/tale555/dify-chat-webapp/internal/session"
)

const (
	sidebarWidth       = 32
	minWidthForSidebar = 90
)

// sendDoneMsg reports the end of a send or regeneration
type sendDoneMsg struct {
	err error
}

// ChatModel is the chat view: conversation list, transcript and input
type ChatModel struct {
	ctx        context.Context
	controller *session.Controller
	changes    <-chan events.ChangeEvent
	renderOpts render.Options
	exportDir  string
	now        func() time.Time

	// UI components
	list     ListModel
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	// State
	pending     *api.Attachment
	waiting     bool
	listFocused bool
	notice      string
	renderedKey string
	ready       bool

	// Dimensions
	width  int
	height int
}

// ChatOption configures a ChatModel
type ChatOption func(*ChatModel)

// WithRenderOptions sets the markdown options for assistant messages
func WithRenderOptions(opts render.Options) ChatOption {
	return func(m *ChatModel) { m.renderOpts = opts }
}

// WithExportDir sets the directory /export writes to
func WithExportDir(dir string) ChatOption {
	return func(m *ChatModel) { m.exportDir = dir }
}

// NewChatModel creates the chat view. changes may be nil when no event bus
// is available; the list then only refreshes after its own actions.
func NewChatModel(ctx context.Context, controller *session.Controller, repo ConversationRepository, changes <-chan events.ChangeEvent, opts ...ChatOption) ChatModel {
	ta := textarea.New()
	ta.Placeholder = "Type a message or /help..."
	ta.CharLimit = 8000
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.Focus()

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(colorText)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorTextDim)
	ta.BlurredStyle = ta.FocusedStyle

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = loadingStyle

	m := ChatModel{
		ctx:        ctx,
		controller: controller,
		changes:    changes,
		renderOpts: render.DefaultOptions(),
		exportDir:  ".",
		now:        time.Now,
		list:       NewListModel(repo),
		textarea:   ta,
		spinner:    s,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.list.SetCurrent(controller.Conversation().ID)
	return m
}

// Init initializes the model
func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.list.Init(),
		waitForChange(m.changes),
	)
}

// Update handles messages and updates the model
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refresh(true)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.setListFocus(!m.listFocused)
			return m, nil
		case "esc":
			switch {
			case m.list.Confirming():
				// handled by the list
			case m.controller.State() == session.Errored:
				m.controller.DismissError()
				m.notice = ""
				m.refresh(true)
				return m, nil
			case m.listFocused:
				m.setListFocus(false)
				return m, nil
			default:
				return m, tea.Quit
			}
		case "enter":
			if !m.listFocused {
				input := strings.TrimSpace(m.textarea.Value())
				if input == "" && m.pending == nil {
					return m, nil
				}
				m.textarea.Reset()
				m, cmd = m.submit(input)
				if m.waiting {
					return m, tea.Batch(cmd, m.spinner.Tick)
				}
				return m, cmd
			}
		}

		if m.listFocused {
			m.list, cmd = m.list.Update(msg)
			return m, cmd
		}

	case changeMsg:
		switch msg.event.Kind {
		case events.KindExternal, events.KindDeleted:
			if err := m.controller.Refresh(); err != nil {
				m.notice = apperrors.UserMessage(err)
			}
			m.list.SetCurrent(m.controller.Conversation().ID)
			m.refresh(true)
		}
		m.list, cmd = m.list.Update(msg)
		return m, tea.Batch(cmd, waitForChange(m.changes))

	case conversationsLoadedMsg:
		m.list, cmd = m.list.Update(msg)
		return m, cmd

	case conversationDeletedMsg:
		if msg.err == nil {
			if err := m.controller.Refresh(); err != nil {
				m.notice = apperrors.UserMessage(err)
			}
			m.list.SetCurrent(m.controller.Conversation().ID)
			m.refresh(true)
		}
		m.list, cmd = m.list.Update(msg)
		return m, cmd

	case selectConversationMsg:
		if err := m.controller.Select(msg.id); err != nil {
			m.notice = apperrors.UserMessage(err)
		} else {
			m.notice = ""
			m.pending = nil
			m.setListFocus(false)
		}
		m.list.SetCurrent(m.controller.Conversation().ID)
		m.refresh(true)
		return m, nil

	case newConversationMsg:
		m.startNew()
		m.setListFocus(false)
		return m, nil

	case sendDoneMsg:
		m.waiting = false
		if msg.err != nil && !apperrors.IsRemoteError(msg.err) {
			m.notice = apperrors.UserMessage(msg.err)
		}
		m.list.SetCurrent(m.controller.Conversation().ID)
		m.refresh(true)
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		if m.waiting {
			m.spinner, cmd = m.spinner.Update(msg)
			m.refresh(false)
			cmds = append(cmds, cmd)
		}
	}

	// Only pass key messages to the textarea to prevent escape sequence leaks
	if _, ok := msg.(tea.KeyMsg); ok && !m.listFocused && !m.waiting {
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit handles one line of input: a slash command or a message
func (m ChatModel) submit(input string) (ChatModel, tea.Cmd) {
	m.notice = ""

	if strings.HasPrefix(input, "/") {
		return m.command(input)
	}
	if input == "exit" || input == "quit" {
		return m, tea.Quit
	}

	switch m.controller.State() {
	case session.Sending:
		m.notice = apperrors.ErrBusy.Error()
		return m, nil
	case session.Errored:
		m.notice = apperrors.ErrBlocked.Error() + " (/dismiss or esc)"
		return m, nil
	}

	attachment := m.pending
	m.pending = nil
	m.waiting = true
	return m, m.sendCmd(input, attachment)
}

func (m ChatModel) command(input string) (ChatModel, tea.Cmd) {
	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/quit", "/exit":
		return m, tea.Quit

	case "/help":
		m.notice = "/new  /image <path>  /edit <n> <text>  /delete <n>  /regen  /copy <n>  /export <text|md|html|json>  /dismiss  /quit"

	case "/new":
		m.startNew()

	case "/image":
		if rest == "" {
			m.pending = nil
			m.notice = "Attachment removed"
			break
		}
		a, err := api.LoadAttachment(rest)
		if err != nil {
			m.notice = apperrors.UserMessage(err)
			break
		}
		m.pending = a
		m.notice = fmt.Sprintf("Attached %s, press enter to send", a.Name)

	case "/edit":
		idxArg, text, _ := strings.Cut(rest, " ")
		idx, err := m.messageIndex(idxArg)
		if err != nil {
			m.notice = err.Error()
			break
		}
		m.reportErr(m.controller.Edit(idx, text))

	case "/delete":
		idx, err := m.messageIndex(rest)
		if err != nil {
			m.notice = err.Error()
			break
		}
		m.reportErr(m.controller.Delete(idx))

	case "/regen", "/regenerate":
		last := session.LastAssistant(m.controller.Messages())
		if !m.controller.Capabilities(last).Regenerate {
			m.notice = "No assistant message to regenerate"
			break
		}
		m.waiting = true
		m.refresh(true)
		return m, m.regenerateCmd(last)

	case "/copy":
		idx, err := m.messageIndex(rest)
		if err != nil {
			m.notice = err.Error()
			break
		}
		if err := m.controller.Copy(idx); err != nil {
			m.notice = err.Error()
		} else {
			m.notice = fmt.Sprintf("Copied message %d", idx+1)
		}

	case "/export":
		m.notice = m.export(rest)

	case "/dismiss":
		m.controller.DismissError()

	default:
		m.notice = fmt.Sprintf("Unknown command %s (try /help)", name)
	}

	m.refresh(true)
	return m, nil
}

// messageIndex parses a 1-based message number
func (m ChatModel) messageIndex(arg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 || n > len(m.controller.Messages()) {
		return 0, fmt.Errorf("message number must be between 1 and %d", len(m.controller.Messages()))
	}
	return n - 1, nil
}

func (m *ChatModel) reportErr(err error) {
	if err != nil {
		m.notice = apperrors.UserMessage(err)
	}
}

func (m ChatModel) export(arg string) string {
	if arg == "" {
		arg = string(history.ExportFormatMarkdown)
	}
	format, err := history.ParseExportFormat(arg)
	if err != nil {
		return err.Error()
	}

	conv := m.controller.Conversation()
	if len(conv.Messages) == 0 {
		return "Nothing to export"
	}

	data, err := history.Export(conv, format)
	if err != nil {
		return err.Error()
	}
	path := filepath.Join(m.exportDir, history.ExportFileName(conv, format, m.now()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Sprintf("Export failed: %v", err)
	}
	return "Exported to " + path
}

func (m *ChatModel) startNew() {
	if err := m.controller.StartNew(); err != nil {
		m.notice = apperrors.UserMessage(err)
		return
	}
	m.pending = nil
	m.notice = ""
	m.list.SetCurrent(m.controller.Conversation().ID)
	m.refresh(true)
}

func (m *ChatModel) setListFocus(focused bool) {
	m.listFocused = focused
	m.list.SetFocused(focused)
	if focused {
		m.textarea.Blur()
	} else {
		m.textarea.Focus()
	}
}

// sendCmd runs the send off the UI goroutine
func (m ChatModel) sendCmd(text string, attachment *api.Attachment) tea.Cmd {
	ctx := m.ctx
	controller := m.controller
	return func() tea.Msg {
		return sendDoneMsg{err: controller.Send(ctx, text, attachment)}
	}
}

func (m ChatModel) regenerateCmd(index int) tea.Cmd {
	ctx := m.ctx
	controller := m.controller
	return func() tea.Msg {
		return sendDoneMsg{err: controller.Regenerate(ctx, index)}
	}
}

func (m *ChatModel) showSidebar() bool {
	return m.width >= minWidthForSidebar
}

func (m *ChatModel) resize() {
	headerHeight := 3
	inputHeight := 6
	statusHeight := 2
	vpHeight := max(5, m.height-headerHeight-inputHeight-statusHeight-2)

	contentWidth := m.width - 2
	if m.showSidebar() {
		contentWidth -= sidebarWidth
	}
	contentWidth = max(20, contentWidth)

	if !m.ready {
		m.viewport = viewport.New(contentWidth-4, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = contentWidth - 4
		m.viewport.Height = vpHeight
	}
	m.textarea.SetWidth(contentWidth - 6)
	m.list.SetSize(sidebarWidth, vpHeight+2)
}

// refresh rebuilds the transcript. Unforced refreshes skip rendering when
// the transcript did not change.
func (m *ChatModel) refresh(force bool) {
	if !m.ready {
		return
	}

	conv := m.controller.Conversation()
	key := fmt.Sprintf("%s:%d:%d:%d", conv.ID, len(conv.Messages), conv.UpdatedAt.UnixNano(), m.viewport.Width)
	if !force && key == m.renderedKey {
		return
	}
	m.renderedKey = key

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript(conv))
	if atBottom || force {
		m.viewport.GotoBottom()
	}
}

func (m ChatModel) renderTranscript(conv *history.Conversation) string {
	bubbleWidth := max(10, m.viewport.Width-6)
	opts := m.renderOpts.WithWidth(bubbleWidth - 4)

	var content strings.Builder
	for i, msg := range conv.Messages {
		if i > 0 {
			content.WriteString("\n")
		}

		body, err := render.Message(msg, opts)
		if err != nil {
			body = msg.Content
		}

		switch {
		case msg.Role == history.RoleUser:
			content.WriteString(userLabelStyle.Render(fmt.Sprintf("[%d] You", i+1)) + "\n")
			content.WriteString(userBubbleStyle.Width(bubbleWidth).Render(body))
		case strings.HasPrefix(msg.Content, history.ErrorPrefix):
			content.WriteString(assistantLabelStyle.Render(fmt.Sprintf("[%d] Assistant", i+1)) + "\n")
			content.WriteString(errorBubbleStyle.Width(bubbleWidth).Render(msg.Content))
		default:
			content.WriteString(assistantLabelStyle.Render(fmt.Sprintf("[%d] Assistant", i+1)) + "\n")
			content.WriteString(assistantBubbleStyle.Width(bubbleWidth).Render(body))
		}

		if hint := actionHint(session.CapabilitiesFor(conv.Messages, i)); hint != "" {
			content.WriteString("\n" + hintStyle.Render(hint))
		}
		content.WriteString("\n")
	}
	return content.String()
}

func actionHint(caps session.Capabilities) string {
	var actions []string
	if caps.Copy {
		actions = append(actions, "/copy")
	}
	if caps.Edit {
		actions = append(actions, "/edit")
	}
	if caps.Delete {
		actions = append(actions, "/delete")
	}
	if caps.Regenerate {
		actions = append(actions, "/regen")
	}
	return strings.Join(actions, " ")
}

// View renders the TUI
func (m ChatModel) View() string {
	if !m.ready {
		return loadingStyle.Render("  Initializing...")
	}

	conv := m.controller.Conversation()
	contentWidth := m.viewport.Width + 4

	header := headerStyle.Width(contentWidth).Render(lipgloss.JoinHorizontal(
		lipgloss.Center,
		titleStyle.Render("Dify Chat"),
		hintStyle.Render("  |  "),
		subtitleStyle.Render(truncate(conv.Title, contentWidth-20)),
	))

	var messages string
	if len(conv.Messages) == 0 && !m.waiting {
		messages = m.renderWelcome()
	} else {
		messages = m.viewport.View()
	}
	messagesPanel := messagesAreaStyle.
		Width(contentWidth).
		Height(m.viewport.Height).
		Render(messages)

	var input string
	switch {
	case m.waiting:
		input = m.spinner.View() + loadingStyle.Render(" Waiting for the assistant...")
	default:
		label := inputLabelStyle.Render("You")
		if m.pending != nil {
			label += attachmentStyle.Render(fmt.Sprintf("[image: %s]", m.pending.Name))
		}
		input = lipgloss.JoinVertical(lipgloss.Left, label, m.textarea.View())
	}
	inputPanel := inputPanelStyle.Width(contentWidth).Render(input)

	sections := []string{header, messagesPanel}
	if m.controller.State() == session.Errored {
		sections = append(sections, errorBannerStyle.Width(contentWidth).Render(
			"Error: "+m.controller.Err()+"  (esc or /dismiss to continue)"))
	}
	sections = append(sections, inputPanel)
	if m.notice != "" {
		sections = append(sections, noticeStyle.Render(truncate(m.notice, contentWidth)))
	}
	sections = append(sections, m.renderStatusBar(contentWidth))

	main := lipgloss.JoinVertical(lipgloss.Left, sections...)
	if !m.showSidebar() {
		if m.listFocused {
			return m.list.View()
		}
		return main
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, m.list.View(), main)
}

func (m ChatModel) renderWelcome() string {
	width := m.viewport.Width
	content := lipgloss.JoinVertical(
		lipgloss.Center,
		welcomeTitleStyle.Width(width).Render("Start a new conversation"),
		"",
		welcomeStyle.Width(width).Render("Type a message below, or /image <path> to attach a picture"),
	)

	topPadding := max(0, (m.viewport.Height-lipgloss.Height(content))/2)
	return strings.Repeat("\n", topPadding) + content
}

func (m ChatModel) renderStatusBar(width int) string {
	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send"},
		{"Tab", "Conversations"},
		{"Esc", "Dismiss/Quit"},
		{"/help", "Commands"},
	}
	if m.listFocused {
		shortcuts = []struct {
			key  string
			desc string
		}{
			{"Enter", "Open"},
			{"n", "New"},
			{"d", "Delete"},
			{"Tab", "Chat"},
		}
	}

	var items []string
	for _, s := range shortcuts {
		items = append(items, lipgloss.JoinHorizontal(
			lipgloss.Center,
			statusKeyStyle.Render(s.key),
			statusDescStyle.Render(" "+s.desc),
		))
	}

	bar := strings.Join(items, "  |  ")
	return statusBarStyle.Width(width).Align(lipgloss.Center).Render(bar)
}

// RunChat starts the chat TUI. Repository changes published on bus (own
// saves and external writes) refresh the conversation list.
func RunChat(ctx context.Context, controller *session.Controller, repo ConversationRepository, bus *events.Bus, opts ...ChatOption) error {
	var changes <-chan events.ChangeEvent
	if bus != nil {
		ch, err := bus.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("failed to subscribe to changes: %w", err)
		}
		changes = ch
	}

	m := NewChatModel(ctx, controller, repo, changes, opts...)

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	_, err := p.Run()
	return err
}
