// Package session drives the active conversation: sending, regenerating,
// editing, deleting and copying messages on top of the history store.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tale555/dify-chat-webapp/internal/api"
	apperrors "github.com/tale555/dify-chat-webapp/internal/errors"
	"github.com/tale555/dify-chat-webapp/internal/history"
)

// State is the lifecycle state of the active conversation
type State int

const (
	// Idle accepts sends and edits
	Idle State = iota
	// Sending has a remote call in flight
	Sending
	// Errored shows an error banner until dismissed
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Repository is the part of the history store the controller needs
type Repository interface {
	Get(id string) (*history.Conversation, bool)
	Save(conv *history.Conversation) error
	CurrentPointer() (string, bool)
	SetCurrentPointer(id string) error
}

// Controller owns the active conversation and its state machine.
// The remote call of Send and Regenerate runs without holding mu.
type Controller struct {
	repo      Repository
	client    api.ChatClient
	user      string
	clipboard Clipboard
	logger    zerolog.Logger
	clock     func() time.Time

	mu        sync.Mutex
	conv      *history.Conversation
	persisted bool
	state     State
	errMsg    string
}

// Option configures a Controller
type Option func(*Controller)

// WithUser sets the end-user identifier sent with every request
func WithUser(user string) Option {
	return func(c *Controller) { c.user = user }
}

// WithClipboard replaces the system clipboard
func WithClipboard(cb Clipboard) Option {
	return func(c *Controller) { c.clipboard = cb }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock sets the time source used for new conversations
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// New creates a controller holding a fresh empty conversation.
// Call Restore to resume the last active one.
func New(repo Repository, client api.ChatClient, opts ...Option) *Controller {
	c := &Controller{
		repo:      repo,
		client:    client,
		user:      api.DefaultUser,
		clipboard: SystemClipboard{},
		logger:    log.Logger.With().Str("component", "session").Logger(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.conv = history.CreateEmpty(c.clock())
	return c
}

// Restore loads the conversation named by the current pointer. When the
// pointer is unset or dangling a new empty conversation is started.
func (c *Controller) Restore() error {
	if id, ok := c.repo.CurrentPointer(); ok {
		if conv, found := c.repo.Get(id); found {
			c.mu.Lock()
			c.load(conv)
			c.mu.Unlock()
			return nil
		}
		c.logger.Debug().Str("id", id).Msg("current conversation no longer exists")
	}
	return c.StartNew()
}

// StartNew replaces the active conversation with an unsaved empty one.
// It is stored on its first exchange.
func (c *Controller) StartNew() error {
	c.mu.Lock()
	if c.state == Sending {
		c.mu.Unlock()
		return apperrors.ErrBusy
	}
	c.conv = history.CreateEmpty(c.clock())
	c.persisted = false
	c.state = Idle
	c.errMsg = ""
	c.mu.Unlock()

	return c.repo.SetCurrentPointer("")
}

// Select makes the stored conversation id active
func (c *Controller) Select(id string) error {
	conv, ok := c.repo.Get(id)
	if !ok {
		return fmt.Errorf("conversation not found: %s", id)
	}

	c.mu.Lock()
	if c.state == Sending {
		c.mu.Unlock()
		return apperrors.ErrBusy
	}
	c.load(conv)
	c.mu.Unlock()

	return c.repo.SetCurrentPointer(id)
}

// Refresh reloads the active conversation after an external change. A stored
// conversation that disappeared is replaced with a new empty one.
func (c *Controller) Refresh() error {
	c.mu.Lock()
	if c.state == Sending || !c.persisted {
		c.mu.Unlock()
		return nil
	}
	id := c.conv.ID
	c.mu.Unlock()

	conv, ok := c.repo.Get(id)
	if !ok {
		return c.StartNew()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Sending && c.conv.ID == id {
		c.conv = conv
	}
	return nil
}

func (c *Controller) load(conv *history.Conversation) {
	c.conv = conv
	c.persisted = true
	c.state = Idle
	c.errMsg = ""
}

// Conversation returns a copy of the active conversation
func (c *Controller) Conversation() *history.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Clone()
}

// Messages returns a copy of the active transcript
func (c *Controller) Messages() []history.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]history.Message(nil), c.conv.Messages...)
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error banner text, empty unless Errored
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// DismissError leaves the Errored state. The transcript is not touched.
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Errored {
		c.state = Idle
		c.errMsg = ""
	}
}

// Send appends a user turn and the remote answer. On a remote failure the
// error text is appended as an assistant message, the controller enters
// Errored and the remote error is returned.
func (c *Controller) Send(ctx context.Context, text string, attachment *api.Attachment) error {
	if err := api.ValidateAttachment(attachment); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" && attachment == nil {
		return apperrors.NewValidationError("message", "nothing to send")
	}

	c.mu.Lock()
	if err := c.gate(); err != nil {
		c.mu.Unlock()
		return err
	}

	user := history.Message{Role: history.RoleUser, Content: text}
	if attachment != nil {
		user.ImageURL = attachment.Path
		if user.ImageURL == "" {
			user.ImageURL = attachment.Name
		}
	}
	c.conv.Messages = append(c.conv.Messages, user)
	c.state = Sending

	query := text
	if strings.TrimSpace(query) == "" {
		query = api.DefaultImageQuery
	}
	req := api.ChatRequest{
		Query:          query,
		User:           c.user,
		ConversationID: c.conv.ConversationID,
		Image:          attachment,
	}
	id := c.conv.ID
	c.mu.Unlock()

	c.logger.Debug().Str("id", id).Bool("image", attachment != nil).Msg("sending message")

	result, err := c.client.Send(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		msg := apperrors.UserMessage(err)
		c.conv.Messages = append(c.conv.Messages, history.Message{
			Role:    history.RoleAssistant,
			Content: history.ErrorPrefix + msg,
		})
		c.conv.Title = history.DeriveTitle(c.conv.Messages)
		c.state = Errored
		c.errMsg = msg
		c.logger.Warn().Err(err).Str("id", c.conv.ID).Msg("send failed")
		if saveErr := c.persist(); saveErr != nil {
			c.logger.Error().Err(saveErr).Str("id", c.conv.ID).Msg("failed to save conversation")
			return errors.Join(err, saveErr)
		}
		return err
	}

	c.appendAnswer(result)
	c.conv.Title = history.DeriveTitle(c.conv.Messages)
	c.state = Idle
	return c.persist()
}

// Regenerate replaces the assistant answer at index by resubmitting the
// nearest preceding user message. Only the text is resent.
func (c *Controller) Regenerate(ctx context.Context, index int) error {
	c.mu.Lock()
	if err := c.gate(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !CapabilitiesFor(c.conv.Messages, index).Regenerate {
		c.mu.Unlock()
		return apperrors.NewValidationError("message", "only the latest assistant message can be regenerated")
	}

	prompt := -1
	for i := index - 1; i >= 0; i-- {
		if c.conv.Messages[i].Role == history.RoleUser {
			prompt = i
			break
		}
	}
	if prompt < 0 {
		c.mu.Unlock()
		return apperrors.NewValidationError("message", "no user message to regenerate from")
	}

	c.conv.Messages = c.conv.Messages[:index:index]
	c.conv.Title = history.DeriveTitle(c.conv.Messages)
	truncErr := c.persist()
	if truncErr != nil {
		c.logger.Error().Err(truncErr).Str("id", c.conv.ID).Msg("failed to save truncated conversation")
	}

	query := c.conv.Messages[prompt].Content
	if strings.TrimSpace(query) == "" {
		query = api.DefaultImageQuery
	}
	req := api.ChatRequest{
		Query:          query,
		User:           c.user,
		ConversationID: c.conv.ConversationID,
	}
	c.state = Sending
	id := c.conv.ID
	c.mu.Unlock()

	c.logger.Debug().Str("id", id).Int("index", index).Msg("regenerating message")

	result, err := c.client.Send(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.state = Errored
		c.errMsg = apperrors.UserMessage(err)
		c.logger.Warn().Err(err).Str("id", c.conv.ID).Msg("regenerate failed")
		if truncErr != nil {
			return errors.Join(err, truncErr)
		}
		return err
	}

	c.appendAnswer(result)
	c.state = Idle
	return c.persist()
}

// Edit replaces the content of the user message at index
func (c *Controller) Edit(index int, content string) error {
	content = strings.TrimSpace(content)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Sending {
		return apperrors.ErrBusy
	}
	if !CapabilitiesFor(c.conv.Messages, index).Edit {
		return apperrors.NewValidationError("message", "only user messages can be edited")
	}
	if content == "" {
		return apperrors.NewValidationError("message", "content cannot be empty")
	}

	c.conv.Messages[index].Content = content
	c.conv.Title = history.DeriveTitle(c.conv.Messages)
	return c.persist()
}

// Delete removes the message at index
func (c *Controller) Delete(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Sending {
		return apperrors.ErrBusy
	}
	if !CapabilitiesFor(c.conv.Messages, index).Delete {
		return apperrors.NewValidationError("message", fmt.Sprintf("no message at index %d", index))
	}

	msgs := make([]history.Message, 0, len(c.conv.Messages)-1)
	msgs = append(msgs, c.conv.Messages[:index]...)
	msgs = append(msgs, c.conv.Messages[index+1:]...)
	c.conv.Messages = msgs
	c.conv.Title = history.DeriveTitle(c.conv.Messages)
	return c.persist()
}

// Copy writes the content of the message at index to the clipboard
func (c *Controller) Copy(index int) error {
	c.mu.Lock()
	if !CapabilitiesFor(c.conv.Messages, index).Copy {
		c.mu.Unlock()
		return apperrors.NewValidationError("message", fmt.Sprintf("no message at index %d", index))
	}
	content := c.conv.Messages[index].Content
	c.mu.Unlock()

	if err := c.clipboard.WriteAll(content); err != nil {
		c.logger.Warn().Err(err).Msg("failed to copy message")
		return fmt.Errorf("failed to copy message: %w", err)
	}
	return nil
}

// Capabilities reports the actions available on the message at index
func (c *Controller) Capabilities(index int) Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CapabilitiesFor(c.conv.Messages, index)
}

// gate must be called with mu held
func (c *Controller) gate() error {
	switch c.state {
	case Sending:
		return apperrors.ErrBusy
	case Errored:
		return apperrors.ErrBlocked
	}
	return nil
}

// appendAnswer must be called with mu held
func (c *Controller) appendAnswer(result *api.ChatResult) {
	c.conv.Messages = append(c.conv.Messages, history.Message{
		Role:    history.RoleAssistant,
		Content: result.Answer,
	})
	if c.conv.ConversationID == "" && result.ConversationID != "" {
		c.conv.ConversationID = result.ConversationID
	}
}

// persist saves the active conversation and points the current pointer at
// it the first time. Must be called with mu held.
func (c *Controller) persist() error {
	if err := c.repo.Save(c.conv); err != nil {
		return err
	}
	if !c.persisted {
		c.persisted = true
		if err := c.repo.SetCurrentPointer(c.conv.ID); err != nil {
			return err
		}
	}
	return nil
}
