package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "github.com/tale555/dify-chat-webapp/internal/errors"
	"github.com/tale555/dify-chat-webapp/internal/events"
	"github.com/tale555/dify-chat-webapp/internal/store"
)

// Store manages conversation history persistence on top of a KV.
// The whole ordered list lives in one record, newest first.
type Store struct {
	kv     store.KV
	bus    *events.Bus
	clock  func() time.Time
	logger zerolog.Logger

	mu sync.Mutex

	hooksMu  sync.Mutex
	hooks    map[int]func(events.ChangeEvent)
	nextHook int
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithBus publishes every change on bus
func WithBus(bus *events.Bus) StoreOption {
	return func(s *Store) { s.bus = bus }
}

// WithClock sets the time source
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) { s.clock = clock }
}

// WithLogger sets the logger used for diagnostics
func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a new history store
func NewStore(kv store.KV, opts ...StoreOption) *Store {
	s := &Store{
		kv:     kv,
		clock:  time.Now,
		logger: log.Logger.With().Str("component", "history").Logger(),
		hooks:  make(map[int]func(events.ChangeEvent)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock's current time
func (s *Store) Now() time.Time {
	return s.clock()
}

// ListAll returns every conversation, most recently created first. Read or
// parse failures yield an empty list.
func (s *Store) ListAll() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read conversations")
		return []*Conversation{}
	}
	return list
}

// Get retrieves a conversation by ID
func (s *Store) Get(id string) (*Conversation, bool) {
	for _, c := range s.ListAll() {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// Save inserts conv at the head or replaces the stored entry with the same ID.
// UpdatedAt is stamped with the current time, never earlier than the stored
// value, and written back into conv. A stored list that cannot be parsed is
// left untouched.
func (s *Store) Save(conv *Conversation) error {
	s.mu.Lock()

	list, err := s.load()
	if err != nil {
		s.mu.Unlock()
		if apperrors.IsStoreUnavailable(err) {
			return err
		}
		return apperrors.NewStoreUnavailableError("save", err)
	}

	stamp := s.clock()
	idx := -1
	for i, c := range list {
		if c.ID == conv.ID {
			idx = i
			if c.UpdatedAt.After(stamp) {
				stamp = c.UpdatedAt
			}
			break
		}
	}
	conv.UpdatedAt = stamp

	stored := conv.Clone()
	if idx >= 0 {
		list[idx] = stored
	} else {
		list = append([]*Conversation{stored}, list...)
	}

	err = s.write(list)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(events.ChangeEvent{Kind: events.KindSaved, ConversationID: conv.ID})
	return nil
}

// Delete removes a conversation and clears the current pointer if it pointed
// there. Deleting an unknown ID is a no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()

	list, err := s.load()
	if err != nil {
		s.mu.Unlock()
		if apperrors.IsStoreUnavailable(err) {
			return err
		}
		return fmt.Errorf("failed to read conversations: %w", err)
	}

	filtered := make([]*Conversation, 0, len(list))
	for _, c := range list {
		if c.ID != id {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == len(list) {
		s.mu.Unlock()
		return nil
	}

	if err := s.write(filtered); err != nil {
		s.mu.Unlock()
		return err
	}

	if current, ok := s.readPointer(); ok && current == id {
		if err := s.kv.Delete(store.KeyCurrent); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	s.notify(events.ChangeEvent{Kind: events.KindDeleted, ConversationID: id})
	return nil
}

// Clear deletes all conversations and the current pointer
func (s *Store) Clear() error {
	s.mu.Lock()
	err := s.kv.Delete(store.KeyConversations)
	if err == nil {
		err = s.kv.Delete(store.KeyCurrent)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(events.ChangeEvent{Kind: events.KindDeleted})
	return nil
}

// CurrentPointer returns the ID of the last active conversation
func (s *Store) CurrentPointer() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readPointer()
}

// SetCurrentPointer records id as the active conversation. An empty id
// clears the pointer.
func (s *Store) SetCurrentPointer(id string) error {
	s.mu.Lock()
	var err error
	if id == "" {
		err = s.kv.Delete(store.KeyCurrent)
	} else {
		err = s.kv.Put(store.KeyCurrent, []byte(id))
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(events.ChangeEvent{Kind: events.KindPointer, ConversationID: id})
	return nil
}

// OnChange registers fn to be called after every change. The returned
// function unregisters it.
func (s *Store) OnChange(fn func(events.ChangeEvent)) func() {
	s.hooksMu.Lock()
	id := s.nextHook
	s.nextHook++
	s.hooks[id] = fn
	s.hooksMu.Unlock()

	return func() {
		s.hooksMu.Lock()
		delete(s.hooks, id)
		s.hooksMu.Unlock()
	}
}

// NotifyExternalChange signals that another process modified the store
func (s *Store) NotifyExternalChange() {
	s.notify(events.ChangeEvent{Kind: events.KindExternal})
}

// Internal methods

func (s *Store) readPointer() (string, bool) {
	data, ok, err := s.kv.Get(store.KeyCurrent)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read current conversation")
		return "", false
	}
	if !ok || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

func (s *Store) load() ([]*Conversation, error) {
	data, ok, err := s.kv.Get(store.KeyConversations)
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return []*Conversation{}, nil
	}

	var list []*Conversation
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse conversations: %w", err)
	}
	out := list[:0]
	for _, c := range list {
		if c == nil {
			continue
		}
		msgs := make([]Message, 0, len(c.Messages))
		for _, m := range c.Messages {
			if !m.Role.Valid() {
				s.logger.Warn().Str("conversation", c.ID).Str("role", string(m.Role)).Msg("dropping message with unknown role")
				continue
			}
			msgs = append(msgs, m)
		}
		c.Messages = msgs
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) write(list []*Conversation) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal conversations: %w", err)
	}
	return s.kv.Put(store.KeyConversations, data)
}

func (s *Store) notify(ev events.ChangeEvent) {
	if ev.At.IsZero() {
		ev.At = s.clock()
	}

	s.hooksMu.Lock()
	hooks := make([]func(events.ChangeEvent), 0, len(s.hooks))
	for _, fn := range s.hooks {
		hooks = append(hooks, fn)
	}
	s.hooksMu.Unlock()

	for _, fn := range hooks {
		fn(ev)
	}

	if s.bus != nil {
		if err := s.bus.Publish(context.Background(), ev); err != nil {
			s.logger.Debug().Err(err).Msg("failed to publish change")
		}
	}
}
