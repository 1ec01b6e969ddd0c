package history

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/tale555/dify-chat-webapp/internal/errors"
	"github.com/tale555/dify-chat-webapp/internal/events"
	"github.com/tale555/dify-chat-webapp/internal/store"
)

// fakeClock returns a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *store.MemoryStore, *fakeClock) {
	t.Helper()
	kv := store.NewMemoryStore()
	clock := newFakeClock()
	return NewStore(kv, WithClock(clock.Now)), kv, clock
}

func TestStore_ListAll_Empty(t *testing.T) {
	s, _, _ := newTestStore(t)

	list := s.ListAll()
	if list == nil || len(list) != 0 {
		t.Errorf("ListAll() = %v, want empty slice", list)
	}
}

func TestStore_SaveInsertsAtHead(t *testing.T) {
	s, _, clock := newTestStore(t)

	a := CreateEmpty(clock.Now())
	clock.Advance(time.Second)
	b := CreateEmpty(clock.Now())

	if err := s.Save(a); err != nil {
		t.Fatalf("Save(a) failed: %v", err)
	}
	if err := s.Save(b); err != nil {
		t.Fatalf("Save(b) failed: %v", err)
	}

	list := s.ListAll()
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].ID != b.ID || list[1].ID != a.ID {
		t.Errorf("order = [%s %s], want [%s %s]", list[0].ID, list[1].ID, b.ID, a.ID)
	}
}

func TestStore_SaveUpdateKeepsPosition(t *testing.T) {
	s, _, clock := newTestStore(t)

	a := CreateEmpty(clock.Now())
	b := CreateEmpty(clock.Now())
	_ = s.Save(a)
	_ = s.Save(b)

	a.Messages = append(a.Messages, Message{Role: RoleUser, Content: "hello"})
	a.Title = DeriveTitle(a.Messages)
	clock.Advance(time.Minute)
	if err := s.Save(a); err != nil {
		t.Fatal(err)
	}

	list := s.ListAll()
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[1].ID != a.ID {
		t.Errorf("updated conversation moved: list[1] = %s, want %s", list[1].ID, a.ID)
	}
	if len(list[1].Messages) != 1 || list[1].Title != "hello" {
		t.Errorf("stored conversation = %+v", list[1])
	}
}

func TestStore_SaveStampsUpdatedAt(t *testing.T) {
	s, _, clock := newTestStore(t)

	conv := CreateEmpty(clock.Now())
	conv.UpdatedAt = time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)

	clock.Advance(time.Hour)
	if err := s.Save(conv); err != nil {
		t.Fatal(err)
	}
	if !conv.UpdatedAt.Equal(clock.Now()) {
		t.Errorf("UpdatedAt = %v, want %v", conv.UpdatedAt, clock.Now())
	}

	stored, _ := s.Get(conv.ID)
	if !stored.UpdatedAt.Equal(clock.Now()) {
		t.Errorf("stored UpdatedAt = %v, want %v", stored.UpdatedAt, clock.Now())
	}
}

func TestStore_SaveUpdatedAtNeverDecreases(t *testing.T) {
	s, _, clock := newTestStore(t)

	conv := CreateEmpty(clock.Now())
	clock.Advance(time.Hour)
	_ = s.Save(conv)
	first := conv.UpdatedAt

	// Wall clock steps back
	clock.Advance(-2 * time.Hour)
	if err := s.Save(conv); err != nil {
		t.Fatal(err)
	}

	stored, _ := s.Get(conv.ID)
	if stored.UpdatedAt.Before(first) {
		t.Errorf("UpdatedAt went backwards: %v < %v", stored.UpdatedAt, first)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s, _, clock := newTestStore(t)

	conv := CreateEmpty(clock.Now())
	conv.Messages = []Message{{Role: RoleUser, Content: "original"}}
	_ = s.Save(conv)

	got, ok := s.Get(conv.ID)
	if !ok {
		t.Fatal("Get() did not find saved conversation")
	}
	got.Messages[0].Content = "mutated"
	conv.Messages[0].Content = "mutated too"

	again, _ := s.Get(conv.ID)
	if again.Messages[0].Content != "original" {
		t.Errorf("stored content = %q, want original", again.Messages[0].Content)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s, _, _ := newTestStore(t)

	if _, ok := s.Get("conv-missing"); ok {
		t.Error("Get() should not find a missing conversation")
	}
}

func TestStore_SaveStoreUnavailable(t *testing.T) {
	s, kv, clock := newTestStore(t)
	kv.SetFail(errors.New("quota exceeded"))

	err := s.Save(CreateEmpty(clock.Now()))
	if !apperrors.IsStoreUnavailable(err) {
		t.Errorf("Save() error = %v, want store unavailable", err)
	}
}

func TestStore_CorruptListIsNotOverwritten(t *testing.T) {
	s, kv, clock := newTestStore(t)
	corrupt := []byte("{not json")
	_ = kv.Put(store.KeyConversations, corrupt)

	if list := s.ListAll(); len(list) != 0 {
		t.Errorf("ListAll() on corrupt data = %d items, want 0", len(list))
	}

	err := s.Save(CreateEmpty(clock.Now()))
	if !apperrors.IsStoreUnavailable(err) {
		t.Fatalf("Save() over corrupt data error = %v, want store unavailable", err)
	}
	data, _, _ := kv.Get(store.KeyConversations)
	if string(data) != string(corrupt) {
		t.Errorf("Save() overwrote corrupt data with %q", data)
	}

	// Clear is the way out
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	conv := CreateEmpty(clock.Now())
	if err := s.Save(conv); err != nil {
		t.Fatalf("Save() after Clear() failed: %v", err)
	}
	if list := s.ListAll(); len(list) != 1 || list[0].ID != conv.ID {
		t.Errorf("ListAll() after recovery = %v", list)
	}
}

func TestStore_UnknownRoleKeepsOtherConversations(t *testing.T) {
	s, kv, clock := newTestStore(t)
	_ = kv.Put(store.KeyConversations, []byte(`[
		{"id":"conv-old","title":"hi","messages":[
			{"role":"user","content":"hi"},
			{"role":"system","content":"x"}
		]},
		{"id":"conv-other","title":"other","messages":[{"role":"assistant","content":"ok"}]}
	]`))

	list := s.ListAll()
	if len(list) != 2 {
		t.Fatalf("ListAll() with unknown role = %d items, want 2", len(list))
	}

	fresh := CreateEmpty(clock.Now())
	if err := s.Save(fresh); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	list = s.ListAll()
	if len(list) != 3 {
		t.Fatalf("ListAll() after Save() = %d items, want 3", len(list))
	}
	if list[0].ID != fresh.ID {
		t.Errorf("list[0].ID = %q, want %q", list[0].ID, fresh.ID)
	}

	old, ok := s.Get("conv-old")
	if !ok {
		t.Fatal("Get(conv-old) should survive a later Save()")
	}
	if len(old.Messages) != 1 || old.Messages[0].Content != "hi" {
		t.Errorf("conv-old messages = %+v, want only the user message", old.Messages)
	}
	if _, ok := s.Get("conv-other"); !ok {
		t.Error("Get(conv-other) should survive a later Save()")
	}
}

func TestStore_Delete(t *testing.T) {
	s, _, clock := newTestStore(t)

	a := CreateEmpty(clock.Now())
	b := CreateEmpty(clock.Now())
	_ = s.Save(a)
	_ = s.Save(b)
	bUpdated := b.UpdatedAt

	clock.Advance(time.Hour)
	if err := s.Delete(a.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	list := s.ListAll()
	if len(list) != 1 || list[0].ID != b.ID {
		t.Fatalf("ListAll() after delete = %v", list)
	}
	if !list[0].UpdatedAt.Equal(bUpdated) {
		t.Errorf("Delete() touched other entry: UpdatedAt %v, want %v", list[0].UpdatedAt, bUpdated)
	}

	// Absent id is a no-op
	if err := s.Delete("conv-missing"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestStore_DeleteClearsPointer(t *testing.T) {
	s, _, clock := newTestStore(t)

	a := CreateEmpty(clock.Now())
	b := CreateEmpty(clock.Now())
	_ = s.Save(a)
	_ = s.Save(b)

	_ = s.SetCurrentPointer(b.ID)
	_ = s.Delete(a.ID)
	if id, ok := s.CurrentPointer(); !ok || id != b.ID {
		t.Errorf("pointer after deleting other = %q, %v; want %s", id, ok, b.ID)
	}

	_ = s.Delete(b.ID)
	if id, ok := s.CurrentPointer(); ok {
		t.Errorf("pointer after deleting current = %q, want cleared", id)
	}
}

func TestStore_Pointer(t *testing.T) {
	s, _, _ := newTestStore(t)

	if _, ok := s.CurrentPointer(); ok {
		t.Error("pointer should be empty initially")
	}

	if err := s.SetCurrentPointer("conv-1"); err != nil {
		t.Fatal(err)
	}
	if id, ok := s.CurrentPointer(); !ok || id != "conv-1" {
		t.Errorf("CurrentPointer() = %q, %v", id, ok)
	}

	if err := s.SetCurrentPointer(""); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.CurrentPointer(); ok {
		t.Error("pointer should be cleared")
	}
}

func TestStore_Clear(t *testing.T) {
	s, _, clock := newTestStore(t)
	conv := CreateEmpty(clock.Now())
	_ = s.Save(conv)
	_ = s.SetCurrentPointer(conv.ID)

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	if len(s.ListAll()) != 0 {
		t.Error("ListAll() should be empty after Clear()")
	}
	if _, ok := s.CurrentPointer(); ok {
		t.Error("pointer should be cleared by Clear()")
	}
}

func TestStore_OnChange(t *testing.T) {
	s, _, clock := newTestStore(t)

	var mu sync.Mutex
	var got []events.Kind
	unsubscribe := s.OnChange(func(ev events.ChangeEvent) {
		mu.Lock()
		got = append(got, ev.Kind)
		mu.Unlock()
	})

	conv := CreateEmpty(clock.Now())
	_ = s.Save(conv)
	_ = s.SetCurrentPointer(conv.ID)
	_ = s.Delete(conv.ID)
	s.NotifyExternalChange()

	unsubscribe()
	_ = s.Save(CreateEmpty(clock.Now()))

	want := []events.Kind{events.KindSaved, events.KindPointer, events.KindDeleted, events.KindExternal}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestStore_PublishesOnBus(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	ch, err := bus.Subscribe(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	s := NewStore(store.NewMemoryStore(), WithBus(bus))
	conv := CreateEmpty(time.Now())
	_ = s.Save(conv)

	select {
	case ev := <-ch:
		if ev.Kind != events.KindSaved || ev.ConversationID != conv.ID {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
}

func TestStore_BoltRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s := NewStore(store.NewBoltStore(path))

	conv := CreateEmpty(time.Now())
	conv.Messages = []Message{
		{Role: RoleUser, Content: "Describe this", ImageURL: "/tmp/cat.png"},
		{Role: RoleAssistant, Content: "A cat."},
	}
	conv.ConversationID = "remote-1"
	conv.Title = DeriveTitle(conv.Messages)
	if err := s.Save(conv); err != nil {
		t.Fatal(err)
	}
	_ = s.SetCurrentPointer(conv.ID)

	// A second store on the same file sees the data
	other := NewStore(store.NewBoltStore(path))
	got, ok := other.Get(conv.ID)
	if !ok {
		t.Fatal("conversation not found through second store")
	}
	if got.ConversationID != "remote-1" || len(got.Messages) != 2 || got.Messages[0].ImageURL != "/tmp/cat.png" {
		t.Errorf("round trip = %+v", got)
	}
	if id, ok := other.CurrentPointer(); !ok || id != conv.ID {
		t.Errorf("pointer through second store = %q, %v", id, ok)
	}
}
