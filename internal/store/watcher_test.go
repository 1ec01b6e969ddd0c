package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watched.db")
	local := NewBoltStore(path)
	other := NewBoltStore(path)

	changed := make(chan struct{}, 4)
	w, err := NewWatcher(local, func() { changed <- struct{}{} }, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	if err := other.Put(KeyCurrent, []byte("conv-9")); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("expected change notification for external write")
	}
}

func TestWatcher_SuppressesOwnWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watched.db")
	local := NewBoltStore(path)

	changed := make(chan struct{}, 4)
	w, err := NewWatcher(local, func() { changed <- struct{}{} },
		WithDebounce(20*time.Millisecond),
		WithSuppressWindow(5*time.Second),
	)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	if err := local.Put(KeyCurrent, []byte("conv-1")); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
		t.Fatal("own write should not be reported")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	w, err := NewWatcher(NewBoltStore(filepath.Join(t.TempDir(), "x.db")), func() {})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
