package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaiso/playbook/internal/coord"
)

func openTestStore(t *testing.T) *EntryStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "entries.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEntryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.Create(ctx, "u1", "k", []byte("v1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, "u1", "k", []byte("v1")); !errors.Is(err, coord.ErrEntryExists) {
		t.Errorf("expected ErrEntryExists, got %v", err)
	}
	if err := s.Create(ctx, "u2", "k", []byte("other")); err != nil {
		t.Errorf("same key for another user should be allowed: %v", err)
	}

	if err := s.Update(ctx, "u1", "k", []byte("v2")); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.Read(ctx, "u1", "k")
	if err != nil || string(got) != "v2" {
		t.Fatalf("read: %q, %v", got, err)
	}

	if err := s.Delete(ctx, "u1", "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{name: "read", call: func() error { _, err := s.Read(ctx, "u1", "k"); return err }},
		{name: "update", call: func() error { return s.Update(ctx, "u1", "k", nil) }},
		{name: "delete", call: func() error { return s.Delete(ctx, "u1", "k") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, coord.ErrEntryNotFound) {
				t.Errorf("expected ErrEntryNotFound, got %v", err)
			}
		})
	}
}

func TestEntryStore_EmptyPayload(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.Create(ctx, "u", "empty", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Read(ctx, "u", "empty")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty payload, got %q", got)
	}
}

func TestEntryStore_ReadOrWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := openTestStore(t)

	result := make(chan []byte, 1)
	go func() {
		payload, err := s.ReadOrWait(ctx, "u", "K")
		if err != nil {
			t.Errorf("read_or_wait: %v", err)
			close(result)
			return
		}
		result <- payload
	}()

	time.Sleep(50 * time.Millisecond)
	if err := s.Create(ctx, "u", "K", []byte("late")); err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case got := <-result:
		if string(got) != "late" {
			t.Errorf("got %q, want late", got)
		}
	case <-ctx.Done():
		t.Fatal("ReadOrWait did not wake up")
	}
}

func TestEntryStore_WithSession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	hub := &coord.Hub{Entries: s, Bus: coord.NewMemoryBus()}

	if err := hub.Session("u", "t").CreateEntry(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := hub.Session("u", "t").ReadEntry(ctx, "missing")
	if !errors.Is(err, coord.ErrCoordination) || !errors.Is(err, coord.ErrEntryNotFound) {
		t.Errorf("expected CoordinationError wrapping ErrEntryNotFound, got %v", err)
	}
}
