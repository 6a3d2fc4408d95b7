package clientstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	key := Key("chat", "browser-1")
	data := []byte(`{"name":"ann"}`)

	t.Run("Save", func(t *testing.T) {
		if err := store.Save(ctx, key, data, time.Now().Add(5*time.Minute)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	})

	t.Run("Load", func(t *testing.T) {
		loaded, err := store.Load(ctx, key)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if string(loaded) != string(data) {
			t.Fatalf("Load=%s, want %s", loaded, data)
		}
	})

	t.Run("LoadMissing", func(t *testing.T) {
		loaded, err := store.Load(ctx, "missing")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if loaded != nil {
			t.Fatalf("Load=%s, want nil", loaded)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := store.Save(ctx, key, []byte(`{}`), time.Now().Add(time.Minute)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		loaded, _ := store.Load(ctx, key)
		if string(loaded) != `{}` {
			t.Fatalf("Load=%s, want {}", loaded)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.Delete(ctx, key); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		loaded, _ := store.Load(ctx, key)
		if loaded != nil {
			t.Fatalf("Load after Delete=%s, want nil", loaded)
		}
	})
}

func TestMemoryStoreCopiesData(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	data := []byte("abc")
	store.Save(ctx, "k", data, time.Now().Add(time.Minute))
	data[0] = 'x'

	loaded, _ := store.Load(ctx, "k")
	if string(loaded) != "abc" {
		t.Fatalf("Load=%s, want abc", loaded)
	}
	loaded[1] = 'x'
	again, _ := store.Load(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("Load=%s, want abc", again)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(WithCleanupInterval(time.Hour))
	defer store.Close()

	ctx := context.Background()
	store.Save(ctx, "old", []byte("x"), time.Now().Add(-time.Second))
	store.Save(ctx, "new", []byte("y"), time.Now().Add(time.Hour))

	if loaded, _ := store.Load(ctx, "old"); loaded != nil {
		t.Fatalf("expired Load=%s, want nil", loaded)
	}
	if store.Count() != 2 {
		t.Fatalf("Count=%d, want 2 before cleanup", store.Count())
	}
	store.cleanup()
	if store.Count() != 1 {
		t.Fatalf("Count=%d, want 1 after cleanup", store.Count())
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	ctx := context.Background()
	var closed ErrStoreClosed
	if err := store.Save(ctx, "k", nil, time.Now()); !errors.As(err, &closed) {
		t.Fatalf("Save err=%v, want ErrStoreClosed", err)
	}
	if _, err := store.Load(ctx, "k"); !errors.As(err, &closed) {
		t.Fatalf("Load err=%v, want ErrStoreClosed", err)
	}
	if err := store.Delete(ctx, "k"); !errors.As(err, &closed) {
		t.Fatalf("Delete err=%v, want ErrStoreClosed", err)
	}
}
