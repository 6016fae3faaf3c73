package db

import (
	"errors"
	"testing"
)

func TestCallerKeyAddAndLookup(t *testing.T) {
	store := NewCallerKeyStore(newTestDB(t))

	key, err := store.Add("sk-test", false)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !key.IsEnabled {
		t.Fatal("new keys should be enabled")
	}

	got, err := store.GetByKey("sk-test")
	if err != nil {
		t.Fatalf("lookup by secret: %v", err)
	}
	if got.ID != key.ID {
		t.Fatalf("expected key %s, got %s", key.ID, got.ID)
	}

	if _, err := store.Add("sk-test", false); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := store.GetByKey("sk-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCallerKeyRemoveRefusesDefaults(t *testing.T) {
	store := NewCallerKeyStore(newTestDB(t))

	def, _ := store.Add("sk-default", true)
	if err := store.Remove(def.ID); !errors.Is(err, ErrDefaultRecord) {
		t.Fatalf("expected ErrDefaultRecord, got %v", err)
	}

	other, _ := store.Add("sk-other", false)
	if err := store.Remove(other.ID); err != nil {
		t.Fatalf("remove non-default: %v", err)
	}
}

func TestCallerKeySetEnabled(t *testing.T) {
	store := NewCallerKeyStore(newTestDB(t))
	key, _ := store.Add("sk-test", false)

	if err := store.SetEnabled(key.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	got, _ := store.Get(key.ID)
	if got.IsEnabled {
		t.Fatal("key should be disabled")
	}

	if err := store.SetEnabled("missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementRequestCount(t *testing.T) {
	store := NewCallerKeyStore(newTestDB(t))
	key, _ := store.Add("sk-test", false)

	for i := 0; i < 3; i++ {
		if err := store.IncrementRequestCount(key.ID); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	got, _ := store.Get(key.ID)
	if got.RequestCount != 3 {
		t.Fatalf("expected request count 3, got %d", got.RequestCount)
	}
}
