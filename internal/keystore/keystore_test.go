package keystore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "keystore.db"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetOrCreateKeyIsStable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreateKey(ctx, "cart")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.HasPrefix(first, "cart-") {
		t.Errorf("Expected key prefixed with its namespace, got %q", first)
	}
	if parts := strings.Split(first, "-"); len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		t.Errorf("Expected <prefix>-<timestamp>-<random> format, got %q", first)
	}

	second, err := store.GetOrCreateKey(ctx, "cart")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if second != first {
		t.Errorf("Expected the same key on repeat lookups, got %q then %q", first, second)
	}
}

func TestNamespacesAreIndependent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	cart, err := store.GetOrCreateKey(ctx, "cart")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	reservation, err := store.GetOrCreateKey(ctx, "reservation")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cart == reservation {
		t.Errorf("Expected distinct keys per namespace")
	}
}

func TestKeySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystore.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	first, err := store.GetOrCreateKey(ctx, "cart")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer reopened.Close()
	second, err := reopened.GetOrCreateKey(ctx, "cart")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if second != first {
		t.Errorf("Expected the key to survive reopen, got %q then %q", first, second)
	}
}

func TestEmptyNamespaceRejected(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetOrCreateKey(context.Background(), "  "); !errors.Is(err, ErrEmptyNamespace) {
		t.Errorf("Expected ErrEmptyNamespace, got %v", err)
	}
}
