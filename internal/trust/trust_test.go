// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package trust

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func storeAt(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trusted_devices.json")
	s, err := LoadAt(path)
	if err != nil {
		t.Fatalf("LoadAt: %v", err)
	}
	return s, path
}

func TestVerify_TOFULifecycle(t *testing.T) {
	s, path := storeAt(t)
	key := bytes.Repeat([]byte{0x42}, 32)

	if v := s.Verify("alice", key); v != Unknown {
		t.Fatalf("fresh store: expected Unknown, got %v", v)
	}

	if err := s.Add("alice", key, "Alice's laptop"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if v := s.Verify("alice", key); v != Trusted {
		t.Fatalf("after Add: expected Trusted, got %v", v)
	}

	// Chave diferente para nome conhecido: KeyChanged
	otherKey := bytes.Repeat([]byte{0x43}, 32)
	if v := s.Verify("alice", otherKey); v != KeyChanged {
		t.Fatalf("expected KeyChanged, got %v", v)
	}

	// Persistência: recarrega do disco
	reloaded, err := LoadAt(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if v := reloaded.Verify("alice", key); v != Trusted {
		t.Fatalf("reloaded store: expected Trusted, got %v", v)
	}

	dev, ok := reloaded.Get("alice")
	if !ok {
		t.Fatal("alice missing after reload")
	}
	if dev.FriendlyName != "Alice's laptop" {
		t.Errorf("friendly name lost: %q", dev.FriendlyName)
	}
	if dev.FirstSeen.IsZero() || dev.LastSeen.IsZero() {
		t.Error("timestamps not recorded")
	}
}

func TestTouch_UpdatesLastSeen(t *testing.T) {
	s, _ := storeAt(t)
	key := bytes.Repeat([]byte{1}, 32)
	if err := s.Add("bob", key, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}

	before, _ := s.Get("bob")
	if err := s.Touch("bob"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	after, _ := s.Get("bob")
	if after.LastSeen.Before(before.LastSeen) {
		t.Error("last_seen went backwards")
	}

	if err := s.Touch("nobody"); err == nil {
		t.Error("Touch on unknown device must fail")
	}
}

func TestLoadAt_CorruptIsHardError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_devices.json")
	if err := os.WriteFile(path, []byte("{definitely broken"), 0600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	// Corrupção é erro duro, nunca reset silencioso
	if _, err := LoadAt(path); err == nil {
		t.Fatal("expected hard error for corrupt trust store")
	}
}

func TestVerify_EmptyKeyConsistency(t *testing.T) {
	// Transferências plaintext não oferecem chave; o nome confirmado
	// fica registrado com chave vazia e segue Trusted
	s, _ := storeAt(t)
	if err := s.Add("carol", nil, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if v := s.Verify("carol", nil); v != Trusted {
		t.Fatalf("expected Trusted for matching empty key, got %v", v)
	}
	if v := s.Verify("carol", bytes.Repeat([]byte{9}, 32)); v != KeyChanged {
		t.Fatalf("expected KeyChanged when a key appears, got %v", v)
	}
}
