// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package identity

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadOrCreateAt_CreatesAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	created, err := LoadOrCreateAt(path)
	if err != nil {
		t.Fatalf("LoadOrCreateAt (create): %v", err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("identity file mode = %o, expected 0600", info.Mode().Perm())
		}
	}

	loaded, err := LoadOrCreateAt(path)
	if err != nil {
		t.Fatalf("LoadOrCreateAt (load): %v", err)
	}
	if loaded.PublicKey != created.PublicKey {
		t.Error("public key changed between create and load")
	}
	if loaded.SecretKey != created.SecretKey {
		t.Error("secret key changed between create and load")
	}
}

func TestLoadOrCreateAt_RejectsMismatchedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	if _, err := LoadOrCreateAt(path); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Corrompe a chave pública mantendo JSON válido
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f map[string]string
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	f["public_key"] = base64.StdEncoding.EncodeToString(make([]byte, 32))
	corrupted, _ := json.Marshal(f)
	if err := os.WriteFile(path, corrupted, 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Pública que não deriva da secreta é erro duro
	if _, err := LoadOrCreateAt(path); err == nil {
		t.Fatal("expected hard error for mismatched keys")
	}
}

func TestZeroize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	id, err := LoadOrCreateAt(path)
	if err != nil {
		t.Fatalf("LoadOrCreateAt: %v", err)
	}

	id.Zeroize()
	for _, b := range id.SecretKey {
		if b != 0 {
			t.Fatal("secret key not zeroized")
		}
	}
}
