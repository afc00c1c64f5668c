// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package peercrypto

import (
	"bytes"
	"testing"
)

func TestKeyExchange_BothSidesDeriveSameKey(t *testing.T) {
	alice, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	bob, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	secretA, err := SharedSecret(&alice.Private, bob.Public[:])
	if err != nil {
		t.Fatalf("SharedSecret (alice): %v", err)
	}
	secretB, err := SharedSecret(&bob.Private, alice.Public[:])
	if err != nil {
		t.Fatalf("SharedSecret (bob): %v", err)
	}

	keyA := DeriveSessionKey(secretA)
	keyB := DeriveSessionKey(secretB)
	if keyA != keyB {
		t.Fatal("peers derived different session keys")
	}
}

func TestSharedSecret_RejectsBadKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	if _, err := SharedSecret(&kp.Private, []byte("short")); err == nil {
		t.Error("expected error for wrong-length peer key")
	}

	// Chave pública toda-zero produz segredo todo-zero
	if _, err := SharedSecret(&kp.Private, make([]byte, KeySize)); err == nil {
		t.Error("expected error for all-zero peer key")
	}
}

func TestChannel_EncryptDecryptChunk(t *testing.T) {
	alice, _ := GenerateKeyPair()
	bob, _ := GenerateKeyPair()

	secretA, _ := SharedSecret(&alice.Private, bob.Public[:])
	secretB, _ := SharedSecret(&bob.Private, alice.Public[:])

	sender, err := NewChannel(secretA)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	receiver, err := NewChannel(secretB)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}

	plaintext := []byte("Hello, Flux.\n")
	ciphertext, nonce, err := sender.EncryptChunk(plaintext)
	if err != nil {
		t.Fatalf("EncryptChunk: %v", err)
	}
	if len(nonce) != NonceSize {
		t.Errorf("expected %d-byte nonce, got %d", NonceSize, len(nonce))
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Error("ciphertext equals plaintext")
	}

	decrypted, err := receiver.DecryptChunk(ciphertext, nonce)
	if err != nil {
		t.Fatalf("DecryptChunk: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("expected %q, got %q", plaintext, decrypted)
	}
}

func TestChannel_TamperDetection(t *testing.T) {
	alice, _ := GenerateKeyPair()
	bob, _ := GenerateKeyPair()
	secretA, _ := SharedSecret(&alice.Private, bob.Public[:])
	secretB, _ := SharedSecret(&bob.Private, alice.Public[:])
	sender, _ := NewChannel(secretA)
	receiver, _ := NewChannel(secretB)

	ciphertext, nonce, err := sender.EncryptChunk([]byte("integrity matters"))
	if err != nil {
		t.Fatalf("EncryptChunk: %v", err)
	}

	ciphertext[0] ^= 0x01
	if _, err := receiver.DecryptChunk(ciphertext, nonce); err == nil {
		t.Fatal("tampered ciphertext authenticated")
	}
}

func TestChannel_FreshNoncePerChunk(t *testing.T) {
	alice, _ := GenerateKeyPair()
	bob, _ := GenerateKeyPair()
	secret, _ := SharedSecret(&alice.Private, bob.Public[:])
	ch, _ := NewChannel(secret)

	_, n1, err := ch.EncryptChunk([]byte("a"))
	if err != nil {
		t.Fatalf("EncryptChunk: %v", err)
	}
	_, n2, err := ch.EncryptChunk([]byte("a"))
	if err != nil {
		t.Fatalf("EncryptChunk: %v", err)
	}
	if bytes.Equal(n1, n2) {
		t.Fatal("nonce reused across chunks")
	}
}

func TestPlaintextChannel_RefusesCrypto(t *testing.T) {
	ch := PlaintextChannel()
	if ch.Encrypted {
		t.Fatal("plaintext channel reports encrypted")
	}
	if _, _, err := ch.EncryptChunk([]byte("x")); err == nil {
		t.Error("EncryptChunk on plaintext channel must fail")
	}
	if _, err := ch.DecryptChunk([]byte("x"), make([]byte, NonceSize)); err == nil {
		t.Error("DecryptChunk on plaintext channel must fail")
	}
}

func TestWipe(t *testing.T) {
	secret := []byte{1, 2, 3, 4}
	Wipe(secret)
	for i, b := range secret {
		if b != 0 {
			t.Errorf("byte %d not wiped", i)
		}
	}
	Wipe(nil) // não pode entrar em pânico
}
