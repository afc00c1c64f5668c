// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package peer

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/tallowteam/flux/internal/hashing"
	"github.com/tallowteam/flux/internal/identity"
	"github.com/tallowteam/flux/internal/peercrypto"
	"github.com/tallowteam/flux/internal/trust"
	"github.com/tallowteam/flux/internal/wire"
)

// testReceiver sobe HandleConnection numa ponta de um net.Pipe e devolve
// a ponta do "sender" mais o canal com o erro final do handler.
func testReceiver(t *testing.T, opts ReceiveOptions) (net.Conn, chan error) {
	t.Helper()

	if opts.OutputDir == "" {
		opts.OutputDir = t.TempDir()
	}
	if opts.Trust == nil {
		store, err := trust.LoadAt(filepath.Join(t.TempDir(), "trusted_devices.json"))
		if err != nil {
			t.Fatalf("trust.LoadAt: %v", err)
		}
		opts.Trust = store
	}
	if opts.Confirm == nil {
		opts.Confirm = func(name, fingerprint string) bool { return true }
	}

	client, server := net.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- HandleConnection(context.Background(), server, opts, testLogger())
	}()
	t.Cleanup(func() { client.Close() })
	return client, errCh
}

func TestReceive_UnencryptedWithChecksum(t *testing.T) {
	// Cenário: arquivo de 13 bytes, estado fresco, confirmação aceita
	content := []byte("Hello, Flux.\n")
	outDir := t.TempDir()
	store, _ := trust.LoadAt(filepath.Join(t.TempDir(), "trusted_devices.json"))

	conn, errCh := testReceiver(t, ReceiveOptions{
		DeviceName: "receiver",
		OutputDir:  outDir,
		Trust:      store,
	})

	mustWrite(t, conn, &wire.Handshake{Version: wire.ProtocolVersion, DeviceName: "sender-laptop"})

	ack := mustRead(t, conn).(*wire.HandshakeAck)
	if !ack.Accepted {
		t.Fatalf("handshake rejected: %s", ack.Reason)
	}

	mustWrite(t, conn, &wire.FileHeader{
		Filename: "file.txt",
		Size:     uint64(len(content)),
		Checksum: hashing.Sum(content),
	})
	mustWrite(t, conn, &wire.DataChunk{Offset: 0, Data: content})

	complete := mustRead(t, conn).(*wire.TransferComplete)
	if complete.BytesReceived != 13 {
		t.Errorf("expected 13 bytes received, got %d", complete.BytesReceived)
	}
	if complete.ChecksumVerified == nil || !*complete.ChecksumVerified {
		t.Error("checksum not verified")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("handler: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "file.txt"))
	if err != nil {
		t.Fatalf("reading received file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("received %q, expected %q", got, content)
	}

	// Trust store agora contém o nome do sender
	if _, ok := store.Get("sender-laptop"); !ok {
		t.Error("sender not added to trust store")
	}
}

func TestReceive_KeyChangedRejection(t *testing.T) {
	// Receiver confia em alice com K1; sender apresenta K2
	k1, _ := peercrypto.GenerateKeyPair()
	k2, _ := peercrypto.GenerateKeyPair()

	store, _ := trust.LoadAt(filepath.Join(t.TempDir(), "trusted_devices.json"))
	if err := store.Add("alice", k1.Public[:], ""); err != nil {
		t.Fatalf("seeding trust store: %v", err)
	}
	before := store.Len()

	id, _ := identity.LoadOrCreateAt(filepath.Join(t.TempDir(), "identity.json"))
	conn, errCh := testReceiver(t, ReceiveOptions{
		DeviceName: "receiver",
		Encrypt:    true,
		Identity:   id,
		Trust:      store,
	})

	mustWrite(t, conn, &wire.Handshake{
		Version:    wire.ProtocolVersion,
		DeviceName: "alice",
		PublicKey:  k2.Public[:],
	})

	ack := mustRead(t, conn).(*wire.HandshakeAck)
	if ack.Accepted {
		t.Fatal("key change accepted")
	}
	if ack.Reason != "key changed" {
		t.Errorf("expected reason %q, got %q", "key changed", ack.Reason)
	}
	conn.Close()
	if err := <-errCh; err == nil {
		t.Fatal("handler should report the trust failure")
	}
	if store.Len() != before {
		t.Error("trust store mutated by rejected connection")
	}
}

func TestReceive_EncryptedRoundTrip(t *testing.T) {
	content := bytes.Repeat([]byte("ciphertext on the wire "), 100)
	outDir := t.TempDir()

	recvID, _ := identity.LoadOrCreateAt(filepath.Join(t.TempDir(), "identity.json"))
	sendID, _ := identity.LoadOrCreateAt(filepath.Join(t.TempDir(), "identity.json"))

	conn, errCh := testReceiver(t, ReceiveOptions{
		DeviceName: "receiver",
		OutputDir:  outDir,
		Encrypt:    true,
		Identity:   recvID,
	})

	mustWrite(t, conn, &wire.Handshake{
		Version:    wire.ProtocolVersion,
		DeviceName: "sender",
		PublicKey:  sendID.PublicKey[:],
	})

	ack := mustRead(t, conn).(*wire.HandshakeAck)
	if !ack.Accepted {
		t.Fatalf("handshake rejected: %s", ack.Reason)
	}

	secret, err := peercrypto.SharedSecret(&sendID.SecretKey, ack.PublicKey)
	if err != nil {
		t.Fatalf("SharedSecret: %v", err)
	}
	channel, err := peercrypto.NewChannel(secret)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}

	mustWrite(t, conn, &wire.FileHeader{
		Filename:  "secret.bin",
		Size:      uint64(len(content)),
		Checksum:  hashing.Sum(content),
		Encrypted: true,
	})

	// Dois chunks para exercitar a ordem sequencial
	half := len(content) / 2
	for _, part := range []struct {
		offset uint64
		data   []byte
	}{{0, content[:half]}, {uint64(half), content[half:]}} {
		ciphertext, nonce, err := channel.EncryptChunk(part.data)
		if err != nil {
			t.Fatalf("EncryptChunk: %v", err)
		}
		mustWrite(t, conn, &wire.DataChunk{Offset: part.offset, Data: ciphertext, Nonce: nonce})
	}

	complete := mustRead(t, conn).(*wire.TransferComplete)
	if complete.BytesReceived != uint64(len(content)) {
		t.Errorf("expected %d bytes, got %d", len(content), complete.BytesReceived)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("handler: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "secret.bin"))
	if err != nil {
		t.Fatalf("reading received file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("decrypted content differs from original")
	}
}

func TestReceive_RefusesEncryptionDowngrade(t *testing.T) {
	id, _ := identity.LoadOrCreateAt(filepath.Join(t.TempDir(), "identity.json"))
	conn, errCh := testReceiver(t, ReceiveOptions{
		DeviceName: "receiver",
		Encrypt:    true,
		Identity:   id,
	})

	// Sender não oferece chave com receiver exigindo criptografia
	mustWrite(t, conn, &wire.Handshake{Version: wire.ProtocolVersion, DeviceName: "plain"})

	ack := mustRead(t, conn).(*wire.HandshakeAck)
	if ack.Accepted {
		t.Fatal("downgrade accepted")
	}
	conn.Close()
	if err := <-errCh; err == nil {
		t.Fatal("handler should report downgrade rejection")
	}
}

func TestReceive_RejectsOutOfOrderChunk(t *testing.T) {
	content := []byte("strict ordering")
	outDir := t.TempDir()
	conn, errCh := testReceiver(t, ReceiveOptions{DeviceName: "receiver", OutputDir: outDir})

	mustWrite(t, conn, &wire.Handshake{Version: wire.ProtocolVersion, DeviceName: "sender"})
	mustRead(t, conn) // ack

	mustWrite(t, conn, &wire.FileHeader{
		Filename: "ordered.bin",
		Size:     uint64(len(content)),
		Checksum: hashing.Sum(content),
	})
	// Offset errado logo no primeiro chunk
	mustWrite(t, conn, &wire.DataChunk{Offset: 5, Data: content})

	if em, ok := mustRead(t, conn).(*wire.ErrorMessage); !ok {
		t.Fatal("expected error message for out-of-order chunk")
	} else if em.Message == "" {
		t.Error("error message is empty")
	}
	if err := <-errCh; err == nil {
		t.Fatal("handler should fail on out-of-order chunk")
	}

	// O arquivo parcial não sobrevive
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 0 {
		t.Errorf("partial file left behind: %v", entries)
	}
}

func TestReceive_RejectsVersionMismatch(t *testing.T) {
	conn, errCh := testReceiver(t, ReceiveOptions{DeviceName: "receiver"})

	mustWrite(t, conn, &wire.Handshake{Version: 99, DeviceName: "future"})

	ack := mustRead(t, conn).(*wire.HandshakeAck)
	if ack.Accepted {
		t.Fatal("version mismatch accepted")
	}
	conn.Close()
	<-errCh
}

func TestReceive_RefusesPlaintextWithoutChecksum(t *testing.T) {
	conn, errCh := testReceiver(t, ReceiveOptions{DeviceName: "receiver"})

	mustWrite(t, conn, &wire.Handshake{Version: wire.ProtocolVersion, DeviceName: "sender"})
	mustRead(t, conn) // ack

	// Sem AEAD e sem hash não há integridade nenhuma
	mustWrite(t, conn, &wire.FileHeader{Filename: "naked.bin", Size: 4})

	if _, ok := mustRead(t, conn).(*wire.ErrorMessage); !ok {
		t.Fatal("expected rejection of unverifiable transfer")
	}
	if err := <-errCh; err == nil {
		t.Fatal("handler should refuse plaintext without checksum")
	}
}

func TestCreateExclusive_DerivesUniqueName(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	f, path, err := createExclusive(dir, "file.txt")
	if err != nil {
		t.Fatalf("createExclusive: %v", err)
	}
	f.Close()

	if filepath.Base(path) != "file_1.txt" {
		t.Errorf("expected file_1.txt, got %s", filepath.Base(path))
	}
}

// --- helpers ---

func mustWrite(t *testing.T, conn net.Conn, msg wire.Message) {
	t.Helper()
	if err := wire.WriteMessage(conn, msg); err != nil {
		t.Fatalf("writing %T: %v", msg, err)
	}
}

func mustRead(t *testing.T, conn net.Conn) wire.Message {
	t.Helper()
	msg, err := wire.ReadMessage(conn)
	if err != nil {
		t.Fatalf("reading message: %v", err)
	}
	return msg
}
