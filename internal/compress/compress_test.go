// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package compress

import (
	"bytes"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte("flux compresses chunks with zstd. "), 2000)

	compressed, err := CompressChunk(original, DefaultLevel)
	if err != nil {
		t.Fatalf("CompressChunk: %v", err)
	}
	if len(compressed) >= len(original) {
		t.Errorf("repetitive payload should shrink: %d -> %d", len(original), len(compressed))
	}

	decompressed, err := DecompressChunk(compressed)
	if err != nil {
		t.Fatalf("DecompressChunk: %v", err)
	}
	if !bytes.Equal(decompressed, original) {
		t.Error("round trip does not reproduce the original")
	}
}

func TestCompressEmptyChunk(t *testing.T) {
	compressed, err := CompressChunk(nil, DefaultLevel)
	if err != nil {
		t.Fatalf("CompressChunk: %v", err)
	}
	decompressed, err := DecompressChunk(compressed)
	if err != nil {
		t.Fatalf("DecompressChunk: %v", err)
	}
	if len(decompressed) != 0 {
		t.Errorf("expected empty output, got %d bytes", len(decompressed))
	}
}

func TestDecompressGarbage(t *testing.T) {
	if _, err := DecompressChunk([]byte("definitely not zstd")); err == nil {
		t.Fatal("expected error decompressing garbage")
	}
}

func TestCompressOutOfRangeLevelFallsBack(t *testing.T) {
	payload := []byte("level fallback")
	compressed, err := CompressChunk(payload, 99)
	if err != nil {
		t.Fatalf("CompressChunk: %v", err)
	}
	decompressed, err := DecompressChunk(compressed)
	if err != nil {
		t.Fatalf("DecompressChunk: %v", err)
	}
	if !bytes.Equal(decompressed, payload) {
		t.Error("round trip with fallback level failed")
	}
}
