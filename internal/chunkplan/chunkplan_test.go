// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package chunkplan

import "testing"

func TestChunkFile_Contiguity(t *testing.T) {
	// Propriedade: para qualquer size e count, os chunks são contíguos
	// a partir de 0 e as lengths somam size
	cases := []struct {
		size  int64
		count int
	}{
		{0, 1},
		{1, 1},
		{100, 3},
		{1024, 4},
		{52428800, 4}, // 50 MiB em 4 chunks
		{1000, 7},
		{10, 10},
	}

	for _, tc := range cases {
		chunks := ChunkFile(tc.size, tc.count)

		var offset, total int64
		for i, c := range chunks {
			if c.Index != i {
				t.Errorf("size=%d count=%d: chunk %d has index %d", tc.size, tc.count, i, c.Index)
			}
			if c.Offset != offset {
				t.Errorf("size=%d count=%d: chunk %d offset %d, expected %d",
					tc.size, tc.count, i, c.Offset, offset)
			}
			offset = c.End()
			total += c.Length
		}
		if total != tc.size {
			t.Errorf("size=%d count=%d: lengths sum to %d", tc.size, tc.count, total)
		}
	}
}

func TestChunkFile_RemainderInLastChunk(t *testing.T) {
	chunks := ChunkFile(10, 3)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	// 10/3 = 3; o último absorve o resto: 3+3+4
	if chunks[0].Length != 3 || chunks[1].Length != 3 || chunks[2].Length != 4 {
		t.Errorf("expected lengths 3,3,4, got %d,%d,%d",
			chunks[0].Length, chunks[1].Length, chunks[2].Length)
	}
}

func TestChunkFile_ZeroSize(t *testing.T) {
	chunks := ChunkFile(0, 8)
	if len(chunks) != 1 {
		t.Fatalf("zero-size file must produce one chunk, got %d", len(chunks))
	}
	if chunks[0].Length != 0 || chunks[0].Offset != 0 {
		t.Errorf("zero-size chunk must be empty at offset 0, got offset=%d length=%d",
			chunks[0].Offset, chunks[0].Length)
	}
}

func TestChunkFile_CountLargerThanSize(t *testing.T) {
	chunks := ChunkFile(3, 100)
	if len(chunks) != 3 {
		t.Fatalf("count is clamped to size, expected 3 chunks, got %d", len(chunks))
	}
}

func TestAutoChunkCount_Tiers(t *testing.T) {
	const mb = 1024 * 1024

	// Abaixo e exatamente no limite de 10MB: sempre 1 chunk
	if got := AutoChunkCount(0); got != 1 {
		t.Errorf("0 bytes: expected 1, got %d", got)
	}
	if got := AutoChunkCount(10*mb - 1); got != 1 {
		t.Errorf("10MB-1: expected 1, got %d", got)
	}
	if got := AutoChunkCount(10 * mb); got != 1 {
		t.Errorf("exactly 10MB: expected 1 (boundary), got %d", got)
	}

	// Acima do limite, o valor depende do paralelismo do host;
	// verifica apenas a faixa válida e a monotonicidade
	prev := 1
	for _, size := range []int64{50 * mb, 500 * mb, 5 * 1024 * mb, 50 * 1024 * mb} {
		got := AutoChunkCount(size)
		if got < 1 || got > 16 {
			t.Errorf("size=%d: count %d out of range [1,16]", size, got)
		}
		if got < prev {
			t.Errorf("size=%d: count %d decreased from %d", size, got, prev)
		}
		prev = got
	}
}
