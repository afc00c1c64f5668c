// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tallowteam/flux/internal/backend"
	"github.com/tallowteam/flux/internal/chunkplan"
	"github.com/tallowteam/flux/internal/hashing"
	"github.com/tallowteam/flux/internal/manifest"
)

func TestParallelCopy_Direct(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	content := patternFile(2 * 1024 * 1024)
	writeFile(t, src, content)

	local := backend.NewLocal()
	err := testEngine().parallelCopy(context.Background(), local, local,
		src, dst, int64(len(content)), Options{Chunks: 4, Verify: true})
	if err != nil {
		t.Fatalf("parallelCopy: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("reading dest: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("destination differs from source")
	}
}

func TestParallelCopy_ResumeSkipsCompletedChunks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	content := patternFile(1024 * 1024)
	writeFile(t, src, content)

	chunks := chunkplan.ChunkFile(int64(len(content)), 4)

	// Simula uma interrupção: chunk 0 marcado como concluído, mas o
	// conteúdo gravado no destino é deliberadamente diferente da origem.
	// Se o resume re-copiasse o chunk 0, a marca desapareceria.
	marker := bytes.Repeat([]byte{0xEE}, int(chunks[0].Length))
	preDst := make([]byte, len(content))
	copy(preDst, marker)
	writeFile(t, dst, preDst)

	m := manifest.New(src, dst, int64(len(content)), chunks, false)
	if err := m.MarkCompleted(0, hashing.Sum(marker)); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	local := backend.NewLocal()
	err := testEngine().parallelCopy(context.Background(), local, local,
		src, dst, int64(len(content)), Options{Resume: true})
	if err != nil {
		t.Fatalf("parallelCopy: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("reading dest: %v", err)
	}

	// Chunk 0 intocado (prova que não foi copiado de novo)
	if !bytes.Equal(got[:chunks[0].Length], marker) {
		t.Error("completed chunk was copied again")
	}
	// Chunks restantes vieram da origem
	if !bytes.Equal(got[chunks[0].Length:], content[chunks[0].Length:]) {
		t.Error("pending chunks not copied")
	}
	if _, err := os.Stat(manifest.SidecarPath(dst)); !os.IsNotExist(err) {
		t.Error("sidecar survived completed resume")
	}
}

func TestParallelCopy_IncompatibleManifestRestarts(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	content := patternFile(512 * 1024)
	writeFile(t, src, content)

	// Manifest gravado para uma origem de tamanho diferente
	stale := manifest.New(src, dst, 999, chunkplan.ChunkFile(999, 2), false)
	if err := stale.MarkCompleted(0, "stale"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := stale.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	local := backend.NewLocal()
	err := testEngine().parallelCopy(context.Background(), local, local,
		src, dst, int64(len(content)), Options{Resume: true, Verify: true})
	if err != nil {
		t.Fatalf("parallelCopy: %v", err)
	}

	got, _ := os.ReadFile(dst)
	if !bytes.Equal(got, content) {
		t.Error("restart after incompatible manifest produced wrong content")
	}
}

func TestSequentialCopy_ResumeSkipsPrefix(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	content := patternFile(300 * 1024)
	writeFile(t, src, content)

	// Destino parcial com os primeiros 100KB já gravados + manifest
	prefix := 100 * 1024
	writeFile(t, dst, content[:prefix])
	m := manifest.New(src, dst, int64(len(content)),
		chunkplan.ChunkFile(int64(len(content)), 1), false)
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, err := testEngine().Copy(context.Background(), src, dst, Options{
		Resume:     true,
		Verify:     true,
		OnConflict: ConflictOverwrite,
	})
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}

	got, _ := os.ReadFile(dst)
	if !bytes.Equal(got, content) {
		t.Error("resumed sequential copy produced wrong content")
	}
}
