// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package syncer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tallowteam/flux/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine() *engine.Engine {
	e := engine.New(testLogger(), nil, nil)
	e.Report = io.Discard
	return e
}

func writeFileAt(t *testing.T, path string, content []byte, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
}

func countKind(p *Plan, kind ActionKind) int {
	n := 0
	for _, a := range p.Actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

func findAction(p *Plan, kind ActionKind, rel string) *Action {
	for i := range p.Actions {
		if p.Actions[i].Kind == kind && p.Actions[i].RelPath == rel {
			return &p.Actions[i]
		}
	}
	return nil
}

func TestComputePlan_MirrorScenario(t *testing.T) {
	// Cenário: x.txt atualizado, y.log excluído do plano, stale.bin órfão
	now := time.Now()
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")

	writeFileAt(t, filepath.Join(src, "x.txt"), []byte("fresh"), now)
	writeFileAt(t, filepath.Join(src, "y.log"), []byte("log"), now)
	writeFileAt(t, filepath.Join(dst, "x.txt"), []byte("stale"), now.Add(-3*time.Second))
	writeFileAt(t, filepath.Join(dst, "stale.bin"), []byte("orphan"), now)

	plan, err := ComputePlan(src+"/", dst, nil, Options{
		Exclude:       []string{"*.log"},
		DeleteOrphans: true,
	})
	if err != nil {
		t.Fatalf("ComputePlan: %v", err)
	}

	if a := findAction(plan, UpdateChanged, "x.txt"); a == nil {
		t.Error("expected UpdateChanged for x.txt")
	}
	if a := findAction(plan, DeleteOrphan, "stale.bin"); a == nil {
		t.Error("expected DeleteOrphan for stale.bin")
	}
	// y.log é filtrado: não aparece no plano de jeito nenhum
	for _, a := range plan.Actions {
		if strings.Contains(a.RelPath, "y.log") {
			t.Errorf("excluded file leaked into plan: %+v", a)
		}
	}
}

func TestComputePlan_SizeDifferenceWins(t *testing.T) {
	now := time.Now()
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")

	// Mesmo mtime, tamanhos diferentes: atualiza sem olhar o relógio
	writeFileAt(t, filepath.Join(src, "f"), []byte("12345"), now)
	writeFileAt(t, filepath.Join(dst, "f"), []byte("12"), now)

	plan, err := ComputePlan(src+"/", dst, nil, Options{})
	if err != nil {
		t.Fatalf("ComputePlan: %v", err)
	}
	if countKind(plan, UpdateChanged) != 1 {
		t.Errorf("expected UpdateChanged for size mismatch: %+v", plan.Actions)
	}
}

func TestComputePlan_MtimeToleranceSkips(t *testing.T) {
	now := time.Now()
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")

	// Diferença de 1s fica dentro da tolerância FAT32 de 2s
	writeFileAt(t, filepath.Join(src, "f"), []byte("same"), now)
	writeFileAt(t, filepath.Join(dst, "f"), []byte("same"), now.Add(-1*time.Second))

	plan, err := ComputePlan(src+"/", dst, nil, Options{})
	if err != nil {
		t.Fatalf("ComputePlan: %v", err)
	}
	if countKind(plan, Skip) != 1 || plan.HasChanges() {
		t.Errorf("expected only Skip(unchanged): %+v", plan.Actions)
	}
}

func TestComputePlan_TrailingSlashSemantics(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tree")
	dst := filepath.Join(dir, "out")
	writeFileAt(t, filepath.Join(src, "f.txt"), []byte("x"), time.Time{})
	if err := os.MkdirAll(dst, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	// Com barra: conteúdo direto em dst
	withSlash, err := ComputePlan(src+"/", dst, nil, Options{})
	if err != nil {
		t.Fatalf("ComputePlan: %v", err)
	}
	a := findAction(withSlash, CopyNew, "f.txt")
	if a == nil {
		t.Fatal("expected CopyNew for f.txt")
	}
	if a.Dst != filepath.Join(dst, "f.txt") {
		t.Errorf("with slash: dest %q", a.Dst)
	}

	// Sem barra: o próprio diretório vai para dentro de dst
	noSlash, err := ComputePlan(src, dst, nil, Options{})
	if err != nil {
		t.Fatalf("ComputePlan: %v", err)
	}
	a = findAction(noSlash, CopyNew, "f.txt")
	if a == nil {
		t.Fatal("expected CopyNew for f.txt")
	}
	if a.Dst != filepath.Join(dst, "tree", "f.txt") {
		t.Errorf("without slash: dest %q", a.Dst)
	}
}

func TestComputePlan_EmptySourceSafety(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty")
	dst := filepath.Join(dir, "full")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFileAt(t, filepath.Join(dst, "precious.txt"), []byte("keep me"), time.Time{})

	// Origem vazia + delete sem force: recusa
	if _, err := ComputePlan(src+"/", dst, nil, Options{DeleteOrphans: true}); err == nil {
		t.Fatal("expected refusal for empty source with delete")
	}

	// Com force, o plano materializa as deleções
	plan, err := ComputePlan(src+"/", dst, nil, Options{DeleteOrphans: true, Force: true})
	if err != nil {
		t.Fatalf("ComputePlan with force: %v", err)
	}
	if countKind(plan, DeleteOrphan) != 1 {
		t.Errorf("expected 1 DeleteOrphan: %+v", plan.Actions)
	}
}

func TestExecuteThenRecompute_Idempotent(t *testing.T) {
	// Propriedade: executar o plano e recomputar produz só Skips
	now := time.Now().Add(-10 * time.Second)
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")

	writeFileAt(t, filepath.Join(src, "one.txt"), []byte("1"), now)
	writeFileAt(t, filepath.Join(src, "sub", "two.txt"), []byte("22"), now)
	writeFileAt(t, filepath.Join(dst, "orphan.txt"), []byte("gone"), now)

	plan, err := ComputePlan(src+"/", dst, nil, Options{DeleteOrphans: true})
	if err != nil {
		t.Fatalf("ComputePlan: %v", err)
	}

	result, err := Execute(context.Background(), plan, testEngine(), testLogger())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Copied != 2 || result.Deleted != 1 || result.Failed != 0 {
		t.Fatalf("unexpected execute result: %+v", result)
	}

	// Preserva os mtimes da origem no destino para a comparação
	for _, rel := range []string{"one.txt", filepath.Join("sub", "two.txt")} {
		st, err := os.Stat(filepath.Join(src, rel))
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if err := os.Chtimes(filepath.Join(dst, rel), st.ModTime(), st.ModTime()); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	again, err := ComputePlan(src+"/", dst, nil, Options{DeleteOrphans: true})
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if again.HasChanges() {
		again.Format(os.Stderr)
		t.Error("second plan is not all-Skip")
	}
}

func TestComputePlan_DryRunDoesNotTouchDisk(t *testing.T) {
	now := time.Now()
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")
	writeFileAt(t, filepath.Join(src, "x.txt"), []byte("x"), now)
	writeFileAt(t, filepath.Join(dst, "stale.bin"), []byte("orphan"), now)

	plan, err := ComputePlan(src+"/", dst, nil, Options{DeleteOrphans: true})
	if err != nil {
		t.Fatalf("ComputePlan: %v", err)
	}

	var out strings.Builder
	plan.Format(&out)
	if !strings.Contains(out.String(), "copy") || !strings.Contains(out.String(), "delete") {
		t.Errorf("formatted plan incomplete: %q", out.String())
	}

	// Só computar + formatar não executa nada
	if _, err := os.Stat(filepath.Join(dst, "stale.bin")); err != nil {
		t.Error("dry-run deleted the orphan")
	}
	if _, err := os.Stat(filepath.Join(dst, "x.txt")); !os.IsNotExist(err) {
		t.Error("dry-run copied a file")
	}
}
