// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/tallowteam/flux/internal/backend"
	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/history"
	"github.com/tallowteam/flux/internal/location"
	"github.com/tallowteam/flux/internal/manifest"
)

// parallelThreshold é o tamanho mínimo para o caminho paralelo (10MB).
const parallelThreshold = 10 * 1024 * 1024

// Engine orquestra transferências entre backends.
type Engine struct {
	logger  *slog.Logger
	aliases map[string]string
	history *history.Store // best-effort; pode ser nil

	// Report recebe a saída do dry-run; default os.Stdout.
	Report io.Writer
}

// New cria um Engine.
func New(logger *slog.Logger, aliases map[string]string, hist *history.Store) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:  logger,
		aliases: aliases,
		history: hist,
		Report:  os.Stdout,
	}
}

// Copy valida, classifica e executa a transferência de source para dest.
func (e *Engine) Copy(ctx context.Context, source, dest string, opts Options) (*Result, error) {
	start := time.Now()

	// Aliases resolvem antes da detecção, nas duas pontas
	source = location.ResolveAlias(source, e.aliases)
	dest = location.ResolveAlias(dest, e.aliases)

	srcLoc, err := location.Detect(source)
	if err != nil {
		return nil, err
	}
	dstLoc, err := location.Detect(dest)
	if err != nil {
		return nil, err
	}

	srcB, err := backend.New(srcLoc)
	if err != nil {
		return nil, err
	}
	defer srcB.Close()

	dstB, err := backend.New(dstLoc)
	if err != nil {
		return nil, err
	}
	defer dstB.Close()

	srcStat, err := srcB.Stat(srcLoc.Path)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	filter := NewFilter(opts.Include, opts.Exclude)

	if srcStat.IsDir {
		if !opts.Recursive {
			return nil, fluxerr.Newf(fluxerr.KindTransfer,
				"%s is a directory; use -r to copy recursively", srcLoc.Redacted())
		}
		err = e.copyDir(ctx, srcB, dstB, srcLoc, dstLoc, filter, opts, result)
	} else {
		err = e.copySingle(ctx, srcB, dstB, srcLoc, dstLoc, srcStat, opts, result)
	}

	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}

	e.recordHistory(srcLoc, dstLoc, result)
	return result, nil
}

// copySingle transfere um único arquivo.
func (e *Engine) copySingle(ctx context.Context, srcB, dstB backend.Backend, srcLoc, dstLoc location.Location, srcStat backend.FileStat, opts Options, result *Result) error {
	destPath := dstLoc.Path

	// Destino existente e diretório: compõe dest/basename(src)
	if st, err := dstB.Stat(destPath); err == nil && st.IsDir {
		destPath = joinFor(dstLoc, destPath, baseOf(srcLoc))
	}

	// Checagem best-effort de mesmo arquivo (só faz sentido local-local)
	if srcLoc.Kind == location.KindLocal && dstLoc.Kind == location.KindLocal {
		if samePath(srcLoc.Path, destPath) {
			return fluxerr.Newf(fluxerr.KindTransfer,
				"source and destination are the same file: %s", srcLoc.Path)
		}
	}

	outcome := e.copyOne(ctx, srcB, dstB, srcLoc, dstLoc, srcLoc.Path, destPath, srcStat, opts)
	result.record(outcome)
	return outcome.Err
}

// copyDir copia uma árvore em dois passes: contagem para totais de
// progresso, depois a descida real. Symlinks não são seguidos.
// Falhas por arquivo acumulam; a cópia do diretório não aborta.
func (e *Engine) copyDir(ctx context.Context, srcB, dstB backend.Backend, srcLoc, dstLoc location.Location, filter *Filter, opts Options, result *Result) error {
	// Primeiro passe: totais
	var totalFiles, totalBytes int64
	err := walkTree(srcB, srcLoc.Path, "", filter, func(rel string, entry backend.FileEntry) error {
		totalFiles++
		totalBytes += entry.Stat.Size
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Info("starting directory copy",
		"source", srcLoc.Redacted(), "dest", dstLoc.Redacted(),
		"files", totalFiles, "bytes", totalBytes)

	// Segundo passe: cópia
	return walkTree(srcB, srcLoc.Path, "", filter, func(rel string, entry backend.FileEntry) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		destPath := joinFor(dstLoc, dstLoc.Path, rel)
		if !opts.DryRun {
			if err := dstB.CreateDirAll(parentFor(dstLoc, destPath)); err != nil {
				result.record(FileOutcome{Source: entry.Path, Dest: destPath, Err: err})
				return nil
			}
		}

		outcome := e.copyOne(ctx, srcB, dstB, srcLoc, dstLoc, entry.Path, destPath, entry.Stat, opts)
		result.record(outcome)
		// Falha individual não aborta o walk
		return nil
	})
}

// copyOne resolve conflito e copia um arquivo com a estratégia de falha.
func (e *Engine) copyOne(ctx context.Context, srcB, dstB backend.Backend, srcLoc, dstLoc location.Location, srcPath, destPath string, srcStat backend.FileStat, opts Options) FileOutcome {
	outcome := FileOutcome{Source: srcPath, Dest: destPath, Bytes: srcStat.Size}

	existed := false
	if _, err := dstB.Stat(destPath); err == nil {
		existed = true
	}

	action, finalDest, err := e.decideConflict(dstB, destPath, opts)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Dest = finalDest

	if opts.DryRun {
		e.reportDryRun(action, existed, finalDest, srcStat.Size)
		if action == actionSkip {
			outcome.Skipped = "exists (dry-run)"
		} else {
			outcome.Copied = true
		}
		return outcome
	}

	if action == actionSkip {
		outcome.Skipped = "destination exists"
		return outcome
	}

	err = withFailureHandling(ctx, e.logger, opts, srcPath, func() error {
		return e.transferFile(ctx, srcB, dstB, srcLoc, dstLoc, srcPath, finalDest, srcStat, opts)
	})
	if err != nil {
		outcome.Err = err
		return outcome
	}

	outcome.Copied = true
	return outcome
}

// decideConflict aplica a estratégia de conflito antes de qualquer escrita.
func (e *Engine) decideConflict(dstB backend.Backend, destPath string, opts Options) (conflictAction, string, error) {
	if opts.DryRun {
		// Dry-run nunca pergunta: Ask degrada para a decisão silenciosa
		strategy := opts.OnConflict
		if strategy == ConflictAsk {
			strategy = ConflictSkip
		}
		return resolveConflict(dstB, destPath, strategy)
	}
	return resolveConflict(dstB, destPath, opts.OnConflict)
}

// transferFile despacha entre o caminho paralelo e o sequencial.
// Paralelo exige suporte nas duas pontas, sem throttle e ≥ 10MB.
func (e *Engine) transferFile(ctx context.Context, srcB, dstB backend.Backend, srcLoc, dstLoc location.Location, srcPath, destPath string, srcStat backend.FileStat, opts Options) error {
	srcLocal, srcOK := srcB.(*backend.Local)
	dstLocal, dstOK := dstB.(*backend.Local)

	parallelOK := srcOK && dstOK &&
		srcB.Features().SupportsParallel && dstB.Features().SupportsParallel &&
		opts.LimitBytesPerSec == 0 &&
		srcStat.Size >= parallelThreshold

	if parallelOK {
		if err := e.parallelCopy(ctx, srcLocal, dstLocal, srcPath, destPath, srcStat.Size, opts); err == nil {
			return nil
		} else if fluxerr.IsKind(err, fluxerr.KindChecksumMismatch) {
			return err
		} else {
			e.logger.Warn("parallel copy failed, falling back to sequential",
				"source", srcPath, "error", err)
		}
	}

	return e.sequentialCopy(ctx, srcB, dstB, srcLoc, dstLoc, srcPath, destPath, srcStat, opts)
}

// reportDryRun escreve uma linha do relatório do dry-run.
func (e *Engine) reportDryRun(action conflictAction, existed bool, destPath string, size int64) {
	verb := "copy"
	switch {
	case action == actionSkip:
		verb = "skip"
	case action == actionRename:
		verb = "rename"
	case existed:
		verb = "overwrite"
	}
	fmt.Fprintf(e.Report, "%-9s %s (%d bytes)\n", verb, destPath, size)
}

// recordHistory registra a operação concluída; erros nunca falham a
// transferência.
func (e *Engine) recordHistory(srcLoc, dstLoc location.Location, result *Result) {
	if e.history == nil {
		return
	}
	status := "completed"
	if result.FilesFailed > 0 {
		status = "partial"
	}
	err := e.history.Record(history.Entry{
		Source:   srcLoc.Redacted(),
		Dest:     dstLoc.Redacted(),
		Bytes:    result.BytesCopied,
		Duration: result.Duration.Seconds(),
		Status:   status,
	})
	if err != nil {
		e.logger.Warn("failed to record history", "error", err)
	}
}

// walkTree percorre a árvore do backend chamando visit para cada arquivo
// que passa no filtro. Diretórios excluídos são podados na descida.
func walkTree(b backend.Backend, root, rel string, filter *Filter, visit func(rel string, entry backend.FileEntry) error) error {
	current := root
	if rel != "" {
		current = joinRaw(root, rel)
	}

	entries, err := b.ListDir(current)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := baseName(entry.Path)
		entryRel := name
		if rel != "" {
			entryRel = rel + "/" + name
		}

		switch {
		case entry.Stat.IsDir:
			if filter.PruneDir(entryRel) {
				continue
			}
			if err := walkTree(b, root, entryRel, filter, visit); err != nil {
				return err
			}
		case entry.Stat.IsFile:
			if !filter.Matches(entryRel) {
				continue
			}
			if err := visit(entryRel, entry); err != nil {
				return err
			}
		default:
			// Symlinks e especiais não são seguidos nem copiados
		}
	}
	return nil
}

// --- helpers de caminho por backend ---

// joinFor junta caminhos com o separador do backend de destino.
func joinFor(loc location.Location, dir, elem string) string {
	switch loc.Kind {
	case location.KindLocal:
		return filepath.Join(dir, filepath.FromSlash(elem))
	case location.KindSmb:
		elem = strings.ReplaceAll(elem, "/", `\`)
		return strings.TrimRight(dir, `\`) + `\` + elem
	default:
		return path.Join(dir, elem)
	}
}

// parentFor retorna o diretório pai no separador do backend.
func parentFor(loc location.Location, p string) string {
	switch loc.Kind {
	case location.KindLocal:
		return filepath.Dir(p)
	case location.KindSmb:
		idx := strings.LastIndex(p, `\`)
		if idx <= 0 {
			return `\`
		}
		return p[:idx]
	default:
		return path.Dir(p)
	}
}

// baseOf extrai o basename da origem no separador dela.
func baseOf(loc location.Location) string {
	return baseName(loc.Path)
}

// baseName extrai o último componente de um caminho com / ou \.
func baseName(p string) string {
	p = strings.TrimRight(p, `/\`)
	if idx := strings.LastIndexAny(p, `/\`); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

// joinRaw junta um caminho relativo com / ao root preservando o
// separador do root.
func joinRaw(root, rel string) string {
	if strings.Contains(root, `\`) && !strings.Contains(root, "/") {
		return strings.TrimRight(root, `\`) + `\` + strings.ReplaceAll(rel, "/", `\`)
	}
	return strings.TrimRight(root, "/") + "/" + rel
}

// samePath compara dois caminhos locais por canonicalização best-effort:
// pai canonicalizado + basename. Erros resultam em "não é o mesmo".
func samePath(a, b string) bool {
	ca, err := canonical(a)
	if err != nil {
		return false
	}
	cb, err := canonical(b)
	if err != nil {
		return false
	}
	return ca == cb
}

func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}

// cleanupManifest remove o sidecar depois de uma transferência íntegra.
func cleanupManifest(destPath string) {
	manifest.Cleanup(destPath)
}
