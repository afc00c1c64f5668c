// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package syncer implementa o espelhamento one-way do Flux:
// diff da árvore de origem contra o destino, plano de ações totalmente
// materializado antes de qualquer execução, e os drivers de watch e
// schedule por cima do executor.
package syncer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tallowteam/flux/internal/backend"
	"github.com/tallowteam/flux/internal/engine"
	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/location"
)

// mtimeTolerance é a tolerância de comparação de mtime (resolução FAT32).
const mtimeTolerance = 2 * time.Second

// ActionKind classifica uma ação do plano.
type ActionKind int

const (
	CopyNew ActionKind = iota
	UpdateChanged
	DeleteOrphan
	Skip
)

// Action é uma ação materializada do plano de sync.
type Action struct {
	Kind    ActionKind
	RelPath string
	Src     string
	Dst     string
	Size    int64
	SrcSize int64
	DstSize int64
	Reason  string // para Skip
}

// Plan é a sequência de ações mais os agregados. O plano inteiro é
// materializado antes de qualquer ação executar, o que torna o dry-run
// um print sem execução.
type Plan struct {
	Actions []Action

	CopyCount   int
	UpdateCount int
	DeleteCount int
	SkipCount   int
	TotalBytes  int64
}

// HasChanges reporta se o plano contém alguma ação além de Skip.
func (p *Plan) HasChanges() bool {
	return p.CopyCount > 0 || p.UpdateCount > 0 || p.DeleteCount > 0
}

func (p *Plan) add(a Action) {
	p.Actions = append(p.Actions, a)
	switch a.Kind {
	case CopyNew:
		p.CopyCount++
		p.TotalBytes += a.Size
	case UpdateChanged:
		p.UpdateCount++
		p.TotalBytes += a.SrcSize
	case DeleteOrphan:
		p.DeleteCount++
	case Skip:
		p.SkipCount++
	}
}

// Options parametriza o plano de sync.
type Options struct {
	Include       []string
	Exclude       []string
	DeleteOrphans bool
	Force         bool
}

// ComputePlan percorre a origem (symlinks não seguidos), compara cada
// arquivo com o destino e produz o plano. Semântica rsync de barra
// final: origem terminada em / copia o conteúdo para dentro do destino;
// sem barra, copia o próprio diretório.
func ComputePlan(source, dest string, aliases map[string]string, opts Options) (*Plan, error) {
	contentsOnly := strings.HasSuffix(source, "/") || strings.HasSuffix(source, `\`)

	source = location.ResolveAlias(source, aliases)
	dest = location.ResolveAlias(dest, aliases)

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
	if !srcStat.IsDir {
		return nil, fluxerr.Newf(fluxerr.KindSync,
			"sync source %s is not a directory", srcLoc.Redacted())
	}

	destRoot := dstLoc.Path
	if !contentsOnly {
		destRoot = joinSlash(destRoot, baseName(srcLoc.Path))
	}

	filter := engine.NewFilter(opts.Include, opts.Exclude)
	plan := &Plan{}
	seen := map[string]bool{}

	err = walk(srcB, srcLoc.Path, "", filter, func(rel string, entry backend.FileEntry) error {
		seen[rel] = true
		dstPath := joinSlash(destRoot, rel)

		dstStat, err := dstB.Stat(dstPath)
		if err != nil {
			if fluxerr.IsKind(err, fluxerr.KindSourceNotFound) {
				plan.add(Action{
					Kind: CopyNew, RelPath: rel,
					Src: entry.Path, Dst: dstPath, Size: entry.Stat.Size,
				})
				return nil
			}
			return err
		}

		if changed(entry.Stat, dstStat) {
			plan.add(Action{
				Kind: UpdateChanged, RelPath: rel,
				Src: entry.Path, Dst: dstPath,
				SrcSize: entry.Stat.Size, DstSize: dstStat.Size,
			})
		} else {
			plan.add(Action{Kind: Skip, RelPath: rel, Reason: "unchanged"})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if opts.DeleteOrphans {
		// Trava de segurança: origem vazia + delete sem force é recusado
		if len(seen) == 0 && !opts.Force {
			return nil, fluxerr.New(fluxerr.KindSync,
				"source has no files after filtering; refusing to delete the whole "+
					"destination (use --force to override)")
		}

		if _, err := dstB.Stat(destRoot); err == nil {
			err = walk(dstB, destRoot, "", filter, func(rel string, entry backend.FileEntry) error {
				if !seen[rel] {
					plan.add(Action{
						Kind: DeleteOrphan, RelPath: rel,
						Dst: entry.Path, Size: entry.Stat.Size,
					})
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return plan, nil
}

// changed compara tamanho primeiro; tamanhos iguais comparam mtime com
// tolerância de 2 segundos, e só origem estritamente mais nova atualiza.
func changed(src, dst backend.FileStat) bool {
	if src.Size != dst.Size {
		return true
	}
	if src.Modified == nil || dst.Modified == nil {
		return false
	}
	return src.Modified.Sub(*dst.Modified) > mtimeTolerance
}

// Format escreve o plano em formato legível (dry-run e -v).
func (p *Plan) Format(w io.Writer) {
	for _, a := range p.Actions {
		switch a.Kind {
		case CopyNew:
			fmt.Fprintf(w, "copy      %s (%d bytes)\n", a.RelPath, a.Size)
		case UpdateChanged:
			fmt.Fprintf(w, "update    %s (%d -> %d bytes)\n", a.RelPath, a.DstSize, a.SrcSize)
		case DeleteOrphan:
			fmt.Fprintf(w, "delete    %s\n", a.RelPath)
		case Skip:
			// Skips ficam fora do relatório; só contam no agregado
		}
	}
	fmt.Fprintf(w, "plan: %d copy, %d update, %d delete, %d unchanged (%d bytes)\n",
		p.CopyCount, p.UpdateCount, p.DeleteCount, p.SkipCount, p.TotalBytes)
}

// walk desce a árvore do backend aplicando o filtro, com poda de
// diretórios excluídos. Symlinks não são seguidos.
func walk(b backend.Backend, root, rel string, filter *engine.Filter, visit func(rel string, entry backend.FileEntry) error) error {
	current := root
	if rel != "" {
		current = joinSlash(root, rel)
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
			if err := walk(b, root, entryRel, filter, visit); err != nil {
				return err
			}
		case entry.Stat.IsFile:
			if !filter.Matches(entryRel) {
				continue
			}
			if err := visit(entryRel, entry); err != nil {
				return err
			}
		}
	}
	return nil
}

// joinSlash junta caminhos preservando o separador do root.
func joinSlash(root, rel string) string {
	if strings.Contains(root, `\`) && !strings.Contains(root, "/") {
		return strings.TrimRight(root, `\`) + `\` + strings.ReplaceAll(rel, "/", `\`)
	}
	return strings.TrimRight(root, "/") + "/" + rel
}

// baseName extrai o último componente de um caminho com / ou \.
func baseName(p string) string {
	p = strings.TrimRight(p, `/\`)
	if idx := strings.LastIndexAny(p, `/\`); idx >= 0 {
		return p[idx+1:]
	}
	return p
}
