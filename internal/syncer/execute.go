// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package syncer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tallowteam/flux/internal/backend"
	"github.com/tallowteam/flux/internal/engine"
	"github.com/tallowteam/flux/internal/location"
)

// ExecuteResult agrega o resultado da execução de um plano.
type ExecuteResult struct {
	Copied  int
	Updated int
	Deleted int
	Failed  int
}

// Execute itera o plano despachando cópias para o motor de transferência
// e deleções direto no backend de destino. Falhas individuais acumulam;
// a execução segue para a próxima ação. O cancelamento é cooperativo
// entre arquivos.
func Execute(ctx context.Context, plan *Plan, eng *engine.Engine, logger *slog.Logger) (*ExecuteResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	copyOpts := engine.Options{
		OnConflict: engine.ConflictOverwrite,
		OnError:    engine.FailureSkip,
	}

	result := &ExecuteResult{}
	for _, action := range plan.Actions {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		switch action.Kind {
		case CopyNew, UpdateChanged:
			if err := ensureParent(action.Dst); err != nil {
				logger.Error("sync mkdir failed", "path", action.RelPath, "error", err)
				result.Failed++
				continue
			}
			if _, err := eng.Copy(ctx, action.Src, action.Dst, copyOpts); err != nil {
				logger.Error("sync copy failed", "path", action.RelPath, "error", err)
				result.Failed++
				continue
			}
			if action.Kind == CopyNew {
				result.Copied++
			} else {
				result.Updated++
			}

		case DeleteOrphan:
			if err := deletePath(action.Dst); err != nil {
				logger.Error("sync delete failed", "path", action.RelPath, "error", err)
				result.Failed++
				continue
			}
			result.Deleted++

		case Skip:
			// nada a fazer
		}
	}

	logger.Info("sync complete", "copied", result.Copied, "updated", result.Updated,
		"deleted", result.Deleted, "failed", result.Failed)
	return result, nil
}

// ensureParent cria o diretório pai do destino no backend apropriado.
func ensureParent(dst string) error {
	loc, err := location.Detect(dst)
	if err != nil {
		return err
	}
	b, err := backend.New(loc)
	if err != nil {
		return err
	}
	defer b.Close()

	parent := loc.Path
	if idx := strings.LastIndexAny(parent, `/\`); idx > 0 {
		parent = parent[:idx]
	} else {
		return nil
	}
	return b.CreateDirAll(parent)
}

// deletePath remove um arquivo no backend apropriado ao caminho.
func deletePath(path string) error {
	loc, err := location.Detect(path)
	if err != nil {
		return err
	}
	b, err := backend.New(loc)
	if err != nil {
		return err
	}
	defer b.Close()
	return b.Remove(loc.Path)
}
