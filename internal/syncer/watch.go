// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package syncer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tallowteam/flux/internal/engine"
	"github.com/tallowteam/flux/internal/fluxerr"
)

// debounceWindow é a janela de debounce dos eventos do watcher (2s).
const debounceWindow = 2 * time.Second

// Watch registra um watcher recursivo na origem, faz um sync inicial e
// re-executa o plano a cada lote de eventos debounced. O loop para
// limpo entre arquivos quando o context é cancelado.
func Watch(ctx context.Context, source, dest string, aliases map[string]string, opts Options, eng *engine.Engine, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fluxerr.Wrap(fluxerr.KindSync, "creating filesystem watcher", err)
	}
	defer watcher.Close()

	watchRoot := filepath.Clean(source)
	if err := addRecursive(watcher, watchRoot); err != nil {
		return err
	}

	// Sync inicial
	if err := runOnce(ctx, source, dest, aliases, opts, eng, logger); err != nil {
		return err
	}

	logger.Info("watching for changes", "source", watchRoot, "debounce", debounceWindow)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch loop stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Diretórios novos entram no watch para manter a recursão
			if event.Has(fsnotify.Create) {
				if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
					addRecursive(watcher, event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			if err := runOnce(ctx, source, dest, aliases, opts, eng, logger); err != nil {
				logger.Error("sync failed", "error", err)
			}
		}
	}
}

// runOnce recomputa o plano e o executa quando há mudanças.
func runOnce(ctx context.Context, source, dest string, aliases map[string]string, opts Options, eng *engine.Engine, logger *slog.Logger) error {
	plan, err := ComputePlan(source, dest, aliases, opts)
	if err != nil {
		return err
	}
	if !plan.HasChanges() {
		logger.Debug("no changes detected")
		return nil
	}
	_, err = Execute(ctx, plan, eng, logger)
	return err
}

// addRecursive registra o diretório e todos os subdiretórios no watcher.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Diretórios inacessíveis ficam fora do watch
			return nil
		}
		if d.IsDir() {
			if werr := watcher.Add(path); werr != nil {
				return fluxerr.Wrap(fluxerr.KindSync, "watching "+path, werr)
			}
		}
		return nil
	})
}
