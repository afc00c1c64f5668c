// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"context"
	"encoding/hex"
	"os"
	"runtime"
	"sync"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/tallowteam/flux/internal/backend"
	"github.com/tallowteam/flux/internal/chunkplan"
	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/manifest"
	"github.com/tallowteam/flux/internal/posio"
)

// parallelCopy copia um arquivo local em chunks posicionais paralelos.
// Um único handle de leitura é compartilhado: cada goroutine usa o
// próprio offset (pread é atômico). O destino é pré-alocado antes das
// escritas abrirem. O manifest é salvo após cada chunk concluído; o
// primeiro erro vence e interrompe o grupo.
func (e *Engine) parallelCopy(ctx context.Context, srcB, dstB *backend.Local, srcPath, destPath string, totalSize int64, opts Options) error {
	chunks, resumed := e.planChunks(srcPath, destPath, totalSize, opts)

	src, err := srcB.OpenFile(srcPath, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := dstB.OpenFile(destPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer dst.Close()

	// Pré-aloca o destino para as escritas posicionais
	if err := dst.Truncate(totalSize); err != nil {
		return fluxerr.Wrap(fluxerr.KindIo, "preallocating destination", err)
	}

	sidecar := manifest.New(srcPath, destPath, totalSize, chunks, opts.Compress)
	if resumed {
		e.logger.Info("resuming parallel copy", "dest", destPath,
			"completed", sidecar.CompletedCount(), "total", len(chunks))
	}

	var mu sync.Mutex // protege o sidecar (escrita e save)

	limit := runtime.NumCPU()
	if limit > len(chunks) {
		limit = len(chunks)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range chunks {
		if chunks[i].Completed {
			continue
		}
		idx := i
		g.Go(func() error {
			checksum, err := copyChunk(gctx, src, dst, chunks[idx])
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if err := sidecar.MarkCompleted(idx, checksum); err != nil {
				return err
			}
			if err := sidecar.Save(); err != nil {
				e.logger.Warn("failed to persist resume manifest", "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if err := dst.Sync(); err != nil {
		return fluxerr.Wrap(fluxerr.KindIo, "syncing destination", err)
	}

	if opts.Verify {
		if err := verifyCopy(srcPath, destPath); err != nil {
			return err
		}
	}

	cleanupManifest(destPath)
	e.logger.Info("parallel copy complete", "dest", destPath,
		"chunks", len(chunks), "bytes", totalSize)
	return nil
}

// planChunks reaproveita o plano de um manifest compatível quando o
// resume foi pedido; senão monta um plano novo (override da CLI ou
// auto-tuning). Manifests incompatíveis são apagados com aviso.
func (e *Engine) planChunks(srcPath, destPath string, totalSize int64, opts Options) ([]chunkplan.Chunk, bool) {
	if opts.Resume {
		m, err := manifest.Load(destPath)
		if err != nil {
			e.logger.Warn("unreadable resume manifest, restarting", "error", err)
			manifest.Cleanup(destPath)
		} else if m != nil {
			if m.IsCompatible(srcPath, totalSize) {
				return m.Chunks, true
			}
			e.logger.Warn("resume manifest incompatible (source changed), restarting",
				"dest", destPath)
			manifest.Cleanup(destPath)
		}
	} else {
		manifest.Cleanup(destPath)
	}

	count := opts.Chunks
	if count <= 0 {
		count = chunkplan.AutoChunkCount(totalSize)
	}
	return chunkplan.ChunkFile(totalSize, count), false
}

// copyChunk copia uma faixa com leituras e escritas posicionais de
// 256KB, mantendo um hasher local do chunk. Retorna o checksum hex.
func copyChunk(ctx context.Context, src, dst *os.File, chunk chunkplan.Chunk) (string, error) {
	hasher := blake3.New()
	buf := make([]byte, copyBufSize)

	remaining := chunk.Length
	offset := chunk.Offset
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		want := int64(len(buf))
		if remaining < want {
			want = remaining
		}

		if err := posio.ReadAtExact(src, offset, buf[:want]); err != nil {
			return "", err
		}
		if err := posio.WriteAtAll(dst, offset, buf[:want]); err != nil {
			return "", err
		}

		hasher.Write(buf[:want])
		offset += want
		remaining -= want
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
