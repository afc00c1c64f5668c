// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"context"
	"io"

	"github.com/tallowteam/flux/internal/backend"
	"github.com/tallowteam/flux/internal/chunkplan"
	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/hashing"
	"github.com/tallowteam/flux/internal/location"
	"github.com/tallowteam/flux/internal/manifest"
	"github.com/tallowteam/flux/internal/throttle"
)

// copyBufSize é o buffer do stream sequencial (256KB).
const copyBufSize = 256 * 1024

// sequentialCopy faz a cópia bufferizada via streams dos backends,
// com throttle opcional. O resume sequencial usa o mesmo formato de
// manifest com um único chunk; um destino local parcial pula o prefixo
// já gravado.
func (e *Engine) sequentialCopy(ctx context.Context, srcB, dstB backend.Backend, srcLoc, dstLoc location.Location, srcPath, destPath string, srcStat backend.FileStat, opts Options) error {
	var resumeOffset int64

	manifestPath := ""
	if dstLoc.Kind == location.KindLocal {
		manifestPath = destPath

		if opts.Resume {
			resumeOffset = e.sequentialResumeOffset(srcPath, destPath, srcStat.Size)
		} else {
			manifest.Cleanup(destPath)
		}
	}

	src, err := srcB.OpenRead(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	// Pula o prefixo já concluído descartando a leitura
	if resumeOffset > 0 {
		if _, err := io.CopyN(io.Discard, src, resumeOffset); err != nil {
			return fluxerr.Wrap(fluxerr.KindResume, "skipping completed prefix", err)
		}
		e.logger.Info("resuming sequential copy", "dest", destPath, "offset", resumeOffset)
	}

	var dst io.WriteCloser
	if resumeOffset > 0 {
		local, ok := dstB.(*backend.Local)
		if !ok {
			return fluxerr.New(fluxerr.KindResume, "sequential resume requires a local destination")
		}
		dst, err = local.OpenAppend(destPath)
	} else {
		dst, err = dstB.OpenWrite(destPath)
	}
	if err != nil {
		return err
	}

	reader := throttle.NewReader(ctx, src, opts.LimitBytesPerSec)

	var sidecar *manifest.Manifest
	if manifestPath != "" {
		sidecar = manifest.New(srcPath, destPath, srcStat.Size,
			chunkplan.ChunkFile(srcStat.Size, 1), opts.Compress)
		if err := sidecar.Save(); err != nil {
			e.logger.Warn("failed to save resume manifest", "error", err)
			sidecar = nil
		}
	}

	buf := make([]byte, copyBufSize)
	written := resumeOffset
	for {
		select {
		case <-ctx.Done():
			dst.Close()
			return ctx.Err()
		default:
		}

		n, rerr := reader.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				dst.Close()
				return fluxerr.Wrap(fluxerr.KindIo, "writing to destination", werr)
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			dst.Close()
			return fluxerr.Wrap(fluxerr.KindIo, "reading from source", rerr)
		}
	}

	if err := dst.Close(); err != nil {
		return fluxerr.Wrap(fluxerr.KindIo, "committing destination", err)
	}

	if opts.Verify && srcLoc.Kind == location.KindLocal && dstLoc.Kind == location.KindLocal {
		if err := verifyCopy(srcPath, destPath); err != nil {
			return err
		}
	} else if opts.Verify {
		e.logger.Warn("verify skipped: requires local source and destination")
	}

	if manifestPath != "" {
		cleanupManifest(manifestPath)
	}

	e.logger.Info("file copied", "source", srcPath, "dest", destPath, "bytes", written)
	return nil
}

// sequentialResumeOffset decide de onde retomar: o manifest tem que ser
// compatível e o destino parcial não pode exceder a origem. Manifests
// incompatíveis são apagados com aviso e a cópia recomeça do zero.
func (e *Engine) sequentialResumeOffset(srcPath, destPath string, totalSize int64) int64 {
	m, err := manifest.Load(destPath)
	if err != nil {
		e.logger.Warn("unreadable resume manifest, restarting", "error", err)
		manifest.Cleanup(destPath)
		return 0
	}
	if m == nil {
		return 0
	}
	if !m.IsCompatible(srcPath, totalSize) {
		e.logger.Warn("resume manifest incompatible (source changed), restarting",
			"dest", destPath)
		manifest.Cleanup(destPath)
		return 0
	}

	local := backend.NewLocal()
	st, err := local.Stat(destPath)
	if err != nil || st.Size > totalSize {
		return 0
	}
	return st.Size
}

// verifyCopy compara os hashes BLAKE3 de origem e destino.
func verifyCopy(srcPath, destPath string) error {
	srcHash, err := hashing.HashFile(srcPath)
	if err != nil {
		return err
	}
	dstHash, err := hashing.HashFile(destPath)
	if err != nil {
		return err
	}
	if srcHash != dstHash {
		return fluxerr.Newf(fluxerr.KindChecksumMismatch,
			"source hashes to %s, destination to %s", srcHash, dstHash)
	}
	return nil
}
