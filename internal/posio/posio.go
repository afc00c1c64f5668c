// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package posio fornece primitivas de I/O posicional (pread/pwrite).
// O cursor implícito do arquivo nunca é usado: múltiplas goroutines podem
// operar sobre o mesmo *os.File desde que cada uma use seu próprio offset.
package posio

import (
	"errors"
	"io"
	"syscall"

	"github.com/tallowteam/flux/internal/fluxerr"
)

// ReaderAt é o subconjunto de *os.File usado para leituras posicionais.
type ReaderAt interface {
	ReadAt(p []byte, off int64) (int, error)
}

// WriterAt é o subconjunto de *os.File usado para escritas posicionais.
type WriterAt interface {
	WriteAt(p []byte, off int64) (int, error)
}

// ReadAt lê até len(buf) bytes a partir de offset.
// Retorna a quantidade lida; io.EOF só é propagado quando nada foi lido.
func ReadAt(r ReaderAt, offset int64, buf []byte) (int, error) {
	n, err := r.ReadAt(buf, offset)
	if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
		if errors.Is(err, io.EOF) {
			return n, err
		}
		return n, fluxerr.Wrap(fluxerr.KindIo, "positional read", err)
	}
	return n, nil
}

// WriteAt escreve buf a partir de offset e retorna a quantidade escrita.
func WriteAt(w WriterAt, offset int64, buf []byte) (int, error) {
	n, err := w.WriteAt(buf, offset)
	if err != nil {
		return n, fluxerr.Wrap(fluxerr.KindIo, "positional write", err)
	}
	return n, nil
}

// ReadAtExact lê exatamente len(buf) bytes a partir de offset, repetindo
// leituras curtas e reintentando interrupções transitórias (EINTR/EAGAIN).
// Uma leitura que retorna zero antes de preencher buf é erro.
func ReadAtExact(r ReaderAt, offset int64, buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := r.ReadAt(buf[read:], offset+int64(read))
		read += n
		if err != nil {
			if retryable(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return fluxerr.Newf(fluxerr.KindIo,
					"unexpected end of file at offset %d (wanted %d bytes, got %d)",
					offset, len(buf), read)
			}
			return fluxerr.Wrap(fluxerr.KindIo, "positional read", err)
		}
		if n == 0 {
			return fluxerr.Newf(fluxerr.KindIo,
				"zero-length read at offset %d", offset+int64(read))
		}
	}
	return nil
}

// WriteAtAll escreve todo o buf a partir de offset, repetindo escritas
// curtas e reintentando interrupções transitórias.
func WriteAtAll(w WriterAt, offset int64, buf []byte) error {
	written := 0
	for written < len(buf) {
		n, err := w.WriteAt(buf[written:], offset+int64(written))
		written += n
		if err != nil {
			if retryable(err) {
				continue
			}
			return fluxerr.Wrap(fluxerr.KindIo, "positional write", err)
		}
		if n == 0 {
			return fluxerr.Newf(fluxerr.KindIo,
				"zero-length write at offset %d", offset+int64(written))
		}
	}
	return nil
}

// retryable reporta se o erro é uma interrupção transitória do kernel.
func retryable(err error) bool {
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
}
