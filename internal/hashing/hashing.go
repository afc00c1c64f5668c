// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package hashing calcula digests BLAKE3 de arquivos inteiros e de faixas.
package hashing

import (
	"encoding/hex"
	"errors"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/posio"
)

// hashBlockSize é o tamanho de bloco das leituras sequenciais (64KB).
const hashBlockSize = 64 * 1024

// HashFile lê o arquivo sequencialmente e retorna o digest BLAKE3 em hex.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fluxerr.Wrap(fluxerr.KindIo, "opening file for hashing", err)
	}
	defer f.Close()

	return HashReader(f)
}

// HashReader consome r até EOF e retorna o digest BLAKE3 em hex.
func HashReader(r io.Reader) (string, error) {
	h := blake3.New()
	buf := make([]byte, hashBlockSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fluxerr.Wrap(fluxerr.KindIo, "reading for hash", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashChunk calcula o BLAKE3 da faixa [offset, offset+length) usando
// leituras posicionais. Seguro para uso concorrente sobre o mesmo handle.
// Uma leitura que retorna zero antes de length bytes é erro.
func HashChunk(f posio.ReaderAt, offset, length int64) (string, error) {
	h := blake3.New()
	buf := make([]byte, hashBlockSize)

	remaining := length
	pos := offset
	for remaining > 0 {
		want := int64(len(buf))
		if remaining < want {
			want = remaining
		}
		if err := posio.ReadAtExact(f, pos, buf[:want]); err != nil {
			return "", err
		}
		h.Write(buf[:want])
		pos += want
		remaining -= want
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Sum retorna o digest BLAKE3 de data em hex.
func Sum(data []byte) string {
	digest := blake3.Sum256(data)
	return hex.EncodeToString(digest[:])
}
