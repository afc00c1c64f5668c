// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package compress implementa o codec zstd por chunk.
// Cópias locais não comprimem (custo de CPU sem ganho de I/O);
// o codec existe para o protocolo peer.
package compress

import (
	"github.com/klauspost/compress/zstd"

	"github.com/tallowteam/flux/internal/fluxerr"
)

// DefaultLevel é o nível default da biblioteca (≈3).
const DefaultLevel = int(zstd.SpeedDefault)

// CompressChunk comprime data com zstd no nível informado.
// Níveis fora da faixa suportada caem no default da biblioteca.
func CompressChunk(data []byte, level int) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel(level)))
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindCompression, "creating zstd encoder", err)
	}
	defer enc.Close()

	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// DecompressChunk descomprime um chunk zstd.
func DecompressChunk(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindCompression, "creating zstd decoder", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindCompression, "decompressing chunk", err)
	}
	return out, nil
}

func encoderLevel(level int) zstd.EncoderLevel {
	if level < int(zstd.SpeedFastest) || level > int(zstd.SpeedBestCompression) {
		return zstd.SpeedDefault
	}
	return zstd.EncoderLevel(level)
}
