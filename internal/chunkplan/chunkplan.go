// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package chunkplan divide arquivos em faixas contíguas de bytes,
// a unidade de paralelismo e de resume do Flux.
package chunkplan

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
)

// Chunk representa uma faixa contígua de um arquivo.
type Chunk struct {
	Index     int    `json:"index"`
	Offset    int64  `json:"offset"`
	Length    int64  `json:"length"`
	Completed bool   `json:"completed"`
	Checksum  string `json:"checksum,omitempty"` // hex BLAKE3, imutável após Completed
}

// End retorna o offset exclusivo do fim do chunk.
func (c Chunk) End() int64 {
	return c.Offset + c.Length
}

// ChunkFile divide totalSize em count faixas contíguas cobrindo [0, totalSize).
// O resto da divisão inteira é absorvido pelo último chunk.
// count < 1 é tratado como 1; count maior que totalSize é reduzido a
// totalSize (um byte por chunk). Arquivos de tamanho zero produzem um único
// chunk de comprimento zero.
func ChunkFile(totalSize int64, count int) []Chunk {
	if count < 1 {
		count = 1
	}
	if totalSize <= 0 {
		return []Chunk{{Index: 0, Offset: 0, Length: 0}}
	}
	if int64(count) > totalSize {
		count = int(totalSize)
	}

	base := totalSize / int64(count)
	chunks := make([]Chunk, count)
	for i := 0; i < count; i++ {
		chunks[i] = Chunk{
			Index:  i,
			Offset: int64(i) * base,
			Length: base,
		}
	}
	// O último chunk absorve o resto
	chunks[count-1].Length = totalSize - chunks[count-1].Offset
	return chunks
}

// AutoChunkCount aplica a heurística por faixa de tamanho, limitada pelo
// paralelismo de hardware reportado pelo host:
//
//	≤ 10 MB  → 1
//	< 100 MB → 2
//	< 1 GB   → 4
//	< 10 GB  → 8
//	senão    → 16
func AutoChunkCount(size int64) int {
	const (
		mb = 1024 * 1024
		gb = 1024 * mb
	)

	var n int
	switch {
	case size <= 10*mb:
		n = 1
	case size < 100*mb:
		n = 2
	case size < 1*gb:
		n = 4
	case size < 10*gb:
		n = 8
	default:
		n = 16
	}

	if hw := hardwareParallelism(); n > hw {
		n = hw
	}
	if n < 1 {
		n = 1
	}
	return n
}

// hardwareParallelism consulta o número de CPUs lógicas via gopsutil,
// com fallback para runtime.NumCPU quando a consulta falha.
func hardwareParallelism() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}
