// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package manifest persiste o estado de conclusão por chunk de uma
// transferência num sidecar JSON ao lado do destino.
// A escrita é crash-safe: temp no mesmo diretório → flush+sync → rename.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tallowteam/flux/internal/chunkplan"
	"github.com/tallowteam/flux/internal/fluxerr"
)

// Version é a versão atual do formato do manifest.
const Version = 1

// Suffix é o sufixo do arquivo sidecar.
const Suffix = ".flux-resume.json"

// Manifest descreve o plano de transferência e o progresso por chunk.
type Manifest struct {
	Version      int               `json:"version"`
	SourcePath   string            `json:"source_path"`
	DestPath     string            `json:"dest_path"`
	TotalSize    int64             `json:"total_size"`
	ChunkCount   int               `json:"chunk_count"`
	Chunks       []chunkplan.Chunk `json:"chunks"`
	Compress     bool              `json:"compress"`
	FileChecksum string            `json:"file_checksum,omitempty"`
}

// New cria um Manifest para a transferência informada.
func New(sourcePath, destPath string, totalSize int64, chunks []chunkplan.Chunk, compress bool) *Manifest {
	return &Manifest{
		Version:    Version,
		SourcePath: sourcePath,
		DestPath:   destPath,
		TotalSize:  totalSize,
		ChunkCount: len(chunks),
		Chunks:     chunks,
		Compress:   compress,
	}
}

// SidecarPath retorna o caminho do sidecar para o destino informado.
func SidecarPath(destPath string) string {
	return destPath + Suffix
}

// IsCompatible reporta se o manifest ainda se aplica à origem informada.
// Origem diferente ou tamanho diferente invalidam o manifest.
func (m *Manifest) IsCompatible(sourcePath string, totalSize int64) bool {
	return m.SourcePath == sourcePath && m.TotalSize == totalSize
}

// CompletedCount retorna quantos chunks já foram concluídos.
func (m *Manifest) CompletedCount() int {
	n := 0
	for _, c := range m.Chunks {
		if c.Completed {
			n++
		}
	}
	return n
}

// MarkCompleted registra a conclusão de um chunk com seu checksum.
// Checksums de chunks concluídos são imutáveis.
func (m *Manifest) MarkCompleted(index int, checksum string) error {
	if index < 0 || index >= len(m.Chunks) {
		return fluxerr.Newf(fluxerr.KindResume, "chunk index %d out of range", index)
	}
	if m.Chunks[index].Completed {
		return nil
	}
	m.Chunks[index].Completed = true
	m.Chunks[index].Checksum = checksum
	return nil
}

// Save grava o manifest de forma atômica: temp no diretório do destino,
// fsync e rename sobre o sidecar final.
func (m *Manifest) Save() error {
	sidecar := SidecarPath(m.DestPath)
	dir := filepath.Dir(sidecar)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fluxerr.Wrap(fluxerr.KindResume, "encoding manifest", err)
	}

	tmp, err := os.CreateTemp(dir, ".flux-resume-*.tmp")
	if err != nil {
		return fluxerr.Wrap(fluxerr.KindResume, "creating manifest temp file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fluxerr.Wrap(fluxerr.KindResume, "writing manifest", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fluxerr.Wrap(fluxerr.KindResume, "syncing manifest", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fluxerr.Wrap(fluxerr.KindResume, "closing manifest temp file", err)
	}

	if err := os.Rename(tmpPath, sidecar); err != nil {
		os.Remove(tmpPath)
		return fluxerr.Wrap(fluxerr.KindResume, "renaming manifest into place", err)
	}
	return nil
}

// Load lê o sidecar do destino informado.
// Retorna (nil, nil) quando o sidecar não existe.
func Load(destPath string) (*Manifest, error) {
	data, err := os.ReadFile(SidecarPath(destPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fluxerr.Wrap(fluxerr.KindResume, "reading manifest", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindResume, "decoding manifest", err)
	}
	if m.Version != Version {
		return nil, fluxerr.Newf(fluxerr.KindResume,
			"unsupported manifest version %d", m.Version)
	}
	if len(m.Chunks) != m.ChunkCount {
		return nil, fluxerr.Newf(fluxerr.KindResume,
			"manifest chunk count mismatch: header says %d, found %d",
			m.ChunkCount, len(m.Chunks))
	}
	return &m, nil
}

// Cleanup remove o sidecar do destino. Ausência não é erro.
func Cleanup(destPath string) error {
	err := os.Remove(SidecarPath(destPath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing manifest sidecar: %w", err)
	}
	return nil
}
