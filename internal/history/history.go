// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package history registra transferências concluídas em history.json.
// O registro é best-effort: falhas aqui nunca falham a transferência.
package history

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tallowteam/flux/internal/config"
	"github.com/tallowteam/flux/internal/fluxerr"
)

// Entry é um registro de transferência concluída.
// Source e Dest já devem estar livres de credenciais (Location.Redacted).
type Entry struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Dest      string    `json:"dest"`
	Bytes     int64     `json:"bytes"`
	Duration  float64   `json:"duration_seconds"`
	Status    string    `json:"status"` // "completed", "failed", "partial"
	Timestamp time.Time `json:"timestamp"`
}

// Store gerencia o arquivo history.json com limite de entradas.
type Store struct {
	path       string
	maxEntries int
}

// NewStore cria um Store no diretório de dados, honrando FLUX_DATA_DIR.
func NewStore(maxEntries int) (*Store, error) {
	dir := os.Getenv(config.DataDirEnv)
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fluxerr.Wrap(fluxerr.KindConfig, "locating user config dir", err)
		}
		dir = filepath.Join(base, "flux")
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Store{
		path:       filepath.Join(dir, "history.json"),
		maxEntries: maxEntries,
	}, nil
}

// NewStoreAt cria um Store num caminho explícito (para testes).
func NewStoreAt(path string, maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Store{path: path, maxEntries: maxEntries}
}

// Record adiciona uma entrada, aplica o cap e regrava atomicamente.
// Gera o ID quando ausente.
func (s *Store) Record(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	entries, err := s.Load()
	if err != nil {
		// Histórico corrompido não derruba o registro: recomeça
		entries = nil
	}

	entries = append(entries, e)
	if len(entries) > s.maxEntries {
		entries = entries[len(entries)-s.maxEntries:]
	}

	return s.save(entries)
}

// Load lê todas as entradas. Arquivo ausente produz lista vazia.
func (s *Store) Load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// save regrava o arquivo: temp no mesmo diretório → rename.
func (s *Store) save(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.path)
}
