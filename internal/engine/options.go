// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package engine orquestra as transferências: validação, despacho
// sequencial vs paralelo, resume, verificação e tratamento de conflitos
// e falhas.
package engine

import (
	"strings"
	"time"

	"github.com/tallowteam/flux/internal/fluxerr"
)

// ConflictStrategy decide o que fazer quando o destino já existe.
type ConflictStrategy int

const (
	ConflictAsk ConflictStrategy = iota
	ConflictOverwrite
	ConflictSkip
	ConflictRename
)

// ParseConflictStrategy interpreta o valor da flag/config --on-conflict.
func ParseConflictStrategy(s string) (ConflictStrategy, error) {
	switch strings.ToLower(s) {
	case "", "ask":
		return ConflictAsk, nil
	case "overwrite":
		return ConflictOverwrite, nil
	case "skip":
		return ConflictSkip, nil
	case "rename":
		return ConflictRename, nil
	default:
		return ConflictAsk, fluxerr.Newf(fluxerr.KindConfig,
			"invalid conflict strategy %q (overwrite, skip, rename, ask)", s)
	}
}

// FailureStrategy decide o que fazer quando a cópia de um arquivo falha.
type FailureStrategy int

const (
	FailureRetry FailureStrategy = iota
	FailureSkip
	FailurePause
)

// ParseFailureStrategy interpreta o valor da flag/config --on-error.
func ParseFailureStrategy(s string) (FailureStrategy, error) {
	switch strings.ToLower(s) {
	case "", "retry":
		return FailureRetry, nil
	case "skip":
		return FailureSkip, nil
	case "pause":
		return FailurePause, nil
	default:
		return FailureRetry, fluxerr.Newf(fluxerr.KindConfig,
			"invalid failure strategy %q (retry, skip, pause)", s)
	}
}

// Options parametriza uma operação de cópia.
type Options struct {
	Recursive bool
	Include   []string
	Exclude   []string

	// LimitBytesPerSec > 0 ativa o throttle e força o caminho sequencial.
	LimitBytesPerSec int64

	// Chunks sobrepõe o auto-tuning; 0 = automático.
	Chunks int

	Verify   bool
	Compress bool
	Resume   bool
	DryRun   bool

	OnConflict     ConflictStrategy
	OnError        FailureStrategy
	RetryCount     int
	RetryBackoffMs int
}

// FileOutcome descreve o destino de um único arquivo dentro da operação.
type FileOutcome struct {
	Source  string
	Dest    string
	Bytes   int64
	Copied  bool
	Skipped string // motivo, quando não copiado e sem erro
	Err     error
}

// Result agrega o resultado de uma operação de cópia.
type Result struct {
	Files        []FileOutcome
	BytesCopied  int64
	FilesCopied  int
	FilesSkipped int
	FilesFailed  int
	Duration     time.Duration
}

func (r *Result) record(o FileOutcome) {
	r.Files = append(r.Files, o)
	switch {
	case o.Err != nil:
		r.FilesFailed++
	case o.Copied:
		r.FilesCopied++
		r.BytesCopied += o.Bytes
	default:
		r.FilesSkipped++
	}
}
