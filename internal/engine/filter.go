// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"path"
	"path/filepath"
)

// Filter combina um conjunto de includes (default: tudo) com a negação
// de um conjunto de excludes. Um caminho casa com um conjunto quando
// algum glob casa com o caminho completo ou com o componente final.
type Filter struct {
	includes []string
	excludes []string
}

// NewFilter cria um Filter a partir das listas de globs.
func NewFilter(includes, excludes []string) *Filter {
	return &Filter{includes: includes, excludes: excludes}
}

// Matches reporta se o caminho relativo passa no filtro.
func (f *Filter) Matches(relPath string) bool {
	if len(f.includes) > 0 && !matchesAny(f.includes, relPath) {
		return false
	}
	return !matchesAny(f.excludes, relPath)
}

// PruneDir reporta se um diretório inteiro deve ser podado durante o
// walk (casou com um exclude).
func (f *Filter) PruneDir(relPath string) bool {
	return matchesAny(f.excludes, relPath)
}

// matchesAny testa o caminho completo e o basename contra cada pattern
// (ex: "*.log" casa qualquer .log em qualquer nível).
func matchesAny(patterns []string, relPath string) bool {
	base := path.Base(filepath.ToSlash(relPath))
	slashed := filepath.ToSlash(relPath)

	for _, pattern := range patterns {
		if matched, _ := path.Match(pattern, slashed); matched {
			return true
		}
		if matched, _ := path.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
