// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/tallowteam/flux/internal/backend"
	"github.com/tallowteam/flux/internal/fluxerr"
)

// conflictAction é a decisão tomada antes de abrir qualquer escrita.
type conflictAction int

const (
	actionProceed conflictAction = iota
	actionSkip
	actionRename
)

// resolveConflict decide o que fazer com um destino existente.
// Retorna a ação e, para rename, o novo caminho de destino.
func resolveConflict(dst backend.Backend, destPath string, strategy ConflictStrategy) (conflictAction, string, error) {
	if _, err := dst.Stat(destPath); err != nil {
		if fluxerr.IsKind(err, fluxerr.KindSourceNotFound) {
			return actionProceed, destPath, nil
		}
		return actionSkip, destPath, err
	}

	switch strategy {
	case ConflictOverwrite:
		return actionProceed, destPath, nil
	case ConflictSkip:
		return actionSkip, destPath, nil
	case ConflictRename:
		renamed, err := findRenamePath(dst, destPath)
		if err != nil {
			return actionSkip, destPath, err
		}
		return actionRename, renamed, nil
	case ConflictAsk:
		return askConflict(dst, destPath)
	default:
		return actionSkip, destPath, nil
	}
}

// findRenamePath procura o primeiro name_<N>.<ext> livre para N em
// [1, 9999]; esgotado o espaço, sufixa com o timestamp corrente.
// A checagem é dica de UX: a abertura real do destino decide colisões.
func findRenamePath(dst backend.Backend, destPath string) (string, error) {
	dir := path.Dir(destPath)
	base := path.Base(destPath)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for n := 1; n <= 9999; n++ {
		candidate := path.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		if _, err := dst.Stat(candidate); err != nil {
			if fluxerr.IsKind(err, fluxerr.KindSourceNotFound) {
				return candidate, nil
			}
			return "", err
		}
	}

	return path.Join(dir, fmt.Sprintf("%s_%d%s", stem, time.Now().Unix(), ext)), nil
}

// askConflict pergunta no stderr. Sem terminal, cai em Skip.
func askConflict(dst backend.Backend, destPath string) (conflictAction, string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return actionSkip, destPath, nil
	}

	fmt.Fprintf(os.Stderr, "%s exists. (o)verwrite/(s)kip/(r)ename: ", destPath)
	var answer string
	fmt.Fscanln(os.Stdin, &answer)

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "o", "overwrite":
		return actionProceed, destPath, nil
	case "r", "rename":
		renamed, err := findRenamePath(dst, destPath)
		if err != nil {
			return actionSkip, destPath, err
		}
		return actionRename, renamed, nil
	default:
		return actionSkip, destPath, nil
	}
}
