// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package location

import (
	"strings"
)

// ResolveAlias expande o padrão "name:suffix" usando o mapa de aliases.
// A resolução roda antes da detecção de protocolo. O padrão só é tratado
// como alias quando:
//   - name tem mais de um caractere (evita colisão com drive letters),
//   - name não contém separadores de caminho,
//   - o restante após ':' não começa com "//" (seria um scheme de URL),
//   - name existe no mapa.
//
// O separador usado na junção é inferido da própria expansão.
func ResolveAlias(input string, aliases map[string]string) string {
	if len(aliases) == 0 {
		return input
	}

	idx := strings.Index(input, ":")
	if idx <= 1 {
		// Sem ':' ou name de um caractere (drive letter)
		return input
	}

	name := input[:idx]
	suffix := input[idx+1:]

	if strings.ContainsAny(name, `/\`) {
		return input
	}
	if strings.HasPrefix(suffix, "//") {
		return input
	}

	expansion, ok := aliases[name]
	if !ok {
		return input
	}

	if suffix == "" {
		return expansion
	}

	sep := "/"
	if strings.Contains(expansion, `\`) {
		sep = `\`
		suffix = strings.ReplaceAll(suffix, "/", `\`)
	}

	return strings.TrimRight(expansion, sep) + sep + strings.TrimLeft(suffix, sep)
}
