// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package peer

import (
	"strings"

	"github.com/tallowteam/flux/internal/fluxerr"
)

// maxFilenameLength é o comprimento máximo aceito para nomes recebidos.
const maxFilenameLength = 255

// windowsReserved são nomes de dispositivo reservados no Windows,
// rejeitados mesmo em outros sistemas para manter a saída portável.
var windowsReserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeFilename reduz um nome vindo da rede a um componente de caminho
// seguro. Previne path traversal: remove componentes de diretório, pontos
// e separadores iniciais, rejeita caracteres de controle, nomes vazios e
// nomes reservados do Windows.
func SanitizeFilename(input string) (string, error) {
	// Remove componentes de diretório (ambos os separadores)
	name := input
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}

	// Remove pontos e separadores iniciais
	name = strings.TrimLeft(name, `./\`)

	if name == "" {
		return "", fluxerr.Newf(fluxerr.KindProtocol,
			"filename %q sanitizes to empty", input)
	}
	if len(name) > maxFilenameLength {
		return "", fluxerr.Newf(fluxerr.KindProtocol,
			"filename exceeds max length %d", maxFilenameLength)
	}

	// Rejeita NUL e caracteres de controle
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "", fluxerr.Newf(fluxerr.KindProtocol,
				"filename %q contains control characters", input)
		}
	}

	// Rejeita nomes de dispositivo do Windows (com ou sem extensão)
	stem := name
	if idx := strings.IndexByte(stem, '.'); idx > 0 {
		stem = stem[:idx]
	}
	if windowsReserved[strings.ToUpper(stem)] {
		return "", fluxerr.Newf(fluxerr.KindProtocol,
			"filename %q is a reserved device name", input)
	}

	return name, nil
}
