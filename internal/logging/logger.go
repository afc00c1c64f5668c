// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package logging configura o slog.Logger do Flux.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelEnv é a variável de ambiente que sobrepõe o nível configurado.
const LevelEnv = "FLUX_LOG"

// NewLogger cria um slog.Logger configurado com o nível e formato
// especificados. Formatos suportados: "text" (default) e "json".
// Níveis suportados: "debug", "info" (default), "warn", "error".
// FLUX_LOG, quando presente, sobrepõe o nível configurado.
// Logs vão para stderr: stdout é reservado para saída machine-readable.
func NewLogger(level, format string) *slog.Logger {
	if env := os.Getenv(LevelEnv); env != "" {
		level = env
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var w io.Writer = os.Stderr

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// Quiet retorna um logger que só emite erros (flag -q).
func Quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
