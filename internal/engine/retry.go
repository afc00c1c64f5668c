// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/tallowteam/flux/internal/fluxerr"
)

// withFailureHandling executa fn aplicando a estratégia de falha por
// arquivo. Retry usa backoff exponencial: retryBackoffMs × 2^attempt.
// Permissão negada e origem ausente nunca são retentados.
func withFailureHandling(ctx context.Context, logger *slog.Logger, opts Options, desc string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}

	switch opts.OnError {
	case FailureRetry:
		if !retryableKind(err) {
			return err
		}
		backoff := time.Duration(opts.RetryBackoffMs) * time.Millisecond
		for attempt := 1; attempt <= opts.RetryCount; attempt++ {
			delay := backoff * time.Duration(1<<(attempt-1))
			logger.Warn("transfer failed, retrying", "target", desc,
				"attempt", attempt, "delay", delay, "error", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			if err = fn(); err == nil {
				return nil
			}
			if !retryableKind(err) {
				return err
			}
		}
		return fmt.Errorf("giving up after %d retries: %w", opts.RetryCount, err)

	case FailurePause:
		if term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintf(os.Stderr, "%s failed: %v\nRetry? (y/N): ", desc, err)
			var answer string
			fmt.Fscanln(os.Stdin, &answer)
			if strings.EqualFold(strings.TrimSpace(answer), "y") {
				return withFailureHandling(ctx, logger, opts, desc, fn)
			}
		}
		return err

	default: // FailureSkip: o chamador registra e segue
		return err
	}
}

// retryableKind limita o retry a falhas transitórias de I/O.
func retryableKind(err error) bool {
	switch fluxerr.KindOf(err) {
	case fluxerr.KindSourceNotFound, fluxerr.KindPermissionDenied,
		fluxerr.KindChecksumMismatch, fluxerr.KindConfig:
		return false
	default:
		return true
	}
}
