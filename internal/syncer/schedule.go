// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tallowteam/flux/internal/engine"
	"github.com/tallowteam/flux/internal/fluxerr"
)

// cronParser aceita expressões de 6 campos (com segundos).
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule interpreta uma cron expression. Entradas de 5 campos são
// auto-expandidas para 6 prefixando o campo de segundos com zero.
func ParseSchedule(expr string) (cron.Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) == 5 {
		expr = "0 " + expr
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindSync,
			fmt.Sprintf("invalid cron expression %q", expr), err)
	}
	return sched, nil
}

// Schedule roda o sync na cadência da cron expression: computa o próximo
// disparo, imprime-o, dorme até lá, executa o plano e repete.
// Uma execução ainda em andamento no próximo disparo é pulada com aviso.
func Schedule(ctx context.Context, expr, source, dest string, aliases map[string]string, opts Options, eng *engine.Engine, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return err
	}

	running := false
	done := make(chan struct{}, 1)

	for {
		next := sched.Next(time.Now())
		fmt.Fprintf(os.Stderr, "next sync at %s\n", next.Format(time.RFC3339))
		logger.Info("sleeping until next fire time", "next", next)

		select {
		case <-ctx.Done():
			logger.Info("schedule loop stopped")
			return nil
		case <-time.After(time.Until(next)):
		}

		// Guard de execução única: disparo com sync em andamento é pulado
		select {
		case <-done:
			running = false
		default:
		}
		if running {
			logger.Warn("previous sync still running, skipping this fire")
			continue
		}

		running = true
		go func() {
			defer func() { done <- struct{}{} }()
			if err := runOnce(ctx, source, dest, aliases, opts, eng, logger); err != nil {
				logger.Error("scheduled sync failed", "error", err)
			}
		}()
	}
}
