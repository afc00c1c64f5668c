// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/tallowteam/flux/internal/config"
	"github.com/tallowteam/flux/internal/engine"
	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/history"
	"github.com/tallowteam/flux/internal/throttle"
)

func runCopy(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("copy", flag.ExitOnError)
	recursive := fs.Bool("r", false, "copy directories recursively")
	chunks := fs.Int("chunks", 0, "parallel chunk count override (0 = auto)")
	verify := fs.Bool("verify", false, "verify whole-file checksum after copy")
	compress := fs.Bool("compress", false, "compress chunks (peer transfers)")
	limit := fs.String("limit", "", "bandwidth limit, e.g. 10MB/s (forces sequential)")
	resume := fs.Bool("resume", false, "resume from an existing sidecar manifest")
	dryRun := fs.Bool("dry-run", false, "report actions without copying")
	onConflict := fs.String("on-conflict", "", "overwrite|skip|rename|ask")
	onError := fs.String("on-error", "", "retry|skip|pause")
	var exclude, include stringSlice
	fs.Var(&exclude, "exclude", "exclude glob (repeatable)")
	fs.Var(&include, "include", "include glob (repeatable)")
	verbose, quiet := verbosityFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 2 {
		return fluxerr.New(fluxerr.KindConfig, "copy requires <source> and <dest>")
	}

	// Config carrega lazy; a CLI sobrepõe os valores do arquivo
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	aliases, err := config.LoadAliases()
	if err != nil {
		return err
	}

	logger := buildLogger(cfg.Logging.Level, cfg.Logging.Format, *verbose, *quiet)

	conflictStr := *onConflict
	if conflictStr == "" {
		conflictStr = cfg.Transfer.OnConflict
	}
	conflict, err := engine.ParseConflictStrategy(conflictStr)
	if err != nil {
		return err
	}

	errorStr := *onError
	if errorStr == "" {
		errorStr = cfg.Transfer.OnError
	}
	failure, err := engine.ParseFailureStrategy(errorStr)
	if err != nil {
		return err
	}

	limitStr := *limit
	if limitStr == "" {
		limitStr = cfg.Transfer.Limit
	}
	var limitBytes int64
	if limitStr != "" {
		limitBytes, err = throttle.ParseRate(limitStr)
		if err != nil {
			return err
		}
	}

	opts := engine.Options{
		Recursive:        *recursive,
		Include:          include,
		Exclude:          exclude,
		LimitBytesPerSec: limitBytes,
		Chunks:           *chunks,
		Verify:           *verify || cfg.Transfer.Verify,
		Compress:         *compress,
		Resume:           *resume,
		DryRun:           *dryRun,
		OnConflict:       conflict,
		OnError:          failure,
		RetryCount:       cfg.Transfer.RetryCount,
		RetryBackoffMs:   cfg.Transfer.RetryBackoffMs,
	}

	var hist *history.Store
	if !*dryRun {
		if h, err := history.NewStore(cfg.History.MaxEntries); err == nil {
			hist = h
		}
	}

	eng := engine.New(logger, aliases, hist)
	result, err := eng.Copy(ctx, fs.Arg(0), fs.Arg(1), opts)
	if err != nil {
		return err
	}

	if result.FilesFailed > 0 {
		return fluxerr.Newf(fluxerr.KindTransfer,
			"%d of %d files failed", result.FilesFailed, len(result.Files))
	}

	if !*quiet && !*dryRun {
		fmt.Fprintf(os.Stderr, "copied %d files (%d bytes) in %s\n",
			result.FilesCopied, result.BytesCopied, result.Duration.Round(timeRound))
	}
	return nil
}
