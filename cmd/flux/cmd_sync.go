// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"os"

	"github.com/tallowteam/flux/internal/config"
	"github.com/tallowteam/flux/internal/engine"
	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/syncer"
)

func runSync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	deleteOrphans := fs.Bool("delete", false, "delete destination files absent from source")
	watch := fs.Bool("watch", false, "watch source and sync on changes")
	schedule := fs.String("schedule", "", "cron expression for periodic sync")
	force := fs.Bool("force", false, "allow deleting everything when source is empty")
	dryRun := fs.Bool("dry-run", false, "print the plan without executing")
	var exclude, include stringSlice
	fs.Var(&exclude, "exclude", "exclude glob (repeatable)")
	fs.Var(&include, "include", "include glob (repeatable)")
	verbose, quiet := verbosityFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 2 {
		return fluxerr.New(fluxerr.KindConfig, "sync requires <source> and <dest>")
	}
	if *watch && *schedule != "" {
		return fluxerr.New(fluxerr.KindConfig, "--watch and --schedule are mutually exclusive")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	aliases, err := config.LoadAliases()
	if err != nil {
		return err
	}
	logger := buildLogger(cfg.Logging.Level, cfg.Logging.Format, *verbose, *quiet)

	source, dest := fs.Arg(0), fs.Arg(1)
	opts := syncer.Options{
		Include:       include,
		Exclude:       exclude,
		DeleteOrphans: *deleteOrphans,
		Force:         *force,
	}
	eng := engine.New(logger, aliases, nil)

	switch {
	case *watch:
		return syncer.Watch(ctx, source, dest, aliases, opts, eng, logger)

	case *schedule != "":
		return syncer.Schedule(ctx, *schedule, source, dest, aliases, opts, eng, logger)

	default:
		plan, err := syncer.ComputePlan(source, dest, aliases, opts)
		if err != nil {
			return err
		}

		if *dryRun {
			plan.Format(os.Stdout)
			return nil
		}

		if !*quiet {
			plan.Format(os.Stderr)
		}
		result, err := syncer.Execute(ctx, plan, eng, logger)
		if err != nil {
			return err
		}
		if result.Failed > 0 {
			return fluxerr.Newf(fluxerr.KindSync, "%d sync actions failed", result.Failed)
		}
		return nil
	}
}
