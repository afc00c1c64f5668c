// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/logging"
)

// timeRound arredonda durações nos resumos impressos.
const timeRound = 10 * time.Millisecond

const usage = `flux - cross-protocol file transfer

Usage:
  flux copy [flags] <source> <dest>
  flux send [flags] <file> <target>
  flux receive [flags]
  flux sync [flags] <source> <dest>

Run 'flux <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Cancelamento cooperativo via interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "copy":
		err = runCopy(ctx, os.Args[2:])
	case "send":
		err = runSend(ctx, os.Args[2:])
	case "receive":
		err = runReceive(ctx, os.Args[2:])
	case "sync":
		err = runSync(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Fprint(os.Stderr, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var fe *fluxerr.Error
		if errors.As(err, &fe) {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", fe.Suggestion())
		}
		os.Exit(1)
	}
}

// stringSlice acumula valores de flags repetíveis (--exclude, --include).
type stringSlice []string

func (s *stringSlice) String() string { return fmt.Sprint(*s) }

func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// verbosityFlags adiciona -v/-q a um FlagSet e devolve os ponteiros.
func verbosityFlags(fs *flag.FlagSet) (verbose, quiet *bool) {
	verbose = fs.Bool("v", false, "verbose logging")
	quiet = fs.Bool("q", false, "errors only")
	return
}

// buildLogger aplica -v/-q sobre o nível configurado.
func buildLogger(level, format string, verbose, quiet bool) *slog.Logger {
	if quiet {
		return logging.Quiet()
	}
	if verbose {
		level = "debug"
	}
	return logging.NewLogger(level, format)
}
