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
	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/identity"
	"github.com/tallowteam/flux/internal/peer"
	"github.com/tallowteam/flux/internal/trust"
)

func runSend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	encrypt := fs.Bool("encrypt", false, "encrypt the transfer")
	name := fs.String("name", "", "device name announced to the peer")
	verbose, quiet := verbosityFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 2 {
		return fluxerr.New(fluxerr.KindConfig, "send requires <file> and <target>")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := buildLogger(cfg.Logging.Level, cfg.Logging.Format, *verbose, *quiet)

	deviceName := *name
	if deviceName == "" {
		deviceName = cfg.Peer.DeviceName
	}
	if deviceName == "" {
		deviceName, _ = os.Hostname()
	}

	opts := peer.SendOptions{
		Target:     fs.Arg(1),
		FilePath:   fs.Arg(0),
		DeviceName: deviceName,
		Encrypt:    *encrypt || cfg.Peer.Encrypt,
		Logger:     logger,
	}

	if opts.Encrypt {
		// Identidade criada preguiçosamente no primeiro uso peer
		id, err := identity.LoadOrCreate()
		if err != nil {
			return err
		}
		defer id.Zeroize()
		opts.Identity = id
	}

	result, err := peer.Send(ctx, opts)
	if err != nil {
		return err
	}

	if !*quiet {
		fmt.Fprintf(os.Stderr, "sent %d bytes in %s (checksum verified: %v)\n",
			result.BytesSent, result.Duration.Round(timeRound), result.ChecksumVerified)
	}
	return nil
}

func runReceive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	encrypt := fs.Bool("encrypt", false, "require encrypted transfers")
	name := fs.String("name", "", "device name advertised over mDNS")
	port := fs.Int("port", 0, "TCP port to listen on")
	output := fs.String("output", "", "output directory for received files")
	verbose, quiet := verbosityFlags(fs)
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := buildLogger(cfg.Logging.Level, cfg.Logging.Format, *verbose, *quiet)

	deviceName := *name
	if deviceName == "" {
		deviceName = cfg.Peer.DeviceName
	}
	if deviceName == "" {
		deviceName, _ = os.Hostname()
	}

	outputDir := *output
	if outputDir == "" {
		outputDir = cfg.Peer.OutputDir
	}
	if outputDir == "" {
		outputDir = "."
	}

	listenPort := *port
	if listenPort == 0 {
		listenPort = cfg.Peer.Port
	}

	trustStore, err := trust.Load()
	if err != nil {
		return err
	}

	opts := peer.ReceiveOptions{
		DeviceName: deviceName,
		Port:       listenPort,
		OutputDir:  outputDir,
		Encrypt:    *encrypt || cfg.Peer.Encrypt,
		Trust:      trustStore,
		Logger:     logger,
	}

	if opts.Encrypt {
		id, err := identity.LoadOrCreate()
		if err != nil {
			return err
		}
		defer id.Zeroize()
		opts.Identity = id
	}

	return peer.Serve(ctx, opts)
}
