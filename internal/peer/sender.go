// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package peer implementa a transferência peer-to-peer do Flux:
// sender e receiver sobre TCP com o protocolo framed do pacote wire,
// confiança TOFU e criptografia opcional XChaCha20-Poly1305.
package peer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tallowteam/flux/internal/discovery"
	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/hashing"
	"github.com/tallowteam/flux/internal/identity"
	"github.com/tallowteam/flux/internal/peercrypto"
	"github.com/tallowteam/flux/internal/wire"
)

// HandshakeTimeout limita a fase de handshake.
const HandshakeTimeout = 30 * time.Second

// CompletionTimeout limita a espera pelo TransferComplete final.
const CompletionTimeout = 5 * time.Minute

// sendChunkSize é o tamanho dos chunks enviados (256KB).
const sendChunkSize = 256 * 1024

// SendOptions parametriza um envio peer.
type SendOptions struct {
	// Target é "@name" (resolvido via mDNS), "host:port" ou host puro
	// (porta default).
	Target     string
	FilePath   string
	DeviceName string
	Encrypt    bool
	// Identity é a identidade do dispositivo; obrigatória com Encrypt.
	// A chave pública vai no Handshake e ancora o TOFU do receiver.
	Identity *identity.Identity
	Logger   *slog.Logger
}

// SendResult é o resultado de um envio bem-sucedido.
type SendResult struct {
	BytesSent        uint64
	Checksum         string
	ChecksumVerified bool
	Duration         time.Duration
}

// Send transmite um arquivo para o peer de destino.
func Send(ctx context.Context, opts SendOptions) (*SendResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(opts.FilePath)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindSourceNotFound, opts.FilePath, err)
	}
	if info.IsDir() {
		return nil, fluxerr.Newf(fluxerr.KindTransfer,
			"%s is a directory; peer send transfers single files", opts.FilePath)
	}

	addr, err := resolveTarget(ctx, opts.Target)
	if err != nil {
		return nil, err
	}

	logger.Info("connecting to peer", "addr", addr)
	dialer := &net.Dialer{Timeout: HandshakeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindProtocol,
			fmt.Sprintf("connecting to %s", addr), err)
	}
	defer conn.Close()

	start := time.Now()

	// Handshake com deadline próprio
	conn.SetDeadline(time.Now().Add(HandshakeTimeout))

	hs := &wire.Handshake{
		Version:    wire.ProtocolVersion,
		DeviceName: opts.DeviceName,
	}
	if opts.Encrypt {
		if opts.Identity == nil {
			return nil, fluxerr.New(fluxerr.KindEncryption,
				"encryption requested without a device identity")
		}
		hs.PublicKey = opts.Identity.PublicKey[:]
	}

	if err := wire.WriteMessage(conn, hs); err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindProtocol, "sending handshake", err)
	}

	ack, err := readAck(conn)
	if err != nil {
		return nil, err
	}
	if !ack.Accepted {
		reason := ack.Reason
		if reason == "" {
			reason = "connection rejected by peer"
		}
		return nil, fluxerr.New(fluxerr.KindProtocol, reason)
	}

	channel := peercrypto.PlaintextChannel()
	if opts.Encrypt {
		if len(ack.PublicKey) == 0 {
			return nil, fluxerr.New(fluxerr.KindEncryption,
				"peer accepted but did not offer a public key; refusing downgrade")
		}
		secret, err := peercrypto.SharedSecret(&opts.Identity.SecretKey, ack.PublicKey)
		if err != nil {
			return nil, err
		}
		channel, err = peercrypto.NewChannel(secret)
		if err != nil {
			return nil, err
		}
		defer channel.Zeroize()
	}

	// Primeiro passe: checksum streaming, sem bufferizar o arquivo
	checksum, err := hashing.HashFile(opts.FilePath)
	if err != nil {
		return nil, err
	}

	conn.SetDeadline(time.Time{})

	header := &wire.FileHeader{
		Filename:  filepath.Base(opts.FilePath),
		Size:      uint64(info.Size()),
		Checksum:  checksum,
		Encrypted: channel.Encrypted,
	}
	if err := wire.WriteMessage(conn, header); err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindProtocol, "sending file header", err)
	}

	// Segundo passe: reabre e transmite em chunks de 256KB com offsets
	// ascendentes
	sent, err := streamChunks(ctx, conn, opts.FilePath, channel)
	if err != nil {
		return nil, err
	}

	logger.Info("file streamed, awaiting completion", "bytes", sent)

	conn.SetDeadline(time.Now().Add(CompletionTimeout))
	msg, err := wire.ReadMessage(conn)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindProtocol, "awaiting transfer completion", err)
	}

	switch m := msg.(type) {
	case *wire.TransferComplete:
		result := &SendResult{
			BytesSent: m.BytesReceived,
			Checksum:  checksum,
			Duration:  time.Since(start),
		}
		if m.ChecksumVerified != nil {
			result.ChecksumVerified = *m.ChecksumVerified
		}
		if m.BytesReceived != uint64(info.Size()) {
			return nil, fluxerr.Newf(fluxerr.KindTransfer,
				"peer reports %d bytes received, sent %d", m.BytesReceived, info.Size())
		}
		return result, nil
	case *wire.ErrorMessage:
		return nil, fluxerr.New(fluxerr.KindTransfer, m.Message)
	default:
		return nil, fluxerr.Newf(fluxerr.KindProtocol,
			"unexpected message %T awaiting completion", msg)
	}
}

// resolveTarget transforma o alvo em host:port.
// "@name" dispara um browse mDNS curto; match por prefixo
// case-insensitive, primeira vitória.
func resolveTarget(ctx context.Context, target string) (string, error) {
	if target == "" {
		return "", fluxerr.New(fluxerr.KindDiscovery, "empty peer target")
	}

	if strings.HasPrefix(target, "@") {
		peer, err := discovery.ResolveName(ctx, strings.TrimPrefix(target, "@"))
		if err != nil {
			return "", err
		}
		return peer.Addr, nil
	}

	if _, _, err := net.SplitHostPort(target); err == nil {
		return target, nil
	}
	return net.JoinHostPort(target, fmt.Sprintf("%d", discovery.DefaultPort)), nil
}

// readAck lê o HandshakeAck, traduzindo um Error no lugar dele.
func readAck(conn net.Conn) (*wire.HandshakeAck, error) {
	msg, err := wire.ReadMessage(conn)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindProtocol, "reading handshake ack", err)
	}
	switch m := msg.(type) {
	case *wire.HandshakeAck:
		return m, nil
	case *wire.ErrorMessage:
		return nil, fluxerr.New(fluxerr.KindProtocol, m.Message)
	default:
		return nil, fluxerr.Newf(fluxerr.KindProtocol,
			"unexpected message %T during handshake", msg)
	}
}

// streamChunks lê o arquivo em chunks e os envia com offsets ascendentes,
// cifrando cada um quando o canal é criptografado.
func streamChunks(ctx context.Context, conn net.Conn, path string, channel *peercrypto.Channel) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fluxerr.Wrap(fluxerr.KindIo, "reopening file for streaming", err)
	}
	defer f.Close()

	buf := make([]byte, sendChunkSize)
	var offset uint64

	for {
		select {
		case <-ctx.Done():
			return offset, ctx.Err()
		default:
		}

		n, err := f.Read(buf)
		if n > 0 {
			chunk := &wire.DataChunk{Offset: offset}
			if channel.Encrypted {
				ciphertext, nonce, cerr := channel.EncryptChunk(buf[:n])
				if cerr != nil {
					return offset, cerr
				}
				chunk.Data = ciphertext
				chunk.Nonce = nonce
			} else {
				chunk.Data = append([]byte(nil), buf[:n]...)
			}

			if werr := wire.WriteMessage(conn, chunk); werr != nil {
				return offset, fluxerr.Wrap(fluxerr.KindProtocol, "sending data chunk", werr)
			}
			offset += uint64(n)
		}
		if err == io.EOF {
			return offset, nil
		}
		if err != nil {
			return offset, fluxerr.Wrap(fluxerr.KindIo, "reading file", err)
		}
	}
}
