// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package peer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/zeebo/blake3"
	"golang.org/x/term"

	"github.com/tallowteam/flux/internal/discovery"
	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/identity"
	"github.com/tallowteam/flux/internal/peercrypto"
	"github.com/tallowteam/flux/internal/trust"
	"github.com/tallowteam/flux/internal/wire"
)

// MaxReceiveSize é o tamanho máximo aceito para um arquivo (4GiB).
const MaxReceiveSize = 4 * 1024 * 1024 * 1024

// ConnectionTimeout é o limite por conexão do receiver (30 min).
const ConnectionTimeout = 30 * time.Minute

// Confirmer decide se um dispositivo desconhecido deve ser confiado.
// Recebe o nome e o fingerprint hex da chave pública apresentada.
type Confirmer func(deviceName, fingerprint string) bool

// ReceiveOptions parametriza o receiver.
type ReceiveOptions struct {
	DeviceName string
	Port       int
	OutputDir  string
	Encrypt    bool // exige canal criptografado
	Identity   *identity.Identity
	Trust      *trust.Store
	// Confirm decide a confiança de dispositivos desconhecidos.
	// Default: prompt interativo; sem TTY, rejeita (ambiente
	// não-interativo não é suportado no caminho de recepção).
	Confirm Confirmer
	Logger  *slog.Logger
}

// Serve escuta conexões peer e as atende até o context ser cancelado.
// O serviço é anunciado via mDNS com a propriedade de versão.
func Serve(ctx context.Context, opts ReceiveOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Port == 0 {
		opts.Port = discovery.DefaultPort
	}
	if opts.Confirm == nil {
		opts.Confirm = interactiveConfirm
	}
	if opts.Encrypt && opts.Identity == nil {
		return fluxerr.New(fluxerr.KindEncryption,
			"encrypted receive requires a device identity")
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return fluxerr.Wrap(fluxerr.KindDestinationNotWritable, opts.OutputDir, err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.Port))
	if err != nil {
		return fluxerr.Wrap(fluxerr.KindProtocol,
			fmt.Sprintf("listening on port %d", opts.Port), err)
	}
	defer ln.Close()

	adv, err := discovery.Advertise(opts.DeviceName, opts.Port)
	if err != nil {
		logger.Warn("mDNS advertisement failed; peers must use host:port", "error", err)
	} else {
		defer adv.Shutdown()
	}

	logger.Info("receiver listening", "port", opts.Port, "output", opts.OutputDir,
		"encrypt", opts.Encrypt)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down receiver")
		ln.Close()
	}()

	return acceptLoop(ctx, ln, opts, logger)
}

// acceptLoop aceita conexões com backoff em erros consecutivos para não
// entrar em hot loop com um listener quebrado.
func acceptLoop(ctx context.Context, ln net.Listener, opts ReceiveOptions, logger *slog.Logger) error {
	consecutiveErrors := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				logger.Info("receiver shutdown complete")
				return nil
			default:
				consecutiveErrors++
				logger.Error("accepting connection", "error", err,
					"consecutive_errors", consecutiveErrors)
				if consecutiveErrors > 5 {
					delay := time.Duration(consecutiveErrors) * 100 * time.Millisecond
					if delay > 5*time.Second {
						delay = 5 * time.Second
					}
					time.Sleep(delay)
				}
				continue
			}
		}

		consecutiveErrors = 0
		go func() {
			defer conn.Close()
			if err := HandleConnection(ctx, conn, opts, logger); err != nil {
				logger.Error("connection failed",
					"remote", conn.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

// HandleConnection executa a cadeia estrita de validação de uma conexão.
// Qualquer falha responde com um Error descritivo e fecha.
func HandleConnection(ctx context.Context, conn net.Conn, opts ReceiveOptions, logger *slog.Logger) error {
	conn.SetDeadline(time.Now().Add(ConnectionTimeout))

	err := receiveFile(ctx, conn, opts, logger)
	if err != nil {
		// Melhor esforço: informa o sender antes de fechar, sem ficar
		// preso num peer que parou de ler
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		wire.WriteMessage(conn, &wire.ErrorMessage{Message: err.Error()})
	}
	return err
}

func receiveFile(ctx context.Context, conn net.Conn, opts ReceiveOptions, logger *slog.Logger) error {
	// 1. Handshake e versão
	msg, err := wire.ReadMessage(conn)
	if err != nil {
		return fluxerr.Wrap(fluxerr.KindProtocol, "reading handshake", err)
	}
	hs, ok := msg.(*wire.Handshake)
	if !ok {
		return fluxerr.Newf(fluxerr.KindProtocol, "expected handshake, got %T", msg)
	}
	if hs.Version != wire.ProtocolVersion {
		reject(conn, fmt.Sprintf("protocol version mismatch: peer speaks v%d, this node speaks v%d",
			hs.Version, wire.ProtocolVersion))
		return fluxerr.Newf(fluxerr.KindProtocol,
			"protocol version mismatch (peer v%d)", hs.Version)
	}
	if hs.DeviceName == "" {
		reject(conn, "handshake missing device name")
		return fluxerr.New(fluxerr.KindProtocol, "handshake missing device name")
	}

	logger = logger.With("device", hs.DeviceName, "remote", conn.RemoteAddr().String())

	// 2. TOFU
	switch opts.Trust.Verify(hs.DeviceName, hs.PublicKey) {
	case trust.Trusted:
		// segue
	case trust.Unknown:
		fingerprint := hex.EncodeToString(hs.PublicKey)
		if fingerprint == "" {
			fingerprint = "(no key offered)"
		}
		if !opts.Confirm(hs.DeviceName, fingerprint) {
			reject(conn, "connection not accepted by receiver")
			return fluxerr.Newf(fluxerr.KindTrust,
				"device %q rejected by user", hs.DeviceName)
		}
		if err := opts.Trust.Add(hs.DeviceName, hs.PublicKey, hs.DeviceName); err != nil {
			reject(conn, "failed to persist trust decision")
			return err
		}
		logger.Info("device trusted on first use")
	case trust.KeyChanged:
		logger.Warn("##################################################")
		logger.Warn("# WARNING: PUBLIC KEY CHANGED FOR KNOWN DEVICE   #")
		logger.Warn("# This may indicate an impersonation attempt.    #")
		logger.Warn("##################################################", "device", hs.DeviceName)
		reject(conn, "key changed")
		return fluxerr.Newf(fluxerr.KindTrust,
			"public key changed for device %q", hs.DeviceName)
	}

	// 3. Consistência do modo de criptografia: downgrade silencioso não
	senderOffersKey := len(hs.PublicKey) > 0
	if opts.Encrypt && !senderOffersKey {
		reject(conn, "this receiver requires encryption")
		return fluxerr.New(fluxerr.KindEncryption, "sender offered no encryption")
	}
	if !opts.Encrypt && senderOffersKey {
		reject(conn, "this receiver does not accept encrypted transfers")
		return fluxerr.New(fluxerr.KindEncryption,
			"sender offered encryption but receiver runs plaintext")
	}

	// 4. Troca de chaves
	channel := peercrypto.PlaintextChannel()
	ack := &wire.HandshakeAck{Accepted: true}
	if opts.Encrypt {
		secret, err := peercrypto.SharedSecret(&opts.Identity.SecretKey, hs.PublicKey)
		if err != nil {
			reject(conn, "key exchange failed")
			return err
		}
		channel, err = peercrypto.NewChannel(secret)
		if err != nil {
			reject(conn, "key exchange failed")
			return err
		}
		defer channel.Zeroize()
		ack.PublicKey = opts.Identity.PublicKey[:]
	}
	if err := wire.WriteMessage(conn, ack); err != nil {
		return fluxerr.Wrap(fluxerr.KindProtocol, "sending handshake ack", err)
	}

	// 5. FileHeader e limites
	msg, err = wire.ReadMessage(conn)
	if err != nil {
		return fluxerr.Wrap(fluxerr.KindProtocol, "reading file header", err)
	}
	header, ok := msg.(*wire.FileHeader)
	if !ok {
		return fluxerr.Newf(fluxerr.KindProtocol, "expected file header, got %T", msg)
	}
	if header.Size > MaxReceiveSize {
		return fluxerr.Newf(fluxerr.KindTransfer,
			"file size %d exceeds receive limit %d", header.Size, uint64(MaxReceiveSize))
	}
	if header.Encrypted != channel.Encrypted {
		return fluxerr.New(fluxerr.KindEncryption,
			"file header encryption flag contradicts negotiated channel")
	}
	// Integridade exige AEAD ou hash: plaintext sem checksum é recusado
	if !channel.Encrypted && header.Checksum == "" {
		return fluxerr.New(fluxerr.KindTransfer,
			"unencrypted transfer without checksum refused")
	}
	if free, err := freeSpace(opts.OutputDir); err == nil && header.Size > free {
		return fluxerr.Newf(fluxerr.KindTransfer,
			"not enough free space: need %d bytes, have %d", header.Size, free)
	}

	// 6. Sanitização do nome
	name, err := SanitizeFilename(header.Filename)
	if err != nil {
		return err
	}

	// 7. Criação exclusiva: a checagem de colisão é só dica de UX; o
	// open com O_EXCL é a fonte de verdade
	out, outPath, err := createExclusive(opts.OutputDir, name)
	if err != nil {
		return err
	}

	logger.Info("receiving file", "name", name, "size", header.Size,
		"encrypted", channel.Encrypted)

	received, verified, err := receiveChunks(ctx, conn, out, header, channel)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = fluxerr.Wrap(fluxerr.KindIo, "closing output file", cerr)
	}
	if err != nil {
		// Arquivos parciais nunca sobrevivem a uma falha
		os.Remove(outPath)
		return err
	}

	// 10. Confirmação final e last_seen
	complete := &wire.TransferComplete{
		Filename:      name,
		BytesReceived: received,
	}
	if header.Checksum != "" {
		complete.ChecksumVerified = &verified
	}
	if err := wire.WriteMessage(conn, complete); err != nil {
		return fluxerr.Wrap(fluxerr.KindProtocol, "sending transfer complete", err)
	}

	if err := opts.Trust.Touch(hs.DeviceName); err != nil {
		logger.Warn("failed to update trust store last_seen", "error", err)
	}

	logger.Info("file received", "path", outPath, "bytes", received,
		"checksum_verified", verified)
	return nil
}

// receiveChunks consome DataChunks com validação estrita de ordem até
// completar o tamanho anunciado, escrevendo em streaming no disco.
func receiveChunks(ctx context.Context, conn net.Conn, out *os.File, header *wire.FileHeader, channel *peercrypto.Channel) (uint64, bool, error) {
	hasher := blake3.New()
	var received uint64

	for received < header.Size {
		select {
		case <-ctx.Done():
			return received, false, ctx.Err()
		default:
		}

		msg, err := wire.ReadMessage(conn)
		if err != nil {
			return received, false, fluxerr.Wrap(fluxerr.KindProtocol, "reading data chunk", err)
		}
		chunk, ok := msg.(*wire.DataChunk)
		if !ok {
			if em, isErr := msg.(*wire.ErrorMessage); isErr {
				return received, false, fluxerr.New(fluxerr.KindTransfer, em.Message)
			}
			return received, false, fluxerr.Newf(fluxerr.KindProtocol,
				"expected data chunk, got %T", msg)
		}

		// Ordem sequencial estrita: sem lacunas, sem duplicatas
		if chunk.Offset != received {
			return received, false, fluxerr.Newf(fluxerr.KindProtocol,
				"out-of-order chunk: offset %d, expected %d", chunk.Offset, received)
		}

		data := chunk.Data
		if channel.Encrypted {
			if chunk.Nonce == nil {
				return received, false, fluxerr.New(fluxerr.KindEncryption,
					"encrypted chunk missing nonce")
			}
			data, err = channel.DecryptChunk(chunk.Data, chunk.Nonce)
			if err != nil {
				return received, false, err
			}
		} else if chunk.Nonce != nil {
			return received, false, fluxerr.New(fluxerr.KindProtocol,
				"plaintext chunk carries a nonce")
		}

		if received+uint64(len(data)) > header.Size {
			return received, false, fluxerr.Newf(fluxerr.KindProtocol,
				"chunk overflows announced size: %d + %d > %d",
				received, len(data), header.Size)
		}

		if _, err := out.Write(data); err != nil {
			return received, false, fluxerr.Wrap(fluxerr.KindIo, "writing received data", err)
		}
		hasher.Write(data)
		received += uint64(len(data))
	}

	// 9. Verificação de integridade
	verified := false
	if header.Checksum != "" {
		got := hex.EncodeToString(hasher.Sum(nil))
		if got != header.Checksum {
			return received, false, fluxerr.Newf(fluxerr.KindChecksumMismatch,
				"received data hashes to %s, header says %s", got, header.Checksum)
		}
		verified = true
	}

	if err := out.Sync(); err != nil {
		return received, verified, fluxerr.Wrap(fluxerr.KindIo, "syncing output file", err)
	}
	return received, verified, nil
}

// createExclusive resolve um nome livre no diretório de saída e abre com
// criação exclusiva. Colisões durante o open tentam o próximo candidato.
func createExclusive(dir, name string) (*os.File, string, error) {
	candidates := []string{name}
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	for i := 1; i <= 9999; i++ {
		candidates = append(candidates, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}

	for _, candidate := range candidates {
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fluxerr.Wrap(fluxerr.KindDestinationNotWritable, path, err)
		}
	}

	// Espaço de candidatos esgotado: sufixa com timestamp
	path := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, time.Now().Unix(), ext))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, "", fluxerr.Wrap(fluxerr.KindDestinationNotWritable, path, err)
	}
	return f, path, nil
}

// freeSpace consulta o espaço livre do volume do diretório de saída.
func freeSpace(dir string) (uint64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// reject envia um HandshakeAck negativo, melhor esforço.
func reject(conn net.Conn, reason string) {
	wire.WriteMessage(conn, &wire.HandshakeAck{Accepted: false, Reason: reason})
}

// interactiveConfirm pergunta no stderr se o dispositivo deve ser
// confiado. Sem TTY, rejeita: recepção não-interativa não é suportada.
func interactiveConfirm(deviceName, fingerprint string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr,
			"refusing unknown device %q: stdin is not a terminal\n", deviceName)
		return false
	}

	fmt.Fprintf(os.Stderr, "Unknown device %q wants to send a file.\n", deviceName)
	fmt.Fprintf(os.Stderr, "Public key fingerprint: %s\n", fingerprint)
	fmt.Fprint(os.Stderr, "Trust this device? (y/N): ")

	var answer string
	fmt.Fscanln(os.Stdin, &answer)
	return answer == "y" || answer == "Y" || answer == "yes"
}
