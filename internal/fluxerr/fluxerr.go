// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package fluxerr define a taxonomia de erros do Flux.
// Cada erro carrega um Kind estruturado, uma mensagem livre e uma
// sugestão de correção voltada ao usuário final.
package fluxerr

import (
	"errors"
	"fmt"
)

// Kind classifica a categoria do erro.
type Kind int

const (
	KindSourceNotFound Kind = iota
	KindDestinationNotWritable
	KindPermissionDenied
	KindIo
	KindConfig
	KindProtocol
	KindAuth
	KindChecksumMismatch
	KindResume
	KindCompression
	KindEncryption
	KindTrust
	KindDiscovery
	KindTransfer
	KindSync
	KindAlias
)

// String retorna o nome legível do Kind.
func (k Kind) String() string {
	switch k {
	case KindSourceNotFound:
		return "source not found"
	case KindDestinationNotWritable:
		return "destination not writable"
	case KindPermissionDenied:
		return "permission denied"
	case KindIo:
		return "i/o error"
	case KindConfig:
		return "config error"
	case KindProtocol:
		return "protocol error"
	case KindAuth:
		return "authentication error"
	case KindChecksumMismatch:
		return "checksum mismatch"
	case KindResume:
		return "resume error"
	case KindCompression:
		return "compression error"
	case KindEncryption:
		return "encryption error"
	case KindTrust:
		return "trust error"
	case KindDiscovery:
		return "discovery error"
	case KindTransfer:
		return "transfer error"
	case KindSync:
		return "sync error"
	case KindAlias:
		return "alias error"
	default:
		return "unknown error"
	}
}

// Error é o erro estruturado do Flux.
type Error struct {
	Kind    Kind
	Message string
	Err     error // causa subjacente (opcional)
}

// New cria um Error com o kind e a mensagem fornecidos.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf cria um Error formatando a mensagem.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap cria um Error que embrulha uma causa subjacente.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Error implementa a interface error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap expõe a causa para errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Suggestion retorna uma dica de uma linha para exibição ao usuário.
func (e *Error) Suggestion() string {
	switch e.Kind {
	case KindSourceNotFound:
		return "Check that the source path exists and is spelled correctly."
	case KindDestinationNotWritable:
		return "Check permissions on the destination directory or choose another destination."
	case KindPermissionDenied:
		return "Check file permissions or run with a user that has access."
	case KindIo:
		return "Check disk space and that the device is healthy, then retry."
	case KindConfig:
		return "Review the configuration file for invalid or missing values."
	case KindProtocol:
		return "Check the remote address and that the server speaks the expected protocol."
	case KindAuth:
		return "Verify credentials, SSH keys or the ssh-agent before retrying."
	case KindChecksumMismatch:
		return "The copy is corrupt; retry the transfer. If it persists, check the storage media."
	case KindResume:
		return "Remove the .flux-resume.json sidecar to restart the transfer from scratch."
	case KindCompression:
		return "Retry without --compress to isolate the failure."
	case KindEncryption:
		return "Retry the connection; if it persists, both peers may need to upgrade Flux."
	case KindTrust:
		return "Inspect trusted_devices.json; remove the entry to re-trust the device."
	case KindDiscovery:
		return "Check that the peer is online and mDNS traffic is allowed on the network."
	case KindTransfer:
		return "Retry the transfer; use --on-error retry for flaky links."
	case KindSync:
		return "Run with --dry-run to inspect the plan before executing."
	case KindAlias:
		return "Check the alias definition in aliases.toml."
	default:
		return "Retry the operation; run with -v for details."
	}
}

// KindOf extrai o Kind de um erro, descendo a cadeia de wrapping.
// Retorna KindIo quando o erro não é um *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindIo
}

// IsKind reporta se o erro (ou alguma causa) tem o kind informado.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}
