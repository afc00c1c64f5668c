// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package backend define a superfície polimórfica de acesso a arquivos
// que o motor de transferência usa sem special-casing por protocolo.
// Cada implementação é dona do ciclo de vida da própria conexão.
package backend

import (
	"io"
	"time"

	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/location"
)

// FileStat contém os metadados de um arquivo ou diretório.
// Modified e Permissions podem estar ausentes quando o backend não
// consegue reportá-los.
type FileStat struct {
	Size        int64
	IsDir       bool
	IsFile      bool
	Modified    *time.Time
	Permissions *uint32 // modo Unix quando disponível
}

// FileEntry é uma entrada retornada por ListDir.
// A ordem das entradas não é garantida.
type FileEntry struct {
	Path string
	Stat FileStat
}

// Features descreve as capacidades de um backend, consumidas pelo motor
// para decidir o despacho sequencial vs paralelo.
type Features struct {
	SupportsParallel    bool
	SupportsSeek        bool
	SupportsPermissions bool
}

// Backend é a superfície uniforme sobre filesystem local, SFTP, SMB e
// WebDAV. Implementações não compartilham estado mutável de conexão
// entre goroutines sem sincronização interna.
type Backend interface {
	// Stat retorna os metadados de path. Falha com SourceNotFound
	// quando ausente, PermissionDenied ou Protocol para faltas do backend.
	Stat(path string) (FileStat, error)

	// ListDir lista as entradas diretas de um diretório.
	ListDir(path string) ([]FileEntry, error)

	// OpenRead abre um stream de leitura, movível entre goroutines.
	OpenRead(path string) (io.ReadCloser, error)

	// OpenWrite abre um stream de escrita; o conteúdo é efetivado no
	// Close.
	OpenWrite(path string) (io.WriteCloser, error)

	// CreateDirAll cria o diretório e todos os pais necessários.
	CreateDirAll(path string) error

	// Remove apaga um arquivo.
	Remove(path string) error

	// Features retorna as capacidades do backend.
	Features() Features

	// Close libera a conexão do backend.
	Close() error
}

// New constrói o backend apropriado para a localização classificada.
func New(loc location.Location) (Backend, error) {
	switch loc.Kind {
	case location.KindLocal:
		return NewLocal(), nil
	case location.KindSftp:
		return NewSftp(loc)
	case location.KindSmb:
		return NewSmb(loc)
	case location.KindWebDav:
		return NewWebDav(loc)
	default:
		return nil, fluxerr.Newf(fluxerr.KindProtocol, "unsupported backend kind %v", loc.Kind)
	}
}
