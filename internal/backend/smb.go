// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package backend

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/location"
)

// Smb implementa Backend sobre caminhos UNC nativos do Windows.
// Em outras plataformas a construção falha com um erro claro: o share
// precisa estar montado pelo sistema operacional e acessado como local.
type Smb struct {
	local *Local
	root  string // \\server\share
}

// NewSmb cria o backend SMB. Fora do Windows retorna erro Protocol.
func NewSmb(loc location.Location) (*Smb, error) {
	if runtime.GOOS != "windows" {
		return nil, fluxerr.Newf(fluxerr.KindProtocol,
			"SMB shares are accessed via native UNC paths on Windows only; "+
				"on %s mount //%s/%s through the operating system and use the mount point",
			runtime.GOOS, loc.Server, loc.Share)
	}
	return &Smb{
		local: NewLocal(),
		root:  fmt.Sprintf(`\\%s\%s`, loc.Server, loc.Share),
	}, nil
}

// resolve converte um caminho relativo ao share num caminho UNC completo.
func (s *Smb) resolve(p string) string {
	p = strings.ReplaceAll(p, "/", `\`)
	if strings.HasPrefix(p, s.root) {
		return p
	}
	return s.root + `\` + strings.TrimPrefix(p, `\`)
}

func (s *Smb) Stat(p string) (FileStat, error) {
	st, err := s.local.Stat(s.resolve(p))
	if err != nil {
		return FileStat{}, err
	}
	// Permissões Unix não se aplicam a shares SMB
	st.Permissions = nil
	return st, nil
}

func (s *Smb) ListDir(p string) ([]FileEntry, error) {
	entries, err := s.local.ListDir(s.resolve(p))
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Stat.Permissions = nil
		entries[i].Path = filepath.ToSlash(strings.TrimPrefix(entries[i].Path, s.root))
	}
	return entries, nil
}

func (s *Smb) OpenRead(p string) (io.ReadCloser, error) {
	return s.local.OpenRead(s.resolve(p))
}

func (s *Smb) OpenWrite(p string) (io.WriteCloser, error) {
	return s.local.OpenWrite(s.resolve(p))
}

func (s *Smb) CreateDirAll(p string) error {
	return s.local.CreateDirAll(s.resolve(p))
}

func (s *Smb) Remove(p string) error {
	return s.local.Remove(s.resolve(p))
}

func (s *Smb) Features() Features {
	return Features{
		SupportsParallel:    false,
		SupportsSeek:        false,
		SupportsPermissions: false,
	}
}

func (s *Smb) Close() error {
	return nil
}
