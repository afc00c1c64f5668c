// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package backend

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tallowteam/flux/internal/fluxerr"
)

// localBufSize é o tamanho do buffer de I/O local (256KB).
const localBufSize = 256 * 1024

// Local implementa Backend sobre o filesystem do host.
// Suporta paralelismo posicional e seek.
type Local struct{}

// NewLocal cria o backend local.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Stat(path string) (FileStat, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileStat{}, statError(path, err)
	}
	return statFromInfo(info), nil
}

func (l *Local) ListDir(path string) ([]FileEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, statError(path, err)
	}

	out := make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			// Entrada removida entre ReadDir e Info; pula
			continue
		}
		out = append(out, FileEntry{
			Path: filepath.Join(path, e.Name()),
			Stat: statFromInfo(info),
		})
	}
	return out, nil
}

func (l *Local) OpenRead(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, statError(path, err)
	}
	return &bufReadCloser{r: bufio.NewReaderSize(f, localBufSize), f: f}, nil
}

func (l *Local) OpenWrite(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindDestinationNotWritable, path, err)
	}
	return &bufWriteCloser{w: bufio.NewWriterSize(f, localBufSize), f: f}, nil
}

// OpenAppend abre o arquivo para escrita em append (resume sequencial).
func (l *Local) OpenAppend(path string) (io.WriteCloser, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindDestinationNotWritable, path, err)
	}
	return &bufWriteCloser{w: bufio.NewWriterSize(f, localBufSize), f: f}, nil
}

// OpenFile abre o arquivo cru para I/O posicional (caminho paralelo).
func (l *Local) OpenFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, statError(path, err)
	}
	return f, nil
}

func (l *Local) CreateDirAll(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fluxerr.Wrap(fluxerr.KindDestinationNotWritable, path, err)
	}
	return nil
}

func (l *Local) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return statError(path, err)
	}
	return nil
}

func (l *Local) Features() Features {
	return Features{
		SupportsParallel:    true,
		SupportsSeek:        true,
		SupportsPermissions: runtime.GOOS != "windows",
	}
}

func (l *Local) Close() error {
	return nil
}

// statFromInfo converte fs.FileInfo para FileStat.
func statFromInfo(info fs.FileInfo) FileStat {
	st := FileStat{
		Size:   info.Size(),
		IsDir:  info.IsDir(),
		IsFile: info.Mode().IsRegular(),
	}
	mod := info.ModTime()
	st.Modified = &mod
	if runtime.GOOS != "windows" {
		perm := uint32(info.Mode().Perm())
		st.Permissions = &perm
	}
	return st
}

// statError mapeia erros do filesystem para a taxonomia.
func statError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fluxerr.Wrap(fluxerr.KindSourceNotFound, path, err)
	case errors.Is(err, fs.ErrPermission):
		return fluxerr.Wrap(fluxerr.KindPermissionDenied, path, err)
	default:
		return fluxerr.Wrap(fluxerr.KindIo, path, err)
	}
}

// bufReadCloser embrulha um arquivo com leitura bufferizada.
type bufReadCloser struct {
	r *bufio.Reader
	f *os.File
}

func (b *bufReadCloser) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b *bufReadCloser) Close() error               { return b.f.Close() }

// bufWriteCloser embrulha um arquivo com escrita bufferizada.
// O Close faz flush antes de fechar o arquivo.
type bufWriteCloser struct {
	w *bufio.Writer
	f *os.File
}

func (b *bufWriteCloser) Write(p []byte) (int, error) { return b.w.Write(p) }

func (b *bufWriteCloser) Close() error {
	if err := b.w.Flush(); err != nil {
		b.f.Close()
		return err
	}
	return b.f.Close()
}
