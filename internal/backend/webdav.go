// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package backend

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/studio-b12/gowebdav"

	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/location"
)

// WebDav implementa Backend sobre HTTP(S) com PROPFIND/MKCOL.
// Credenciais do userinfo da URL viram Basic auth.
type WebDav struct {
	client *gowebdav.Client
}

// NewWebDav cria o backend WebDAV para a URL informada.
// O client é ancorado em scheme://host; as operações recebem o caminho.
func NewWebDav(loc location.Location) (*WebDav, error) {
	u, err := url.Parse(loc.URL)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindProtocol, "parsing webdav url", err)
	}
	root := u.Scheme + "://" + u.Host
	client := gowebdav.NewClient(root, loc.Username, loc.Password)
	client.SetTimeout(60 * time.Second)
	return &WebDav{client: client}, nil
}

func (w *WebDav) Stat(p string) (FileStat, error) {
	info, err := w.client.Stat(p)
	if err != nil {
		return FileStat{}, davError(p, err)
	}
	return davStat(info), nil
}

func (w *WebDav) ListDir(p string) ([]FileEntry, error) {
	infos, err := w.client.ReadDir(p)
	if err != nil {
		return nil, davError(p, err)
	}

	out := make([]FileEntry, 0, len(infos))
	for _, info := range infos {
		out = append(out, FileEntry{
			Path: path.Join(p, info.Name()),
			Stat: davStat(info),
		})
	}
	return out, nil
}

func (w *WebDav) OpenRead(p string) (io.ReadCloser, error) {
	stream, err := w.client.ReadStream(p)
	if err != nil {
		return nil, davError(p, err)
	}
	return stream, nil
}

// OpenWrite retorna um writer que acumula em memória e emite um único PUT
// no Close: o contrato síncrono de escrita não permite streamar um PUT
// chunked sem buffering.
func (w *WebDav) OpenWrite(p string) (io.WriteCloser, error) {
	return &davWriter{client: w.client, path: p}, nil
}

func (w *WebDav) CreateDirAll(p string) error {
	if err := w.client.MkdirAll(p, 0755); err != nil {
		return fluxerr.Wrap(fluxerr.KindDestinationNotWritable, p, err)
	}
	return nil
}

func (w *WebDav) Remove(p string) error {
	if err := w.client.Remove(p); err != nil {
		return davError(p, err)
	}
	return nil
}

func (w *WebDav) Features() Features {
	return Features{
		SupportsParallel:    false,
		SupportsSeek:        false,
		SupportsPermissions: false,
	}
}

func (w *WebDav) Close() error {
	return nil
}

// davStat converte os metadados do PROPFIND para FileStat.
func davStat(info fs.FileInfo) FileStat {
	st := FileStat{
		Size:   info.Size(),
		IsDir:  info.IsDir(),
		IsFile: !info.IsDir(),
	}
	if mod := info.ModTime(); !mod.IsZero() {
		m := mod
		st.Modified = &m
	}
	return st
}

// davError mapeia erros HTTP para a taxonomia.
func davError(p string, err error) error {
	switch {
	case gowebdav.IsErrNotFound(err), errors.Is(err, fs.ErrNotExist):
		return fluxerr.Wrap(fluxerr.KindSourceNotFound, p, err)
	case gowebdav.IsErrCode(err, http.StatusUnauthorized),
		gowebdav.IsErrCode(err, http.StatusForbidden):
		return fluxerr.Wrap(fluxerr.KindPermissionDenied, p, err)
	default:
		return fluxerr.Wrap(fluxerr.KindProtocol, p, err)
	}
}

// davWriter acumula o conteúdo e emite o PUT no Close.
type davWriter struct {
	client *gowebdav.Client
	path   string
	buf    bytes.Buffer
	closed bool
}

func (d *davWriter) Write(p []byte) (int, error) {
	return d.buf.Write(p)
}

func (d *davWriter) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.client.Write(d.path, d.buf.Bytes(), 0644); err != nil {
		return fluxerr.Wrap(fluxerr.KindDestinationNotWritable, d.path, err)
	}
	return nil
}
