// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package location classifica strings de entrada em tipos de backend
// e resolve aliases configurados antes da detecção.
package location

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tallowteam/flux/internal/fluxerr"
)

// Kind identifica o protocolo de uma localização.
type Kind int

const (
	KindLocal Kind = iota
	KindSftp
	KindSmb
	KindWebDav
)

// String retorna o nome do protocolo.
func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindSftp:
		return "sftp"
	case KindSmb:
		return "smb"
	case KindWebDav:
		return "webdav"
	default:
		return "unknown"
	}
}

// DefaultSftpPort é a porta usada quando a URL sftp não especifica uma.
const DefaultSftpPort = 22

// Location é a classificação de uma string de entrada, produzida
// exatamente uma vez por perna da transferência.
type Location struct {
	Kind Kind

	// Local
	Path string

	// Sftp
	User string
	Host string
	Port int

	// Smb
	Server string
	Share  string

	// WebDav
	URL      string // URL sem userinfo
	Username string
	Password string
}

// Detect classifica a string de entrada. Ordem de detecção, primeira
// vitória: UNC (\\ ou //), scheme de URL, senão local.
// Prefixos de drive letter do Windows (C:\...) classificam como local.
func Detect(input string) (Location, error) {
	if input == "" {
		return Location{}, fluxerr.New(fluxerr.KindProtocol, "empty path")
	}

	// UNC: \\server\share\path
	if strings.HasPrefix(input, `\\`) {
		return parseUNC(input, `\`)
	}
	// UNC com barras normais: //server/share/path
	if strings.HasPrefix(input, "//") {
		return parseUNC(input, "/")
	}

	if scheme, rest, ok := splitScheme(input); ok {
		switch scheme {
		case "sftp", "ssh":
			return parseSftp(input)
		case "smb":
			return parseSmbURL(rest)
		case "http", "https":
			return parseWebDav(input)
		case "dav", "webdav":
			// dav:// → http://, webdav:// → https não; dav mapeia para http
			return parseWebDav("http" + input[len(scheme):])
		}
	}

	return Location{Kind: KindLocal, Path: input}, nil
}

// splitScheme separa "scheme://rest". Schemes de um único caractere são
// rejeitados para não colidir com drive letters do Windows (C:\...).
func splitScheme(input string) (scheme, rest string, ok bool) {
	idx := strings.Index(input, "://")
	if idx <= 1 {
		return "", "", false
	}
	scheme = strings.ToLower(input[:idx])
	for _, r := range scheme {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '+' && r != '-' && r != '.' {
			return "", "", false
		}
	}
	return scheme, input[idx+3:], true
}

// parseUNC interpreta \\server\share\path (ou a variante com /).
func parseUNC(input, sep string) (Location, error) {
	trimmed := strings.TrimPrefix(input, sep+sep)
	parts := strings.SplitN(trimmed, sep, 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Location{}, fluxerr.Newf(fluxerr.KindProtocol,
			"invalid UNC path %q: expected \\\\server\\share\\path", input)
	}

	path := ""
	if len(parts) == 3 {
		path = `\` + strings.ReplaceAll(parts[2], "/", `\`)
	} else {
		path = `\`
	}

	return Location{
		Kind:   KindSmb,
		Server: parts[0],
		Share:  parts[1],
		Path:   path,
	}, nil
}

// parseSmbURL interpreta smb://server/share/path.
func parseSmbURL(rest string) (Location, error) {
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Location{}, fluxerr.New(fluxerr.KindProtocol,
			"invalid smb url: expected smb://server/share/path")
	}
	path := `\`
	if len(parts) == 3 && parts[2] != "" {
		path = `\` + strings.ReplaceAll(parts[2], "/", `\`)
	}
	return Location{
		Kind:   KindSmb,
		Server: parts[0],
		Share:  parts[1],
		Path:   path,
	}, nil
}

// parseSftp interpreta sftp://user@host:port/path.
func parseSftp(input string) (Location, error) {
	u, err := url.Parse(input)
	if err != nil {
		return Location{}, fluxerr.Wrap(fluxerr.KindProtocol, "parsing sftp url", err)
	}
	if u.Host == "" {
		return Location{}, fluxerr.New(fluxerr.KindProtocol, "sftp url missing host")
	}

	port := DefaultSftpPort
	if p := u.Port(); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &port); err != nil || port <= 0 || port > 65535 {
			return Location{}, fluxerr.Newf(fluxerr.KindProtocol, "invalid sftp port %q", p)
		}
	}

	user := ""
	if u.User != nil {
		user = u.User.Username()
	}

	path := u.Path
	if path == "" {
		path = "."
	}

	return Location{
		Kind: KindSftp,
		User: user,
		Host: u.Hostname(),
		Port: port,
		Path: path,
	}, nil
}

// parseWebDav interpreta URLs http(s). Credenciais no userinfo viram
// Basic auth e são removidas da URL armazenada.
func parseWebDav(input string) (Location, error) {
	u, err := url.Parse(input)
	if err != nil {
		return Location{}, fluxerr.Wrap(fluxerr.KindProtocol, "parsing webdav url", err)
	}
	if u.Host == "" {
		return Location{}, fluxerr.New(fluxerr.KindProtocol, "webdav url missing host")
	}

	var username, password string
	if u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
		u.User = nil
	}

	return Location{
		Kind:     KindWebDav,
		URL:      u.String(),
		Path:     u.Path,
		Username: username,
		Password: password,
	}, nil
}

// Redacted retorna uma representação segura para logs e histórico:
// credenciais nunca aparecem.
func (l Location) Redacted() string {
	switch l.Kind {
	case KindLocal:
		return l.Path
	case KindSftp:
		if l.User != "" {
			return fmt.Sprintf("sftp://%s@%s:%d%s", l.User, l.Host, l.Port, l.Path)
		}
		return fmt.Sprintf("sftp://%s:%d%s", l.Host, l.Port, l.Path)
	case KindSmb:
		return fmt.Sprintf(`\\%s\%s%s`, l.Server, l.Share, l.Path)
	case KindWebDav:
		return l.URL
	default:
		return l.Path
	}
}
