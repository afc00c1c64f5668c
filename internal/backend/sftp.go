// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package backend

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"syscall"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/location"
)

// defaultIdentityFiles são as chaves tentadas na cascata de autenticação,
// na ordem de preferência moderna.
var defaultIdentityFiles = []string{
	"id_ed25519",
	"id_ecdsa",
	"id_rsa",
}

// Sftp implementa Backend sobre uma conexão SSH com subsistema SFTP.
// A conexão é persistente pela duração da transferência.
type Sftp struct {
	sshClient *ssh.Client
	client    *sftp.Client
}

// sftpKeyEnv permite informar uma chave explícita via ambiente
// (FLUX_SFTP_KEY), terceiro passo da cascata de autenticação.
const sftpKeyEnv = "FLUX_SFTP_KEY"

// NewSftp conecta ao host e abre o subsistema SFTP.
// Cascata de autenticação: ssh-agent → chaves default (~/.ssh) →
// chave explícita → prompt de senha (apenas em TTY).
// Um username implícito nunca cai em "root": sem usuário na URL usa-se o
// usuário corrente, e a ausência de ambos é erro de autenticação.
func NewSftp(loc location.Location) (*Sftp, error) {
	username := loc.User
	if username == "" {
		u, err := user.Current()
		if err != nil || u.Username == "" || u.Username == "root" {
			return nil, fluxerr.New(fluxerr.KindAuth,
				"no username in sftp url and no safe default; use sftp://user@host/path")
		}
		username = u.Username
	}

	auths := buildAuthMethods(username, loc.Host)
	if len(auths) == 0 {
		return nil, fluxerr.New(fluxerr.KindAuth,
			"no usable ssh authentication method (agent, identity key, key file or password)")
	}

	cfg := &ssh.ClientConfig{
		User:            username,
		Auth:            auths,
		HostKeyCallback: hostKeyCallback(),
	}

	addr := net.JoinHostPort(loc.Host, fmt.Sprintf("%d", loc.Port))
	sshClient, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindAuth,
			fmt.Sprintf("connecting to %s", addr), err)
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fluxerr.Wrap(fluxerr.KindProtocol, "opening sftp subsystem", err)
	}

	return &Sftp{sshClient: sshClient, client: client}, nil
}

// buildAuthMethods monta a cascata de autenticação.
func buildAuthMethods(username, host string) []ssh.AuthMethod {
	var auths []ssh.AuthMethod

	// 1. ssh-agent
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			ag := agent.NewClient(conn)
			auths = append(auths, ssh.PublicKeysCallback(ag.Signers))
		}
	}

	// 2. Chaves de identidade default em ~/.ssh
	if home, err := os.UserHomeDir(); err == nil {
		var signers []ssh.Signer
		for _, name := range defaultIdentityFiles {
			keyPath := filepath.Join(home, ".ssh", name)
			if s := loadSigner(keyPath); s != nil {
				signers = append(signers, s)
			}
		}
		if len(signers) > 0 {
			auths = append(auths, ssh.PublicKeys(signers...))
		}
	}

	// 3. Chave explícita via ambiente
	if keyPath := os.Getenv(sftpKeyEnv); keyPath != "" {
		if s := loadSigner(keyPath); s != nil {
			auths = append(auths, ssh.PublicKeys(s))
		}
	}

	// 4. Prompt de senha, apenas quando stdin é terminal
	if term.IsTerminal(int(os.Stdin.Fd())) {
		auths = append(auths, ssh.PasswordCallback(func() (string, error) {
			fmt.Fprintf(os.Stderr, "%s@%s password: ", username, host)
			pw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", fmt.Errorf("reading password: %w", err)
			}
			return string(pw), nil
		}))
	}

	return auths
}

// loadSigner carrega uma chave privada, ignorando ausência e chaves
// protegidas por passphrase.
func loadSigner(path string) ssh.Signer {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil
	}
	return signer
}

// hostKeyCallback usa known_hosts quando disponível; sem o arquivo a
// verificação é pulada (o canal peer do Flux tem TOFU próprio; SFTP segue
// o known_hosts do usuário quando ele existe).
func hostKeyCallback() ssh.HostKeyCallback {
	if home, err := os.UserHomeDir(); err == nil {
		kh := filepath.Join(home, ".ssh", "known_hosts")
		if cb, err := knownhosts.New(kh); err == nil {
			return cb
		}
	}
	return ssh.InsecureIgnoreHostKey()
}

func (s *Sftp) Stat(p string) (FileStat, error) {
	info, err := s.client.Stat(p)
	if err != nil {
		return FileStat{}, sftpError(p, err)
	}
	return sftpStat(info), nil
}

func (s *Sftp) ListDir(p string) ([]FileEntry, error) {
	infos, err := s.client.ReadDir(p)
	if err != nil {
		return nil, sftpError(p, err)
	}

	out := make([]FileEntry, 0, len(infos))
	for _, info := range infos {
		out = append(out, FileEntry{
			Path: path.Join(p, info.Name()),
			Stat: sftpStat(info),
		})
	}
	return out, nil
}

func (s *Sftp) OpenRead(p string) (io.ReadCloser, error) {
	f, err := s.client.Open(p)
	if err != nil {
		return nil, sftpError(p, err)
	}
	return f, nil
}

func (s *Sftp) OpenWrite(p string) (io.WriteCloser, error) {
	// Escritas grandes fluem direto pelo subsistema, sem buffering local
	f, err := s.client.Create(p)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindDestinationNotWritable, p, err)
	}
	return f, nil
}

func (s *Sftp) CreateDirAll(p string) error {
	if err := s.client.MkdirAll(p); err != nil {
		return fluxerr.Wrap(fluxerr.KindDestinationNotWritable, p, err)
	}
	return nil
}

func (s *Sftp) Remove(p string) error {
	if err := s.client.Remove(p); err != nil {
		return sftpError(p, err)
	}
	return nil
}

func (s *Sftp) Features() Features {
	return Features{
		SupportsParallel:    false,
		SupportsSeek:        false,
		SupportsPermissions: true,
	}
}

func (s *Sftp) Close() error {
	err := s.client.Close()
	if cerr := s.sshClient.Close(); err == nil {
		err = cerr
	}
	return err
}

// sftpStat converte os metadados do servidor para FileStat.
func sftpStat(info fs.FileInfo) FileStat {
	st := FileStat{
		Size:   info.Size(),
		IsDir:  info.IsDir(),
		IsFile: info.Mode().IsRegular(),
	}
	mod := info.ModTime()
	if !mod.IsZero() {
		st.Modified = &mod
	}
	perm := uint32(info.Mode().Perm())
	st.Permissions = &perm
	return st
}

// sftpError mapeia erros do subsistema para a taxonomia.
func sftpError(p string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOENT):
		return fluxerr.Wrap(fluxerr.KindSourceNotFound, p, err)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES):
		return fluxerr.Wrap(fluxerr.KindPermissionDenied, p, err)
	default:
		return fluxerr.Wrap(fluxerr.KindProtocol, p, err)
	}
}
