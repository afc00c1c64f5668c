// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package identity persiste a identidade de dispositivo do Flux em
// identity.json no diretório de configuração. Criada preguiçosamente no
// primeiro uso peer; a chave secreta é zerada no descarte.
package identity

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/curve25519"

	"github.com/tallowteam/flux/internal/config"
	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/peercrypto"
)

// FileName é o nome do arquivo de identidade.
const FileName = "identity.json"

// Identity é o par de chaves de longa duração do dispositivo.
type Identity struct {
	SecretKey [32]byte
	PublicKey [32]byte
}

// identityFile é a forma serializada (base64).
type identityFile struct {
	PublicKey string `json:"public_key"`
	SecretKey string `json:"secret_key"`
}

// LoadOrCreate carrega a identidade do diretório de configuração,
// criando-a no primeiro uso. No load, a chave pública derivada da
// secreta deve bater com a armazenada; divergência é erro duro.
func LoadOrCreate() (*Identity, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(filepath.Join(dir, FileName))
}

// LoadOrCreateAt carrega ou cria a identidade num caminho explícito.
func LoadOrCreateAt(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return createAt(path)
	}
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindConfig, "reading identity file", err)
	}

	var f identityFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindConfig, "decoding identity file", err)
	}

	id := &Identity{}
	if err := decodeKey(f.SecretKey, id.SecretKey[:]); err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindConfig, "decoding secret key", err)
	}
	if err := decodeKey(f.PublicKey, id.PublicKey[:]); err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindConfig, "decoding public key", err)
	}

	// Checagem de integridade: a pública tem que derivar da secreta
	var derived [32]byte
	curve25519.ScalarBaseMult(&derived, &id.SecretKey)
	if derived != id.PublicKey {
		id.Zeroize()
		return nil, fluxerr.New(fluxerr.KindConfig,
			"identity file corrupt: public key does not derive from secret key")
	}

	return id, nil
}

func createAt(path string) (*Identity, error) {
	kp, err := peercrypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	id := &Identity{SecretKey: kp.Private, PublicKey: kp.Public}
	kp.Zeroize()

	if err := saveAt(path, id); err != nil {
		id.Zeroize()
		return nil, err
	}
	return id, nil
}

// saveAt grava identity.json com modo 0600 (owner-only), atômico.
func saveAt(path string, id *Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fluxerr.Wrap(fluxerr.KindConfig, "creating config dir", err)
	}

	f := identityFile{
		PublicKey: base64.StdEncoding.EncodeToString(id.PublicKey[:]),
		SecretKey: base64.StdEncoding.EncodeToString(id.SecretKey[:]),
	}
	data, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return fluxerr.Wrap(fluxerr.KindConfig, "encoding identity", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".identity-*.tmp")
	if err != nil {
		return fluxerr.Wrap(fluxerr.KindConfig, "creating identity temp file", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fluxerr.Wrap(fluxerr.KindConfig, "setting identity file mode", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fluxerr.Wrap(fluxerr.KindConfig, "writing identity", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fluxerr.Wrap(fluxerr.KindConfig, "syncing identity", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fluxerr.Wrap(fluxerr.KindConfig, "closing identity temp file", err)
	}
	// A forma serializada sai de escopo aqui; o slice é zerado por via
	// das dúvidas antes do rename tornar o arquivo visível
	peercrypto.Wipe(data)

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fluxerr.Wrap(fluxerr.KindConfig, "renaming identity into place", err)
	}
	return nil
}

// Zeroize sobrescreve a chave secreta.
func (id *Identity) Zeroize() {
	peercrypto.Wipe(id.SecretKey[:])
}

// PublicKeyBase64 retorna a chave pública codificada para o trust store.
func (id *Identity) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(id.PublicKey[:])
}

func decodeKey(s string, dst []byte) error {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return errors.New("key has wrong length")
	}
	copy(dst, raw)
	peercrypto.Wipe(raw)
	return nil
}
