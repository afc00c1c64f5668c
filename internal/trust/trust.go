// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package trust implementa o trust store TOFU: mapeamento persistente de
// nome de dispositivo para chave pública, em trusted_devices.json.
// Comparações de chave são em tempo constante.
package trust

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tallowteam/flux/internal/config"
	"github.com/tallowteam/flux/internal/fluxerr"
)

// FileName é o nome do arquivo do trust store.
const FileName = "trusted_devices.json"

// Verdict é o resultado de uma verificação TOFU.
type Verdict int

const (
	// Trusted: a chave apresentada bate com a armazenada.
	Trusted Verdict = iota
	// Unknown: primeiro contato com este nome de dispositivo.
	Unknown
	// KeyChanged: o nome é conhecido mas a chave mudou.
	KeyChanged
)

// Device é uma entrada do trust store.
type Device struct {
	PublicKey    string    `json:"public_key"` // base64
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	FriendlyName string    `json:"friendly_name,omitempty"`
}

// Store é o trust store carregado em memória.
type Store struct {
	path    string
	devices map[string]Device
}

// Load abre o trust store do diretório de configuração.
// Arquivo ausente produz um store vazio; arquivo corrompido é erro duro,
// nunca reset silencioso.
func Load() (*Store, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	return LoadAt(filepath.Join(dir, FileName))
}

// LoadAt abre o trust store num caminho explícito.
func LoadAt(path string) (*Store, error) {
	s := &Store{path: path, devices: map[string]Device{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindTrust, "reading trust store", err)
	}

	if err := json.Unmarshal(data, &s.devices); err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindTrust,
			"trust store corrupt; refusing to reset silently", err)
	}
	return s, nil
}

// Verify compara a chave apresentada com a armazenada para o nome.
// A comparação é feita sobre as formas base64, em tempo constante.
func (s *Store) Verify(deviceName string, presentedKey []byte) Verdict {
	dev, ok := s.devices[deviceName]
	if !ok {
		return Unknown
	}

	presented := base64.StdEncoding.EncodeToString(presentedKey)
	if subtle.ConstantTimeCompare([]byte(dev.PublicKey), []byte(presented)) == 1 {
		return Trusted
	}
	return KeyChanged
}

// Add insere um dispositivo recém-confirmado e persiste.
func (s *Store) Add(deviceName string, publicKey []byte, friendlyName string) error {
	now := time.Now().UTC()
	s.devices[deviceName] = Device{
		PublicKey:    base64.StdEncoding.EncodeToString(publicKey),
		FirstSeen:    now,
		LastSeen:     now,
		FriendlyName: friendlyName,
	}
	return s.save()
}

// Touch atualiza last_seen após uma conexão bem-sucedida e persiste.
func (s *Store) Touch(deviceName string) error {
	dev, ok := s.devices[deviceName]
	if !ok {
		return fluxerr.Newf(fluxerr.KindTrust, "device %q not in trust store", deviceName)
	}
	dev.LastSeen = time.Now().UTC()
	s.devices[deviceName] = dev
	return s.save()
}

// Get retorna a entrada de um dispositivo.
func (s *Store) Get(deviceName string) (Device, bool) {
	dev, ok := s.devices[deviceName]
	return dev, ok
}

// Len retorna o número de dispositivos confiados.
func (s *Store) Len() int {
	return len(s.devices)
}

// save persiste o mapa de forma atômica (temp + rename).
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fluxerr.Wrap(fluxerr.KindTrust, "creating config dir", err)
	}

	data, err := json.MarshalIndent(s.devices, "", "  ")
	if err != nil {
		return fluxerr.Wrap(fluxerr.KindTrust, "encoding trust store", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".trusted-*.tmp")
	if err != nil {
		return fluxerr.Wrap(fluxerr.KindTrust, "creating trust store temp file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fluxerr.Wrap(fluxerr.KindTrust, "writing trust store", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fluxerr.Wrap(fluxerr.KindTrust, "syncing trust store", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fluxerr.Wrap(fluxerr.KindTrust, "closing trust store temp file", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fluxerr.Wrap(fluxerr.KindTrust, "renaming trust store into place", err)
	}
	return nil
}
