// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config lê e valida a configuração persistente do Flux
// (config.toml e aliases.toml no diretório de configuração do usuário).
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tallowteam/flux/internal/fluxerr"
)

// ConfigDirEnv permite isolar o diretório de configuração em testes.
const ConfigDirEnv = "FLUX_CONFIG_DIR"

// DataDirEnv permite isolar o diretório de dados em testes.
const DataDirEnv = "FLUX_DATA_DIR"

// Config representa o config.toml completo.
type Config struct {
	Transfer TransferConfig `toml:"transfer"`
	Peer     PeerConfig     `toml:"peer"`
	History  HistoryConfig  `toml:"history"`
	Logging  LoggingConfig  `toml:"logging"`
}

// TransferConfig contém os defaults do motor de transferência.
type TransferConfig struct {
	OnConflict     string `toml:"on_conflict"` // overwrite|skip|rename|ask
	OnError        string `toml:"on_error"`    // retry|skip|pause
	RetryCount     int    `toml:"retry_count"`
	RetryBackoffMs int    `toml:"retry_backoff_ms"`
	Verify         bool   `toml:"verify"`
	Limit          string `toml:"limit"` // ex: "10MB/s"; vazio = sem throttle
}

// PeerConfig contém os defaults do protocolo peer.
type PeerConfig struct {
	DeviceName string `toml:"device_name"`
	Port       int    `toml:"port"`
	Encrypt    bool   `toml:"encrypt"`
	OutputDir  string `toml:"output_dir"`
}

// HistoryConfig contém o limite de entradas do histórico.
type HistoryConfig struct {
	MaxEntries int `toml:"max_entries"`
}

// LoggingConfig contém nível e formato do log.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Dir retorna o diretório de configuração, honrando FLUX_CONFIG_DIR.
func Dir() (string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fluxerr.Wrap(fluxerr.KindConfig, "locating user config dir", err)
	}
	return filepath.Join(base, "flux"), nil
}

// Load lê config.toml do diretório de configuração.
// Arquivo ausente produz a configuração default, não erro.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(dir, "config.toml"))
}

// LoadFrom lê e valida um config.toml específico.
func LoadFrom(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.applyDefaults()
			return &cfg, nil
		}
		return nil, fluxerr.Wrap(fluxerr.KindConfig, "reading config", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindConfig, "parsing config.toml", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Transfer.OnConflict = "ask"
	c.Transfer.OnError = "retry"
	c.Transfer.RetryCount = 3
	c.Transfer.RetryBackoffMs = 500
	c.Peer.Port = 9741
	c.History.MaxEntries = 1000
	c.Logging.Level = "info"
	c.Logging.Format = "text"
}

func (c *Config) validate() error {
	if c.Transfer.OnConflict == "" {
		c.Transfer.OnConflict = "ask"
	}
	switch strings.ToLower(c.Transfer.OnConflict) {
	case "overwrite", "skip", "rename", "ask":
	default:
		return fluxerr.Newf(fluxerr.KindConfig,
			"transfer.on_conflict must be overwrite, skip, rename or ask, got %q",
			c.Transfer.OnConflict)
	}

	if c.Transfer.OnError == "" {
		c.Transfer.OnError = "retry"
	}
	switch strings.ToLower(c.Transfer.OnError) {
	case "retry", "skip", "pause":
	default:
		return fluxerr.Newf(fluxerr.KindConfig,
			"transfer.on_error must be retry, skip or pause, got %q", c.Transfer.OnError)
	}

	if c.Transfer.RetryCount <= 0 {
		c.Transfer.RetryCount = 3
	}
	if c.Transfer.RetryBackoffMs <= 0 {
		c.Transfer.RetryBackoffMs = 500
	}
	if c.Peer.Port <= 0 || c.Peer.Port > 65535 {
		if c.Peer.Port != 0 {
			return fluxerr.Newf(fluxerr.KindConfig, "peer.port out of range: %d", c.Peer.Port)
		}
		c.Peer.Port = 9741
	}
	if c.History.MaxEntries <= 0 {
		c.History.MaxEntries = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	return nil
}

// Aliases representa o aliases.toml: um mapa name → expansão.
type Aliases struct {
	Aliases map[string]string `toml:"aliases"`
}

// LoadAliases lê aliases.toml do diretório de configuração.
// Arquivo ausente produz um mapa vazio.
func LoadAliases() (map[string]string, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadAliasesFrom(filepath.Join(dir, "aliases.toml"))
}

// LoadAliasesFrom lê e valida um aliases.toml específico.
func LoadAliasesFrom(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fluxerr.Wrap(fluxerr.KindAlias, "reading aliases", err)
	}

	var a Aliases
	if err := toml.Unmarshal(data, &a); err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindAlias, "parsing aliases.toml", err)
	}
	if a.Aliases == nil {
		a.Aliases = map[string]string{}
	}

	for name, expansion := range a.Aliases {
		if err := ValidateAlias(name, expansion); err != nil {
			return nil, err
		}
	}
	return a.Aliases, nil
}

// ValidateAlias rejeita nomes que colidiriam com a detecção de protocolo.
func ValidateAlias(name, expansion string) error {
	if name == "" {
		return fluxerr.New(fluxerr.KindAlias, "alias name cannot be empty")
	}
	if len(name) == 1 {
		return fluxerr.Newf(fluxerr.KindAlias,
			"alias %q too short: single characters collide with drive letters", name)
	}
	if strings.ContainsAny(name, `/\:`) {
		return fluxerr.Newf(fluxerr.KindAlias,
			"alias %q contains path separator or colon", name)
	}
	if expansion == "" {
		return fluxerr.Newf(fluxerr.KindAlias, "alias %q has empty expansion", name)
	}
	return nil
}
