// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package peercrypto implementa o canal criptográfico peer-to-peer:
// troca X25519 sobre as chaves recebidas (o peer usa as chaves de
// identidade persistentes dos dispositivos; não há par efêmero por
// conexão), derivação de uma chave de sessão nova por conexão via
// BLAKE3 derive_key com contexto fixo, e AEAD XChaCha20-Poly1305 com
// nonce aleatório de 24 bytes por chunk.
package peercrypto

import (
	"crypto/rand"
	"crypto/subtle"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"github.com/tallowteam/flux/internal/fluxerr"
)

// KeyContext é o contexto de domínio do derive_key. Inclui nome do
// protocolo, versão e algoritmo: mudar qualquer um deles muda a chave.
const KeyContext = "flux v1 xchacha20poly1305 session key"

// KeySize é o tamanho das chaves X25519 e da chave de sessão.
const KeySize = 32

// NonceSize é o tamanho do nonce XChaCha20-Poly1305 (192 bits).
const NonceSize = chacha20poly1305.NonceSizeX

// KeyPair é um par de chaves X25519 (também a base da identidade
// persistente do dispositivo).
type KeyPair struct {
	Private [KeySize]byte
	Public  [KeySize]byte
}

// GenerateKeyPair gera um par X25519 novo a partir do CSPRNG do sistema.
func GenerateKeyPair() (*KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindEncryption, "generating X25519 private key", err)
	}
	curve25519.ScalarBaseMult(&kp.Public, &kp.Private)
	return &kp, nil
}

// Zeroize sobrescreve a chave privada. Chamar ao fim da sessão.
func (kp *KeyPair) Zeroize() {
	Wipe(kp.Private[:])
}

// SharedSecret computa o segredo compartilhado X25519.
// Um resultado todo-zero indica chave pública inválida e é erro.
func SharedSecret(private *[KeySize]byte, peerPublic []byte) ([]byte, error) {
	if len(peerPublic) != KeySize {
		return nil, fluxerr.Newf(fluxerr.KindEncryption,
			"peer public key must be %d bytes, got %d", KeySize, len(peerPublic))
	}

	secret, err := curve25519.X25519(private[:], peerPublic)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindEncryption, "computing shared secret", err)
	}

	if subtle.ConstantTimeCompare(secret, make([]byte, KeySize)) == 1 {
		return nil, fluxerr.New(fluxerr.KindEncryption,
			"X25519 exchange produced all-zero secret (invalid peer key)")
	}
	return secret, nil
}

// DeriveSessionKey passa o segredo compartilhado pelo derive_key do
// BLAKE3 com o contexto de domínio fixo. O segredo intermediário deve
// ser zerado pelo chamador após o uso.
func DeriveSessionKey(sharedSecret []byte) [KeySize]byte {
	var key [KeySize]byte
	blake3.DeriveKey(KeyContext, sharedSecret, key[:])
	return key
}

// Channel é o estado AEAD de uma conexão peer. Um por conexão;
// descartado (com Zeroize) quando a conexão fecha.
type Channel struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
	key       [KeySize]byte
	Encrypted bool
}

// NewChannel deriva a chave de sessão do segredo compartilhado e monta o
// cipher XChaCha20-Poly1305. O segredo é zerado antes do retorno.
func NewChannel(sharedSecret []byte) (*Channel, error) {
	key := DeriveSessionKey(sharedSecret)
	Wipe(sharedSecret)

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		Wipe(key[:])
		return nil, fluxerr.Wrap(fluxerr.KindEncryption, "creating XChaCha20-Poly1305", err)
	}

	return &Channel{aead: aead, key: key, Encrypted: true}, nil
}

// PlaintextChannel retorna um canal sem criptografia.
func PlaintextChannel() *Channel {
	return &Channel{Encrypted: false}
}

// EncryptChunk cifra o chunk com um nonce fresco de 24 bytes do CSPRNG.
// Nonces aleatórios são seguros no espaço de 192 bits.
// A autenticação cobre ciphertext e nonce apenas; a ordem é imposta pelo
// receiver via offsets sequenciais estritos.
func (c *Channel) EncryptChunk(plaintext []byte) (ciphertext, nonce []byte, err error) {
	if !c.Encrypted {
		return nil, nil, fluxerr.New(fluxerr.KindEncryption, "channel is not encrypted")
	}

	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fluxerr.Wrap(fluxerr.KindEncryption, "generating nonce", err)
	}

	ciphertext = c.aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// DecryptChunk decifra e autentica um chunk com o nonce transmitido.
func (c *Channel) DecryptChunk(ciphertext, nonce []byte) ([]byte, error) {
	if !c.Encrypted {
		return nil, fluxerr.New(fluxerr.KindEncryption, "channel is not encrypted")
	}
	if len(nonce) != NonceSize {
		return nil, fluxerr.Newf(fluxerr.KindEncryption,
			"nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindEncryption, "chunk authentication failed", err)
	}
	return plaintext, nil
}

// Zeroize sobrescreve a chave de sessão.
func (c *Channel) Zeroize() {
	Wipe(c.key[:])
}

// Wipe sobrescreve um buffer sensível com zeros.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	for i := range b {
		b[i] = 0
	}
	// Barreira contra eliminação da escrita morta
	subtle.ConstantTimeByteEq(b[0], 0)
}
