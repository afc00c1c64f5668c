// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package wire implementa o protocolo binário do Flux para transferência
// peer-to-peer sobre TCP. Cada mensagem é serializada de forma compacta e
// embrulhada com um prefixo de comprimento de 4 bytes big-endian.
// O codec é simétrico: sender e receiver compartilham uma única definição.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ProtocolVersion é a versão atual do protocolo peer.
const ProtocolVersion byte = 1

// MaxFrameSize é o tamanho máximo de um frame (2MiB), imposto pelo codec
// e novamente pelo limite de alocação do decodificador.
const MaxFrameSize = 2 * 1024 * 1024

// Tags de tipo de mensagem.
const (
	tagHandshake        byte = 0x01
	tagHandshakeAck     byte = 0x02
	tagFileHeader       byte = 0x03
	tagDataChunk        byte = 0x04
	tagTransferComplete byte = 0x05
	tagError            byte = 0x06
)

// Erros do protocolo.
var (
	ErrFrameTooLarge  = errors.New("wire: frame exceeds 2MiB limit")
	ErrTruncatedFrame = errors.New("wire: truncated frame")
	ErrUnknownMessage = errors.New("wire: unknown message tag")
)

// Message é uma mensagem do protocolo peer.
type Message interface {
	tag() byte
	encode(buf *bytes.Buffer)
	decode(r *byteReader) error
}

// Handshake abre a conexão (Sender → Receiver).
// PublicKey está presente sse o sender pediu criptografia.
type Handshake struct {
	Version    byte
	DeviceName string
	PublicKey  []byte // 32 bytes quando presente
}

// HandshakeAck responde ao handshake (Receiver → Sender).
type HandshakeAck struct {
	Accepted  bool
	PublicKey []byte // presente quando o canal será criptografado
	Reason    string // presente quando Accepted=false
}

// FileHeader anuncia o arquivo que será transmitido.
type FileHeader struct {
	Filename  string
	Size      uint64
	Checksum  string // hex BLAKE3; vazio = ausente
	Encrypted bool
}

// DataChunk carrega uma faixa sequencial do arquivo.
// Nonce é obrigatório sse o canal é criptografado.
type DataChunk struct {
	Offset uint64
	Data   []byte
	Nonce  []byte // 24 bytes quando presente
}

// TransferComplete confirma o recebimento íntegro (Receiver → Sender).
type TransferComplete struct {
	Filename         string
	BytesReceived    uint64
	ChecksumVerified *bool
}

// ErrorMessage comunica uma falha e precede o fechamento da conexão.
type ErrorMessage struct {
	Message string
}

// WriteMessage serializa msg e escreve o frame com prefixo de comprimento.
func WriteMessage(w io.Writer, msg Message) error {
	var payload bytes.Buffer
	payload.WriteByte(msg.tag())
	msg.encode(&payload)

	if payload.Len() > MaxFrameSize {
		return ErrFrameTooLarge
	}

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(payload.Len()))
	if _, err := w.Write(length[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := w.Write(payload.Bytes()); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

// ReadMessage lê um frame e decodifica a mensagem.
// Frames maiores que MaxFrameSize são rejeitados antes da alocação.
func ReadMessage(r io.Reader) (Message, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncatedFrame
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	if length == 0 {
		return nil, ErrTruncatedFrame
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ErrTruncatedFrame
	}

	br := &byteReader{buf: payload[1:]}
	var msg Message
	switch payload[0] {
	case tagHandshake:
		msg = &Handshake{}
	case tagHandshakeAck:
		msg = &HandshakeAck{}
	case tagFileHeader:
		msg = &FileHeader{}
	case tagDataChunk:
		msg = &DataChunk{}
	case tagTransferComplete:
		msg = &TransferComplete{}
	case tagError:
		msg = &ErrorMessage{}
	default:
		return nil, ErrUnknownMessage
	}

	if err := msg.decode(br); err != nil {
		return nil, err
	}
	if br.remaining() != 0 {
		return nil, fmt.Errorf("wire: %d trailing bytes after message", br.remaining())
	}
	return msg, nil
}

// --- Handshake ---

func (m *Handshake) tag() byte { return tagHandshake }

func (m *Handshake) encode(buf *bytes.Buffer) {
	buf.WriteByte(m.Version)
	writeString(buf, m.DeviceName)
	writeOptBytes(buf, m.PublicKey)
}

func (m *Handshake) decode(r *byteReader) error {
	var err error
	if m.Version, err = r.readByte(); err != nil {
		return err
	}
	if m.DeviceName, err = r.readString(); err != nil {
		return err
	}
	if m.PublicKey, err = r.readOptBytes(); err != nil {
		return err
	}
	return nil
}

// --- HandshakeAck ---

func (m *HandshakeAck) tag() byte { return tagHandshakeAck }

func (m *HandshakeAck) encode(buf *bytes.Buffer) {
	writeBool(buf, m.Accepted)
	writeOptBytes(buf, m.PublicKey)
	writeString(buf, m.Reason)
}

func (m *HandshakeAck) decode(r *byteReader) error {
	var err error
	if m.Accepted, err = r.readBool(); err != nil {
		return err
	}
	if m.PublicKey, err = r.readOptBytes(); err != nil {
		return err
	}
	if m.Reason, err = r.readString(); err != nil {
		return err
	}
	return nil
}

// --- FileHeader ---

func (m *FileHeader) tag() byte { return tagFileHeader }

func (m *FileHeader) encode(buf *bytes.Buffer) {
	writeString(buf, m.Filename)
	writeUint64(buf, m.Size)
	writeString(buf, m.Checksum)
	writeBool(buf, m.Encrypted)
}

func (m *FileHeader) decode(r *byteReader) error {
	var err error
	if m.Filename, err = r.readString(); err != nil {
		return err
	}
	if m.Size, err = r.readUint64(); err != nil {
		return err
	}
	if m.Checksum, err = r.readString(); err != nil {
		return err
	}
	if m.Encrypted, err = r.readBool(); err != nil {
		return err
	}
	return nil
}

// --- DataChunk ---

func (m *DataChunk) tag() byte { return tagDataChunk }

func (m *DataChunk) encode(buf *bytes.Buffer) {
	writeUint64(buf, m.Offset)
	writeBytes(buf, m.Data)
	writeOptBytes(buf, m.Nonce)
}

func (m *DataChunk) decode(r *byteReader) error {
	var err error
	if m.Offset, err = r.readUint64(); err != nil {
		return err
	}
	if m.Data, err = r.readBytes(); err != nil {
		return err
	}
	if m.Nonce, err = r.readOptBytes(); err != nil {
		return err
	}
	return nil
}

// --- TransferComplete ---

func (m *TransferComplete) tag() byte { return tagTransferComplete }

func (m *TransferComplete) encode(buf *bytes.Buffer) {
	writeString(buf, m.Filename)
	writeUint64(buf, m.BytesReceived)
	if m.ChecksumVerified == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
		writeBool(buf, *m.ChecksumVerified)
	}
}

func (m *TransferComplete) decode(r *byteReader) error {
	var err error
	if m.Filename, err = r.readString(); err != nil {
		return err
	}
	if m.BytesReceived, err = r.readUint64(); err != nil {
		return err
	}
	present, err := r.readByte()
	if err != nil {
		return err
	}
	if present == 1 {
		v, err := r.readBool()
		if err != nil {
			return err
		}
		m.ChecksumVerified = &v
	}
	return nil
}

// --- ErrorMessage ---

func (m *ErrorMessage) tag() byte { return tagError }

func (m *ErrorMessage) encode(buf *bytes.Buffer) {
	writeString(buf, m.Message)
}

func (m *ErrorMessage) decode(r *byteReader) error {
	var err error
	m.Message, err = r.readString()
	return err
}

// --- primitivas de encoding ---

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(s)))
	buf.Write(b[:])
	buf.WriteString(s)
}

func writeBytes(buf *bytes.Buffer, data []byte) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(len(data)))
	buf.Write(b[:])
	buf.Write(data)
}

// writeOptBytes escreve um campo opcional: presença (1B) + conteúdo.
func writeOptBytes(buf *bytes.Buffer, data []byte) {
	if data == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeBytes(buf, data)
}

// byteReader decodifica o payload com limite de alocação: nenhum campo
// pode exceder o que resta do frame, então alocações são sempre limitadas
// por MaxFrameSize.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *byteReader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, ErrTruncatedFrame
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) readBool() (bool, error) {
	b, err := r.readByte()
	return b != 0, err
}

func (r *byteReader) readUint64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, ErrTruncatedFrame
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *byteReader) readString() (string, error) {
	if r.remaining() < 2 {
		return "", ErrTruncatedFrame
	}
	n := int(binary.BigEndian.Uint16(r.buf[r.pos:]))
	r.pos += 2
	if r.remaining() < n {
		return "", ErrTruncatedFrame
	}
	s := string(r.buf[r.pos : r.pos+n])
	r.pos += n
	return s, nil
}

func (r *byteReader) readBytes() ([]byte, error) {
	if r.remaining() < 4 {
		return nil, ErrTruncatedFrame
	}
	n := int(binary.BigEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	if n > r.remaining() {
		return nil, ErrTruncatedFrame
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

func (r *byteReader) readOptBytes() ([]byte, error) {
	present, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	return r.readBytes()
}
