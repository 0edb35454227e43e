// Package fieldcrypt cifra atributos individuales (teléfono, dirección,
// secreto TOTP) antes de que toquen el storage. AES-256-GCM con clave de
// deployment; formato en disco: base64(nonce)|base64(ciphertext).
//
// La clave se carga una sola vez en el arranque y nunca se loguea.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// AES-GCM nonce recomendado (96 bits)
	nonceSize = 12
	// 32 bytes => AES-256
	keyLength = 32
	sep       = "|"
)

var ErrBadFormat = errors.New("formato inválido: esperado base64(nonce)|base64(ciphertext)")

// Cipher cifra/descifra strings individuales. Inmutable después de New;
// seguro para uso concurrente.
type Cipher struct {
	aead cipher.AEAD
}

// New construye un Cipher a partir de la clave maestra en base64
// (openssl rand -base64 32). Falla si no decodifica a 32 bytes.
func New(keyB64 string) (*Cipher, error) {
	k, err := base64.StdEncoding.DecodeString(strings.TrimSpace(keyB64))
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	return NewFromBytes(k)
}

// NewFromBytes construye un Cipher con la clave cruda (32 bytes).
func NewFromBytes(key []byte) (*Cipher, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("encryption key: se requieren %d bytes, hay %d", keyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt cifra plain (incluido el string vacío) y devuelve
// base64(nonce)|base64(ciphertext).
func (c *Cipher) Encrypt(plain string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := c.aead.Seal(nil, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt deshace Encrypt. Falla si el ciphertext fue alterado.
func (c *Cipher) Decrypt(enc string) (string, error) {
	parts := strings.Split(enc, sep)
	if len(parts) != 2 {
		return "", ErrBadFormat
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(nonce) != nonceSize {
		return "", fmt.Errorf("nonce inválido: esperado %d bytes, hay %d", nonceSize, len(nonce))
	}
	pt, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

// EncryptPtr cifra el valor apuntado; nil pasa de largo (la ausencia no es
// un error, el cifrado es no-op sobre nil).
func (c *Cipher) EncryptPtr(p *string) (*string, error) {
	if p == nil {
		return nil, nil
	}
	enc, err := c.Encrypt(*p)
	if err != nil {
		return nil, err
	}
	return &enc, nil
}

// DecryptPtr deshace EncryptPtr.
func (c *Cipher) DecryptPtr(p *string) (*string, error) {
	if p == nil {
		return nil, nil
	}
	pt, err := c.Decrypt(*p)
	if err != nil {
		return nil, err
	}
	return &pt, nil
}
