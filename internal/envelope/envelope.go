// Package envelope encrypts the identity payloads embedded in tokens.
//
// Ciphertext is AES-256-CBC with a random IV per call, serialized as
// "i$<ivHex>$e$<cipherHex>". There is no authentication tag: a tampered
// envelope is only caught when it breaks the format or the padding.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters. Matches the defaults of the Node.js scryptSync
// call that produced the existing envelopes, so keys stay compatible.
const (
	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

// keyLength is the only derived key length AES-256 accepts.
const keyLength = 32

// Envelope markers at positions 0 and 2 of the "$"-separated form.
const (
	ivMarker     = "i"
	cipherMarker = "e"
	separator    = "$"
)

var (
	// ErrEmptyPlaintext is returned when Encrypt is called with "".
	ErrEmptyPlaintext = errors.New("envelope: empty plaintext")

	// ErrMalformed is returned when a string is not a well-formed envelope.
	ErrMalformed = errors.New("envelope: malformed envelope")

	// ErrDecrypt is returned when the ciphertext does not decrypt under the key.
	ErrDecrypt = errors.New("envelope: decryption failed")
)

// Cipher holds the derived key. The key is computed once in New; the
// Cipher is safe for concurrent use.
type Cipher struct {
	block cipher.Block
}

// New derives the AES key from secret and salt with scrypt and returns a
// ready Cipher. keyLen must be 32.
func New(secret, salt string, keyLen int) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("envelope: empty secret")
	}
	if keyLen != keyLength {
		return nil, fmt.Errorf("envelope: key length must be %d bytes, got %d", keyLength, keyLen)
	}

	key, err := scrypt.Key([]byte(secret), []byte(salt), scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("envelope: deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: creating cipher: %w", err)
	}

	return &Cipher{block: block}, nil
}

// Encrypt seals plaintext into an envelope. Two calls with the same input
// return different envelopes.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("envelope: generating iv: %w", err)
	}

	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out, padded)

	return ivMarker + separator + hex.EncodeToString(iv) +
		separator + cipherMarker + separator + hex.EncodeToString(out), nil
}

// Decrypt opens an envelope produced by Encrypt.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, separator)
	if len(parts) != 4 || parts[0] != ivMarker || parts[2] != cipherMarker {
		return "", ErrMalformed
	}

	iv, err := hex.DecodeString(parts[1])
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrMalformed
	}
	ct, err := hex.DecodeString(parts[3])
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", ErrMalformed
	}

	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, ct)

	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// pad applies PKCS#7 padding.
func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips and validates PKCS#7 padding.
func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size {
		return nil, errors.New("invalid padding")
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
