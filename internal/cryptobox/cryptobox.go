// Package cryptobox implements the artifact encryption format: a random
// 16-byte IV followed by the AES-128-CBC ciphertext of the PKCS#7-padded
// payload.
package cryptobox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
)

// KeySize is the AES-128 key size in bytes.
const KeySize = 16

// IVSize is the CBC initialization vector size in bytes.
const IVSize = aes.BlockSize

var (
	// ErrInvalidKeySize indicates a key that is not 16 bytes.
	ErrInvalidKeySize = errors.New("key must be 16 bytes")

	// ErrCiphertextTooShort indicates an encrypted payload smaller than IV + one block.
	ErrCiphertextTooShort = errors.New("ciphertext too short")

	// ErrInvalidPadding indicates corrupt or mis-keyed ciphertext.
	ErrInvalidPadding = errors.New("invalid PKCS#7 padding")
)

// NewIV returns a fresh random initialization vector.
func NewIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generating IV: %w", err)
	}
	return iv, nil
}

// Encrypt seals the plaintext as IV || AES-128-CBC(pad(plaintext)).
func Encrypt(key, plaintext []byte) ([]byte, error) {
	iv, err := NewIV()
	if err != nil {
		return nil, err
	}
	return EncryptWithIV(key, iv, plaintext)
}

// EncryptWithIV is Encrypt with a caller-supplied IV. The IV is prepended to
// the returned ciphertext.
func EncryptWithIV(key, iv, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("IV must be %d bytes", IVSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	padded := pad(plaintext)
	out := make([]byte, IVSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[IVSize:], padded)
	return out, nil
}

// Decrypt opens a payload produced by Encrypt.
func Decrypt(key, data []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(data) < IVSize+aes.BlockSize || (len(data)-IVSize)%aes.BlockSize != 0 {
		return nil, ErrCiphertextTooShort
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	iv := data[:IVSize]
	ciphertext := data[IVSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return unpad(plaintext)
}

// EncryptFile encrypts src and writes the sealed payload to dst.
func EncryptFile(key []byte, src, dst string) error {
	plaintext, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	sealed, err := Encrypt(key, plaintext)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, sealed, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}

// DecryptFile opens an encrypted file and returns the plaintext.
func DecryptFile(key []byte, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Decrypt(key, data)
}

// pad applies PKCS#7 padding to a full block multiple.
func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips and validates PKCS#7 padding.
func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, ErrInvalidPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
