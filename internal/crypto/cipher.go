package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/sxaes/gopass-secret-service/internal/key"
	"github.com/sxaes/gopass-secret-service/internal/xerrors"
)

// BlockSize is the AES block size, and therefore the required length of
// every AES-128-CBC key and IV used by this package.
const BlockSize = aes.BlockSize

// GenerateIV samples a fresh 16-byte initialization vector from the OS
// CSPRNG. Callers must never reuse an IV with the same key.
func GenerateIV() ([]byte, error) {
	iv := make([]byte, BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: generate iv: %v", xerrors.ErrCrypto, err)
	}
	return iv, nil
}

// Encrypt performs AES-128-CBC encryption with PKCS#7 padding. key and iv
// must each be exactly BlockSize bytes.
func Encrypt(plain []byte, k, iv *key.Key) ([]byte, error) {
	block, err := newBlock(k, iv)
	if err != nil {
		return nil, err
	}

	padLen := BlockSize - (len(plain) % BlockSize)
	padded := make([]byte, len(plain)+padLen)
	copy(padded, plain)
	for i := len(plain); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv.Bytes()).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// Decrypt performs AES-128-CBC decryption and removes PKCS#7 padding.
// Returns xerrors.ErrUnpad if the padding is malformed; exchange's
// RetrieveSecret reports such a failure as xerrors.ErrCrypto, not as
// IncorrectSecret.
func Decrypt(ciphertext []byte, k, iv *key.Key) ([]byte, error) {
	plain, err := decryptBlocks(ciphertext, k, iv)
	if err != nil {
		return nil, err
	}
	return unpad(plain)
}

// DecryptNoPadding performs AES-128-CBC decryption without removing any
// padding, for callers that know the plaintext is already block-aligned
// (the legacy EVP_BytesToKey format).
func DecryptNoPadding(ciphertext []byte, k, iv *key.Key) ([]byte, error) {
	return decryptBlocks(ciphertext, k, iv)
}

func decryptBlocks(ciphertext []byte, k, iv *key.Key) ([]byte, error) {
	block, err := newBlock(k, iv)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of the block size", xerrors.ErrInvalidKeyOrIVLength, len(ciphertext))
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv.Bytes()).CryptBlocks(plain, ciphertext)
	return plain, nil
}

func newBlock(k, iv *key.Key) (cipher.Block, error) {
	if k.Len() != BlockSize || iv.Len() != BlockSize {
		return nil, fmt.Errorf("%w: want %d bytes, got key=%d iv=%d", xerrors.ErrInvalidKeyOrIVLength, BlockSize, k.Len(), iv.Len())
	}
	block, err := aes.NewCipher(k.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrCrypto, err)
	}
	return block, nil
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", xerrors.ErrUnpad)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > BlockSize || padLen > len(data) {
		return nil, fmt.Errorf("%w: padLen=%d", xerrors.ErrUnpad, padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: inconsistent padding bytes", xerrors.ErrUnpad)
		}
	}
	return data[:len(data)-padLen], nil
}
