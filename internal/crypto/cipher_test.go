package crypto

import (
	"bytes"
	"crypto/cipher"
	"testing"

	"github.com/sxaes/gopass-secret-service/internal/key"
)

func newTestKey(t *testing.T, b byte) *key.Key {
	t.Helper()
	buf := make([]byte, BlockSize)
	for i := range buf {
		buf[i] = b
	}
	return key.New(buf, key.StrengthOK())
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte("")},
		{"short", []byte("hi")},
		{"exact block", bytes.Repeat([]byte("a"), BlockSize)},
		{"multi block", bytes.Repeat([]byte("gopass"), 10)},
	}

	k := newTestKey(t, 0x42)
	defer k.Close()
	iv := newTestKey(t, 0x24)
	defer iv.Close()

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ciphertext, err := Encrypt(tc.plaintext, k, iv)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}
			if len(ciphertext)%BlockSize != 0 {
				t.Fatalf("ciphertext length %d not block-aligned", len(ciphertext))
			}

			plain, err := Decrypt(ciphertext, k, iv)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}
			if !bytes.Equal(plain, tc.plaintext) {
				t.Errorf("round trip mismatch: got %q want %q", plain, tc.plaintext)
			}
		})
	}
}

func TestDecryptBadPadding(t *testing.T) {
	k := newTestKey(t, 0x11)
	defer k.Close()
	iv := newTestKey(t, 0x22)
	defer iv.Close()

	ciphertext, err := Encrypt([]byte("padding check"), k, iv)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	// Corrupt the last ciphertext block so the decrypted padding is garbage.
	ciphertext[len(ciphertext)-1] ^= 0xFF

	if _, err := Decrypt(ciphertext, k, iv); err == nil {
		t.Error("expected unpad error for corrupted ciphertext, got nil")
	}
}

func TestDecryptNoPaddingPreservesLength(t *testing.T) {
	k := newTestKey(t, 0x33)
	defer k.Close()
	iv := newTestKey(t, 0x44)
	defer iv.Close()

	plaintext := bytes.Repeat([]byte{0xAB}, BlockSize*2)
	ciphertext, err := encryptNoPadding(plaintext, k, iv)
	if err != nil {
		t.Fatalf("encryptNoPadding failed: %v", err)
	}

	plain, err := DecryptNoPadding(ciphertext, k, iv)
	if err != nil {
		t.Fatalf("DecryptNoPadding failed: %v", err)
	}
	if !bytes.Equal(plain, plaintext) {
		t.Errorf("got %x want %x", plain, plaintext)
	}
}

func TestNewBlockRejectsWrongLength(t *testing.T) {
	shortKey := key.New([]byte{1, 2, 3}, key.StrengthOK())
	defer shortKey.Close()
	iv := newTestKey(t, 0x01)
	defer iv.Close()

	if _, err := newBlock(shortKey, iv); err == nil {
		t.Error("expected error for undersized key, got nil")
	}
}

func TestGenerateIVIsUnique(t *testing.T) {
	a, err := GenerateIV()
	if err != nil {
		t.Fatalf("GenerateIV failed: %v", err)
	}
	b, err := GenerateIV()
	if err != nil {
		t.Fatalf("GenerateIV failed: %v", err)
	}
	if len(a) != BlockSize || len(b) != BlockSize {
		t.Fatalf("unexpected IV length: %d, %d", len(a), len(b))
	}
	if bytes.Equal(a, b) {
		t.Error("two successive IVs collided, CSPRNG likely broken")
	}
}

// encryptNoPadding is the test-only mirror of DecryptNoPadding, used to
// exercise the legacy block-aligned code path without going through the
// PKCS#7 padder.
func encryptNoPadding(plaintext []byte, k, iv *key.Key) ([]byte, error) {
	block, err := newBlock(k, iv)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv.Bytes()).CryptBlocks(out, plaintext)
	return out, nil
}
