package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	"github.com/sxaes/gopass-secret-service/internal/key"
	"github.com/sxaes/gopass-secret-service/internal/xerrors"
)

// keySize is the AES-128 key length produced by every KDF in this file.
const keySize = 16

// DeriveKey runs PBKDF2-HMAC-SHA-256 over secret with the given salt and
// iteration count (taken from the keyring file header), producing a
// 16-byte AES key. strength is carried through to the returned Key
// unchanged.
func DeriveKey(secret []byte, strength key.Strength, salt []byte, iterations int) (*key.Key, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: non-positive iteration count %d", xerrors.ErrCrypto, iterations)
	}
	derived := pbkdf2.Key(secret, salt, iterations, keySize, sha256.New)
	k := key.New(derived, strength)
	zero(derived)
	return k, nil
}

// LegacyDeriveKeyAndIV reproduces OpenSSL's EVP_BytesToKey derivation:
// D0 = H^iterations(secret || salt), Di = H^iterations(D(i-1)), digests are
// concatenated until 32 bytes (key_size + iv_size) are produced. The first
// 16 bytes become the AES key (inheriting strength), the next 16 the IV.
func LegacyDeriveKeyAndIV(secret []byte, strength key.Strength, salt []byte, iterations int) (*key.Key, []byte, error) {
	if iterations <= 0 {
		return nil, nil, fmt.Errorf("%w: non-positive iteration count %d", xerrors.ErrCrypto, iterations)
	}

	const want = keySize + BlockSize
	buf := make([]byte, 0, want)
	var digest []byte

	for len(buf) < want {
		h := sha256.New()
		if digest != nil {
			h.Write(digest)
		} else {
			h.Write(secret)
			h.Write(salt)
		}
		digest = h.Sum(nil)
		for i := 1; i < iterations; i++ {
			h = sha256.New()
			h.Write(digest)
			digest = h.Sum(nil)
		}
		n := len(digest)
		if remaining := want - len(buf); n > remaining {
			n = remaining
		}
		buf = append(buf, digest[:n]...)
	}

	k := key.New(buf[:keySize], strength)
	iv := make([]byte, BlockSize)
	copy(iv, buf[keySize:want])
	zero(buf)
	return k, iv, nil
}

// HKDFExpand runs HKDF-SHA-256 with no salt and empty info over ikm,
// producing the 16-byte AES key used by the DH session-key exchange (C3).
func HKDFExpand(ikm []byte) ([]byte, error) {
	out := make([]byte, keySize)
	reader := hkdf.New(sha256.New, ikm, nil, nil)
	if _, err := reader.Read(out); err != nil {
		return nil, fmt.Errorf("%w: hkdf expand: %v", xerrors.ErrCrypto, err)
	}
	return out, nil
}

// zero overwrites b in place, the same way key.Key zeroes its own buffer,
// so intermediate KDF buffers don't outlive their use either.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
