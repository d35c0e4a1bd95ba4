package crypto

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/sxaes/gopass-secret-service/internal/key"
)

// HMACSHA256 computes a deterministic 32-byte HMAC-SHA-256 tag over data.
func HMACSHA256(data []byte, k *key.Key) []byte {
	mac := hmac.New(sha256.New, k.Bytes())
	mac.Write(data)
	return mac.Sum(nil)
}

// VerifyHMACSHA256 performs a constant-time comparison between the
// expected tag and the tag computed over data. It never errors: a
// mismatch simply returns false.
func VerifyHMACSHA256(data []byte, k *key.Key, expected []byte) bool {
	return hmac.Equal(HMACSHA256(data, k), expected)
}

// VerifyMD5 performs a constant-time comparison of an MD5 digest against
// content's own MD5 digest. Used only for legacy integrity checks, never
// for security decisions.
func VerifyMD5(digest, content []byte) bool {
	sum := md5.Sum(content)
	return subtle.ConstantTimeCompare(sum[:], digest) == 1
}
