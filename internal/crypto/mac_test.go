package crypto

import (
	"crypto/md5"
	"testing"

	"github.com/sxaes/gopass-secret-service/internal/key"
)

func TestHMACSHA256VerifyRoundTrip(t *testing.T) {
	k := key.New([]byte("0123456789abcdef"), key.StrengthOK())
	defer k.Close()

	data := []byte("the quick brown fox")
	tag := HMACSHA256(data, k)

	if !VerifyHMACSHA256(data, k, tag) {
		t.Error("expected valid tag to verify")
	}
	if VerifyHMACSHA256([]byte("tampered"), k, tag) {
		t.Error("expected tampered data to fail verification")
	}

	tampered := append([]byte(nil), tag...)
	tampered[0] ^= 0xFF
	if VerifyHMACSHA256(data, k, tampered) {
		t.Error("expected tampered tag to fail verification")
	}
}

func TestVerifyMD5(t *testing.T) {
	cases := []struct {
		name    string
		content []byte
		tamper  bool
		want    bool
	}{
		{"matches", []byte("hello keyring"), false, true},
		{"tampered content", []byte("hello keyring"), true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sum := md5.Sum(tc.content)
			digest := sum[:]
			content := tc.content
			if tc.tamper {
				content = []byte("hello KEYRING")
			}
			if got := VerifyMD5(digest, content); got != tc.want {
				t.Errorf("VerifyMD5() = %v, want %v", got, tc.want)
			}
		})
	}
}
