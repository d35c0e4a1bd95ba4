package exchange

import (
	"bytes"
	"testing"

	"github.com/sxaes/gopass-secret-service/internal/crypto"
	"github.com/sxaes/gopass-secret-service/internal/key"
)

func TestRetrieveSecretFixedVector(t *testing.T) {
	finalExchange := "[sx-aes-1]\n" +
		"public=/V6FpknNXlOGJwPqXtN0RaED2bS5JyYbftv7WbD0gWiVTMoNgxkAuOX2g+zUO/4TdfBJ6viPRcNdYV+KcxskGvhYouFXs+IgKqNO0MF0CNnWra1I6G56SM4Bgstkx9M5J+1f83l/BTAxlLsAppeLkqEEVSQoy9jXhPOrl5XlIzF2DvriYh+FInB7SFz4VzE3KVq40p7tA9+iAVQg1o9qkQHLazFb1DfbWRgvhDVhwNkk1fIlepIeM426gdmHIAxP\n" +
		"secret=DBeLBvEgGuGygDm+XnkxyQ==\n" +
		"iv=8e3N+gx553PgQlfTKRK3JA=="

	aesKeyPayload := "[sx-aes-1]\n" +
		"private=zDWLKDent/C//LquHCTlGg=="

	se := &SecretExchange{}
	secret, err := se.RetrieveSecret(finalExchange, aesKeyPayload)
	if err != nil {
		t.Fatalf("RetrieveSecret failed: %v", err)
	}
	defer secret.Close()

	if !bytes.Equal(secret.Bytes(), []byte("password")) {
		t.Errorf("got %q, want %q", secret.Bytes(), "password")
	}
}

func TestSecretExchangeRoundTrip(t *testing.T) {
	peer1, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer peer1.Close()
	peer2, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer peer2.Close()

	peer1Exchange := peer1.Begin()
	peer2Exchange := peer2.Begin()

	peer1AESKeyPayload, err := peer1.CreateSharedSecret(peer2Exchange)
	if err != nil {
		t.Fatalf("peer1.CreateSharedSecret failed: %v", err)
	}
	peer2AESKeyPayload, err := peer2.CreateSharedSecret(peer1Exchange)
	if err != nil {
		t.Fatalf("peer2.CreateSharedSecret failed: %v", err)
	}

	// peer2 encrypts "password" under its own view of the shared key and
	// ships it alongside its public value, simulating the final envelope
	// a prompter would send back to the daemon.
	keyFields, ok := decode(peer2AESKeyPayload)
	if !ok {
		t.Fatal("failed to decode peer2's aes key payload")
	}
	aesKeyBytes := keyFields[fieldPrivate]

	k := key.New(aesKeyBytes, key.StrengthOK())
	defer k.Close()
	ivBytes, err := crypto.GenerateIV()
	if err != nil {
		t.Fatalf("GenerateIV failed: %v", err)
	}
	iv := key.New(ivBytes, key.StrengthOK())
	defer iv.Close()

	ciphertext, err := crypto.Encrypt([]byte("password"), k, iv)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	pubFields, ok := decode(peer2Exchange)
	if !ok {
		t.Fatal("failed to decode peer2's begin payload")
	}

	finalExchange := encode(map[string][]byte{
		fieldPublic: pubFields[fieldPublic],
		fieldSecret: ciphertext,
		fieldIV:     iv.Bytes(),
	})

	secret, err := peer1.RetrieveSecret(finalExchange, peer1AESKeyPayload)
	if err != nil {
		t.Fatalf("RetrieveSecret failed: %v", err)
	}
	defer secret.Close()

	if !bytes.Equal(secret.Bytes(), []byte("password")) {
		t.Errorf("got %q, want %q", secret.Bytes(), "password")
	}
}

func TestRetrieveSecretShortSecretQuirk(t *testing.T) {
	se := &SecretExchange{}

	finalExchange := encode(map[string][]byte{
		fieldSecret: []byte("8bytes!!"), // exactly 8 bytes, per spec's short-secret scenario
		fieldIV:     bytes.Repeat([]byte{0x01}, 16),
	})

	secret, err := se.RetrieveSecret(finalExchange, "[sx-aes-1]\nprivate=AAAAAAAAAAAAAAAAAAAAAA==")
	if err != nil {
		t.Fatalf("RetrieveSecret failed: %v", err)
	}
	defer secret.Close()

	if !bytes.Equal(secret.Bytes(), []byte{0x00, 0x01}) {
		t.Errorf("got %x, want short-secret sentinel", secret.Bytes())
	}
}

func TestRetrieveSecretMissingFieldsIsBenign(t *testing.T) {
	se := &SecretExchange{}

	cases := []string{
		"[sx-aes-1]\npublic=cHVibGlj",
		"no header at all",
	}
	for _, payload := range cases {
		secret, err := se.RetrieveSecret(payload, "[sx-aes-1]\nprivate=AAAAAAAAAAAAAAAAAAAAAA==")
		if err != nil {
			t.Errorf("expected nil error for %q, got %v", payload, err)
		}
		if secret != nil {
			t.Errorf("expected nil secret for %q, got %v", payload, secret.Bytes())
		}
	}
}

func TestCreateSharedSecretRejectsBadExchange(t *testing.T) {
	se, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer se.Close()

	if _, err := se.CreateSharedSecret("garbage"); err == nil {
		t.Error("expected error for malformed peer exchange")
	}
}
