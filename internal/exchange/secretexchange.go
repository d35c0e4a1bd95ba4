package exchange

import (
	"fmt"

	"github.com/sxaes/gopass-secret-service/internal/crypto"
	"github.com/sxaes/gopass-secret-service/internal/key"
	"github.com/sxaes/gopass-secret-service/internal/xerrors"
)

// shortSecretLen is the AES-128-CBC ciphertext length of a single block:
// a PKCS#7-padded plaintext of at most 15 bytes (the common case: a short
// password).
// A secret field of any other length is a quirk of the protocol's
// cancellation path, not a decryptable value, and must never be handed
// to crypto.Decrypt.
const shortSecretLen = 16

// falseSecret is returned by RetrieveSecret in place of attempting to
// decrypt a secret field of the wrong length.
var falseSecret = []byte{0x00, 0x01}

// SecretExchange runs one side of an [sx-aes-1] key exchange: an
// ephemeral DH key pair, a derived shared AES key, and the ability to
// decrypt the final secret payload.
type SecretExchange struct {
	ctx *crypto.DHContext
}

// New generates a fresh ephemeral DH key pair for a new exchange.
func New() (*SecretExchange, error) {
	ctx, err := crypto.NewDHContext()
	if err != nil {
		return nil, err
	}
	return &SecretExchange{ctx: ctx}, nil
}

// Begin returns this side's initial payload, carrying its public value.
func (se *SecretExchange) Begin() string {
	return encode(map[string][]byte{fieldPublic: se.ctx.Public})
}

// CreateSharedSecret derives the shared AES key from the peer's exchange
// payload and returns it encoded as a private-field payload, ready to be
// handed to the prompter as aesKeyPayload.
func (se *SecretExchange) CreateSharedSecret(peerExchange string) (string, error) {
	fields, ok := decode(peerExchange)
	if !ok {
		return "", fmt.Errorf("%w: missing or malformed header", xerrors.ErrBadExchange)
	}
	peerPublic, ok := fields[fieldPublic]
	if !ok {
		return "", fmt.Errorf("%w: missing public field", xerrors.ErrBadExchange)
	}

	aesKey, err := crypto.GenerateSharedAES(se.ctx.Private, peerPublic)
	if err != nil {
		return "", fmt.Errorf("%w: %v", xerrors.ErrCrypto, err)
	}
	defer aesKey.Close()

	return encode(map[string][]byte{fieldPrivate: aesKey.Bytes()}), nil
}

// RetrieveSecret decrypts the secret carried in finalExchange using the
// AES key encoded in aesKeyPayload (this side's own CreateSharedSecret
// output). A finalExchange missing its secret or iv field is treated as
// a benign cancellation race and returns (nil, nil), not an error.
func (se *SecretExchange) RetrieveSecret(finalExchange, aesKeyPayload string) (*key.Secret, error) {
	fields, ok := decode(finalExchange)
	if !ok {
		return nil, nil
	}
	secret, ok := fields[fieldSecret]
	if !ok {
		return nil, nil
	}
	iv, ok := fields[fieldIV]
	if !ok {
		return nil, nil
	}

	if len(secret) != shortSecretLen {
		return key.NewSecret(falseSecret), nil
	}

	keyFields, ok := decode(aesKeyPayload)
	if !ok {
		return nil, fmt.Errorf("%w: malformed aes key payload", xerrors.ErrBadExchange)
	}
	aesKeyBytes, ok := keyFields[fieldPrivate]
	if !ok {
		return nil, fmt.Errorf("%w: missing private field", xerrors.ErrBadExchange)
	}

	aesKey := key.New(aesKeyBytes, key.StrengthOK())
	defer aesKey.Close()
	ivKey := key.New(iv, key.StrengthOK())
	defer ivKey.Close()

	plain, err := crypto.Decrypt(secret, aesKey, ivKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrCrypto, err)
	}
	return key.NewSecret(plain), nil
}

// Close releases the exchange's ephemeral DH private key.
func (se *SecretExchange) Close() {
	se.ctx.Close()
}
