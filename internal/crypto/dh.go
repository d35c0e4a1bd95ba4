package crypto

import (
	"fmt"
	"math/big"

	"github.com/sxaes/gopass-secret-service/internal/key"
	"github.com/sxaes/gopass-secret-service/internal/xerrors"
)

// AlgorithmDHAES names the DH-IETF1024-SHA256-AES128-CBC-PKCS7 Secret
// Service transport algorithm.
const AlgorithmDHAES = "dh-ietf1024-sha256-aes128-cbc-pkcs7"

// dhPublicLen is the byte width public values are padded to: the 1024-bit
// MODP group 2 modulus.
const dhPublicLen = 128

// RFC 2409 Oakley Group 2 (1024-bit MODP).
var (
	dhPrime = func() *big.Int {
		p, ok := new(big.Int).SetString(
			"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1"+
				"29024E088A67CC74020BBEA63B139B22514A08798E3404DD"+
				"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245"+
				"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED"+
				"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE65381"+
				"FFFFFFFFFFFFFFFF", 16)
		if !ok {
			panic("crypto: malformed oakley group 2 prime")
		}
		return p
	}()
	dhGenerator = big.NewInt(2)
)

// powm computes base^exp mod mod. math/big's Exp is not constant-time in
// the exponent, which is acceptable here: the exponent is an ephemeral,
// single-use DH private scalar, never a long-lived secret compared
// bitwise against attacker input.
func powm(base, exp, mod *big.Int) *big.Int {
	return new(big.Int).Exp(base, exp, mod)
}

// padLeft left-pads b with zero bytes to exactly n bytes. b must not be
// longer than n.
func padLeft(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

// DHContext holds one side's ephemeral DH key pair: a 16-byte private
// scalar (per the keyring's actual wire format, not the full 1024-bit
// group order) and its corresponding 128-byte public value.
type DHContext struct {
	Private *key.Key
	Public  []byte
}

// NewDHContext samples a fresh 16-byte private scalar and computes the
// matching public value g^private mod p, padded to 128 bytes.
func NewDHContext() (*DHContext, error) {
	private, err := key.GeneratePrivate()
	if err != nil {
		return nil, fmt.Errorf("%w: generate dh private scalar: %v", xerrors.ErrCrypto, err)
	}
	public, err := GeneratePublic(private)
	if err != nil {
		private.Close()
		return nil, err
	}
	return &DHContext{Private: private, Public: public}, nil
}

// Close releases the context's private scalar.
func (c *DHContext) Close() error {
	if c.Private != nil {
		c.Private.Close()
	}
	return nil
}

// GeneratePublic computes g^private mod p for the given private scalar,
// returning the result padded to dhPublicLen bytes.
func GeneratePublic(private *key.Key) ([]byte, error) {
	exp := new(big.Int).SetBytes(private.Bytes())
	pub := powm(dhGenerator, exp, dhPrime)
	return padLeft(pub.Bytes(), dhPublicLen), nil
}

// GenerateSharedAES computes peerPublic^private mod p, pads it to
// dhPublicLen bytes, and runs it through HKDF-SHA-256 (no salt, empty
// info) to produce the session's 16-byte AES key.
func GenerateSharedAES(private *key.Key, peerPublic []byte) (*key.Key, error) {
	peer := new(big.Int).SetBytes(peerPublic)
	if peer.Sign() <= 0 || peer.Cmp(dhPrime) >= 0 {
		return nil, fmt.Errorf("%w: peer public value out of range", xerrors.ErrBadExchange)
	}

	exp := new(big.Int).SetBytes(private.Bytes())
	shared := powm(peer, exp, dhPrime)
	sharedBytes := padLeft(shared.Bytes(), dhPublicLen)

	aesKeyBytes, err := HKDFExpand(sharedBytes)
	zero(sharedBytes)
	if err != nil {
		return nil, err
	}
	k := key.New(aesKeyBytes, key.StrengthOK())
	zero(aesKeyBytes)
	return k, nil
}

// DHSession implements the Secret Service dh-ietf1024-sha256-aes128-cbc-pkcs7
// transport algorithm: a single DH exchange followed by AES-128-CBC
// encrypt/decrypt of each secret value under the shared session key.
type DHSession struct {
	ctx    *DHContext
	aesKey *key.Key
}

// NewDHSession runs a server-side DH exchange against the client's public
// value, returning the session and the server's own public value (padded
// to 128 bytes, as the transport expects).
func NewDHSession(clientPublic []byte) (*DHSession, []byte, error) {
	ctx, err := NewDHContext()
	if err != nil {
		return nil, nil, err
	}

	aesKey, err := GenerateSharedAES(ctx.Private, clientPublic)
	if err != nil {
		ctx.Close()
		return nil, nil, err
	}

	return &DHSession{ctx: ctx, aesKey: aesKey}, ctx.Public, nil
}

// Algorithm returns the algorithm name.
func (s *DHSession) Algorithm() string {
	return AlgorithmDHAES
}

// Encrypt encrypts plaintext under the session's AES key with a fresh IV,
// returning the IV as parameters alongside the ciphertext.
func (s *DHSession) Encrypt(plaintext []byte) (parameters, ciphertext []byte, err error) {
	iv, err := GenerateIV()
	if err != nil {
		return nil, nil, err
	}
	ivKey := key.New(iv, key.StrengthOK())
	defer ivKey.Close()

	ciphertext, err = Encrypt(plaintext, s.aesKey, ivKey)
	if err != nil {
		return nil, nil, err
	}
	return iv, ciphertext, nil
}

// Decrypt decrypts ciphertext under the session's AES key using parameters
// as the IV.
func (s *DHSession) Decrypt(parameters, ciphertext []byte) (plaintext []byte, err error) {
	ivKey := key.New(parameters, key.StrengthOK())
	defer ivKey.Close()

	return Decrypt(ciphertext, s.aesKey, ivKey)
}

// Close releases the session's DH context and AES key.
func (s *DHSession) Close() error {
	s.ctx.Close()
	s.aesKey.Close()
	return nil
}
