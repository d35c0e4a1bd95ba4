// Package xerrors holds the sentinel error taxonomy shared by the
// crypto, exchange, and prompt packages, so that callers across package
// boundaries can test error classes with errors.Is.
package xerrors

import "errors"

var (
	// ErrInvalidKeyOrIVLength is returned when an AES key or IV is not
	// exactly the block size in length.
	ErrInvalidKeyOrIVLength = errors.New("invalid key or iv length")

	// ErrUnpad is returned when PKCS#7 unpadding fails. It is distinct
	// from ErrIncorrectSecret: exchange's RetrieveSecret reports it as
	// ErrCrypto.
	ErrUnpad = errors.New("invalid pkcs#7 padding")

	// ErrMacMismatch is returned when an HMAC tag fails verification;
	// same error class as ErrIncorrectSecret upstream.
	ErrMacMismatch = errors.New("hmac verification failed")

	// ErrBadExchange marks a malformed [sx-aes-1] envelope.
	ErrBadExchange = errors.New("malformed secret exchange payload")

	// ErrCancelled marks a benign user cancellation.
	ErrCancelled = errors.New("prompt cancelled")

	// ErrProtocolViolation marks an out-of-order or unrecognized
	// PromptReady reply.
	ErrProtocolViolation = errors.New("prompt protocol violation")

	// ErrCrypto wraps primitive failures from AES/HMAC/HKDF/DH.
	ErrCrypto = errors.New("cryptographic primitive failure")

	// ErrBus marks a D-Bus transport failure.
	ErrBus = errors.New("bus failure")

	// ErrIncorrectSecret marks a keyring open attempt with a secret that
	// does not match the stored verifier.
	ErrIncorrectSecret = errors.New("incorrect secret")
)
