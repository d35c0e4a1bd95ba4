// Package keyring provides the §6 external Keyring interface that the
// Unlock prompt role verifies recovered secrets against. Implementation
// of the on-disk file format itself is out of scope (per spec §1); the
// concrete LoginKeyring here wraps the existing GoPass-backed
// store.Store instead of a literal keyring file, and verifies secrets
// against a PBKDF2-derived verifier rather than decrypting a keyring
// blob directly.
package keyring

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sxaes/gopass-secret-service/internal/crypto"
	"github.com/sxaes/gopass-secret-service/internal/key"
	"github.com/sxaes/gopass-secret-service/internal/store"
	"github.com/sxaes/gopass-secret-service/internal/xerrors"
)

// Item is a keyring-scoped view of a stored item, independent of the
// D-Bus object-path framing store.ItemData carries.
type Item struct {
	ID         string
	Label      string
	Attributes map[string]string
}

// Keyring is the external interface §6 describes: open (verify) a
// named keyring with a candidate secret, search/create items within
// it, and lock/unlock arbitrary named collections.
type Keyring interface {
	Open(ctx context.Context, name string, secret *key.Secret) error
	SearchItems(ctx context.Context, attributes map[string]string) ([]Item, error)
	CreateItem(ctx context.Context, label string, attributes map[string]string, secret *key.Secret, replace bool) error
	Lock(ctx context.Context, objects []string) error
	Unlock(ctx context.Context, objects []string) error
}

const (
	verifierItemID  = "_ss_verifier"
	verifierSaltLen = 16
	verifierIters   = 200000
)

// LoginKeyring verifies Unlock secrets against a PBKDF2 verifier kept
// alongside one store collection (normally "login"), rather than
// decrypting a real keyring file.
type LoginKeyring struct {
	store      store.Store
	collection string
}

// NewLoginKeyring returns a Keyring backed by collection in s.
func NewLoginKeyring(s store.Store, collection string) *LoginKeyring {
	return &LoginKeyring{store: s, collection: collection}
}

// Open verifies secret against the collection's stored verifier. If no
// verifier exists yet, the collection is being unlocked for the first
// time under this secret: one is derived and persisted, and Open
// succeeds. Returns xerrors.ErrIncorrectSecret (via errors.Is) when
// secret does not match an existing verifier.
func (k *LoginKeyring) Open(ctx context.Context, name string, secret *key.Secret) error {
	item, err := k.store.GetItem(ctx, name, verifierItemID)
	if err != nil {
		return k.createVerifier(ctx, name, secret)
	}

	salt, ok := item.Attributes["_ss_salt_hex"]
	if !ok {
		return fmt.Errorf("%w: verifier item missing salt", xerrors.ErrCrypto)
	}
	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrCrypto, err)
	}

	derived, err := crypto.DeriveKey(secret.Bytes(), key.StrengthOK(), saltBytes, verifierIters)
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrCrypto, err)
	}
	defer derived.Close()

	if subtle.ConstantTimeCompare(derived.Bytes(), item.Secret) != 1 {
		return xerrors.ErrIncorrectSecret
	}
	return nil
}

func (k *LoginKeyring) createVerifier(ctx context.Context, name string, secret *key.Secret) error {
	salt := make([]byte, verifierSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrCrypto, err)
	}

	derived, err := crypto.DeriveKey(secret.Bytes(), key.StrengthOK(), salt, verifierIters)
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrCrypto, err)
	}
	defer derived.Close()

	verifier := &store.ItemData{
		Label:  "keyring verifier",
		Secret: append([]byte(nil), derived.Bytes()...),
		Attributes: map[string]string{
			"_ss_salt_hex": hex.EncodeToString(salt),
		},
	}
	verifier.ID = verifierItemID
	if _, err := k.store.CreateItem(ctx, name, verifier); err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrCrypto, err)
	}
	return nil
}

// SearchItems returns keyring-scoped items across k.collection matching
// attributes. The reserved verifier item is never returned.
func (k *LoginKeyring) SearchItems(ctx context.Context, attributes map[string]string) ([]Item, error) {
	found, err := k.store.SearchItems(ctx, k.collection, attributes)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(found))
	for _, it := range found {
		if it.ID == verifierItemID {
			continue
		}
		items = append(items, Item{ID: it.ID, Label: it.Label, Attributes: it.Attributes})
	}
	return items, nil
}

// CreateItem creates or replaces a plain item in k.collection.
func (k *LoginKeyring) CreateItem(ctx context.Context, label string, attributes map[string]string, secret *key.Secret, replace bool) error {
	existing, err := k.store.SearchItems(ctx, k.collection, attributes)
	if err == nil && replace {
		for _, it := range existing {
			if it.ID == verifierItemID {
				continue
			}
			it.Label = label
			it.Secret = append([]byte(nil), secret.Bytes()...)
			return k.store.UpdateItem(ctx, k.collection, it.ID, it)
		}
	}

	item := &store.ItemData{
		Label:      label,
		Secret:     append([]byte(nil), secret.Bytes()...),
		Attributes: attributes,
	}
	_, err = k.store.CreateItem(ctx, k.collection, item)
	return err
}

// Lock locks every named collection in objects.
func (k *LoginKeyring) Lock(ctx context.Context, objects []string) error {
	var errs []error
	for _, name := range objects {
		if err := k.store.LockCollection(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unlock unlocks every named collection in objects.
func (k *LoginKeyring) Unlock(ctx context.Context, objects []string) error {
	var errs []error
	for _, name := range objects {
		if err := k.store.UnlockCollection(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
