package keyring

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sxaes/gopass-secret-service/internal/key"
	"github.com/sxaes/gopass-secret-service/internal/store"
	"github.com/sxaes/gopass-secret-service/internal/xerrors"
)

// fakeStore is a minimal in-memory store.Store sufficient to exercise
// LoginKeyring without a real GoPass tree.
type fakeStore struct {
	collections map[string]*store.CollectionData
	items       map[string]map[string]*store.ItemData
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: make(map[string]*store.CollectionData),
		items:       make(map[string]map[string]*store.ItemData),
	}
}

func (f *fakeStore) Collections(context.Context) ([]string, error) { return nil, nil }

func (f *fakeStore) GetCollection(_ context.Context, name string) (*store.CollectionData, error) {
	c, ok := f.collections[name]
	if !ok {
		return nil, fmt.Errorf("no such collection %q", name)
	}
	return c, nil
}

func (f *fakeStore) CreateCollection(_ context.Context, name, label string) error {
	f.collections[name] = &store.CollectionData{Name: name, Label: label, Created: time.Now()}
	f.items[name] = make(map[string]*store.ItemData)
	return nil
}

func (f *fakeStore) DeleteCollection(_ context.Context, name string) error {
	delete(f.collections, name)
	delete(f.items, name)
	return nil
}

func (f *fakeStore) SetCollectionLabel(_ context.Context, name, label string) error {
	if c, ok := f.collections[name]; ok {
		c.Label = label
	}
	return nil
}

func (f *fakeStore) Items(_ context.Context, collection string) ([]string, error) {
	var ids []string
	for id := range f.items[collection] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) GetItem(_ context.Context, collection, id string) (*store.ItemData, error) {
	items, ok := f.items[collection]
	if !ok {
		return nil, fmt.Errorf("no such collection %q", collection)
	}
	item, ok := items[id]
	if !ok {
		return nil, fmt.Errorf("no such item %q", id)
	}
	return item, nil
}

func (f *fakeStore) CreateItem(_ context.Context, collection string, item *store.ItemData) (string, error) {
	if _, ok := f.items[collection]; !ok {
		f.items[collection] = make(map[string]*store.ItemData)
	}
	f.items[collection][item.ID] = item
	return item.ID, nil
}

func (f *fakeStore) UpdateItem(_ context.Context, collection, id string, item *store.ItemData) error {
	f.items[collection][id] = item
	return nil
}

func (f *fakeStore) DeleteItem(_ context.Context, collection, id string) error {
	delete(f.items[collection], id)
	return nil
}

func (f *fakeStore) SearchItems(_ context.Context, collection string, attributes map[string]string) ([]*store.ItemData, error) {
	var found []*store.ItemData
	for _, item := range f.items[collection] {
		match := true
		for k, v := range attributes {
			if item.Attributes[k] != v {
				match = false
				break
			}
		}
		if match {
			found = append(found, item)
		}
	}
	return found, nil
}

func (f *fakeStore) SearchAllItems(ctx context.Context, attributes map[string]string) (map[string][]*store.ItemData, error) {
	results := make(map[string][]*store.ItemData)
	for collection := range f.items {
		found, _ := f.SearchItems(ctx, collection, attributes)
		if len(found) > 0 {
			results[collection] = found
		}
	}
	return results, nil
}

func (f *fakeStore) LockCollection(_ context.Context, name string) error {
	c, ok := f.collections[name]
	if !ok {
		return fmt.Errorf("no such collection %q", name)
	}
	c.Locked = true
	return nil
}

func (f *fakeStore) UnlockCollection(_ context.Context, name string) error {
	c, ok := f.collections[name]
	if !ok {
		return fmt.Errorf("no such collection %q", name)
	}
	c.Locked = false
	return nil
}

func (f *fakeStore) GetAlias(context.Context, string) (string, error) { return "", errors.New("unset") }
func (f *fakeStore) SetAlias(context.Context, string, string) error   { return nil }
func (f *fakeStore) Close(context.Context) error                      { return nil }

func TestLoginKeyringOpenCreatesVerifierOnFirstUnlock(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	if err := s.CreateCollection(ctx, "login", "Login"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	kr := NewLoginKeyring(s, "login")

	secret := key.NewSecret([]byte("correct horse battery staple"))
	defer secret.Close()

	if err := kr.Open(ctx, "login", secret); err != nil {
		t.Fatalf("first Open (verifier creation): %v", err)
	}

	if _, err := s.GetItem(ctx, "login", verifierItemID); err != nil {
		t.Fatalf("verifier item not persisted: %v", err)
	}
}

func TestLoginKeyringOpenAcceptsMatchingSecret(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	s.CreateCollection(ctx, "login", "Login")
	kr := NewLoginKeyring(s, "login")

	secret := key.NewSecret([]byte("correct horse battery staple"))
	defer secret.Close()

	if err := kr.Open(ctx, "login", secret); err != nil {
		t.Fatalf("creating verifier: %v", err)
	}
	if err := kr.Open(ctx, "login", secret); err != nil {
		t.Fatalf("re-opening with the same secret should succeed: %v", err)
	}
}

func TestLoginKeyringOpenRejectsWrongSecret(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	s.CreateCollection(ctx, "login", "Login")
	kr := NewLoginKeyring(s, "login")

	right := key.NewSecret([]byte("correct horse battery staple"))
	defer right.Close()
	wrong := key.NewSecret([]byte("a different guess entirely"))
	defer wrong.Close()

	if err := kr.Open(ctx, "login", right); err != nil {
		t.Fatalf("creating verifier: %v", err)
	}

	err := kr.Open(ctx, "login", wrong)
	if !errors.Is(err, xerrors.ErrIncorrectSecret) {
		t.Fatalf("Open with wrong secret: got %v, want xerrors.ErrIncorrectSecret", err)
	}
}

func TestLoginKeyringLockUnlock(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	s.CreateCollection(ctx, "login", "Login")
	kr := NewLoginKeyring(s, "login")

	if err := kr.Lock(ctx, []string{"login"}); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	coll, _ := s.GetCollection(ctx, "login")
	if !coll.Locked {
		t.Fatalf("collection not locked after Lock")
	}

	if err := kr.Unlock(ctx, []string{"login"}); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	coll, _ = s.GetCollection(ctx, "login")
	if coll.Locked {
		t.Fatalf("collection still locked after Unlock")
	}
}

func TestLoginKeyringSearchItemsSkipsVerifier(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	s.CreateCollection(ctx, "login", "Login")
	kr := NewLoginKeyring(s, "login")

	secret := key.NewSecret([]byte("whatever"))
	defer secret.Close()
	if err := kr.Open(ctx, "login", secret); err != nil {
		t.Fatalf("creating verifier: %v", err)
	}

	plain := key.NewSecret([]byte("stored secret"))
	defer plain.Close()
	if err := kr.CreateItem(ctx, "site password", map[string]string{"host": "example.com"}, plain, false); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	items, err := kr.SearchItems(ctx, map[string]string{"host": "example.com"})
	if err != nil {
		t.Fatalf("SearchItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("SearchItems returned %d items, want 1 (verifier must be filtered)", len(items))
	}
	for _, it := range items {
		if it.ID == verifierItemID {
			t.Fatalf("SearchItems leaked the verifier item")
		}
	}
}
