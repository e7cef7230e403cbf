// Package directory keeps the in-memory view of identities the hub reads from.
package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/vovakirdan/parley/internal/core"
	"github.com/vovakirdan/parley/internal/store"
)

// Directory is a concurrency-safe identity table loaded from the account store.
type Directory struct {
	mu   sync.RWMutex
	byID map[string]core.Identity
}

var _ core.Directory = (*Directory)(nil)

// New returns an empty directory.
func New() *Directory {
	return &Directory{byID: make(map[string]core.Identity)}
}

// Load builds a directory from every stored account.
func Load(ctx context.Context, accounts store.AccountStore) (*Directory, error) {
	list, err := accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	d := New()
	for _, acct := range list {
		d.Put(FromAccount(acct))
	}
	return d, nil
}

// FromAccount projects a stored account onto the identity the core sees.
func FromAccount(acct *store.Account) core.Identity {
	return core.Identity{
		ID:           acct.Username,
		DisplayName:  acct.DisplayName,
		IsPrivileged: acct.IsPrivileged,
	}
}

// Lookup implements core.Directory.
func (d *Directory) Lookup(id string) (core.Identity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ident, ok := d.byID[id]
	return ident, ok
}

// Put inserts or replaces an identity.
func (d *Directory) Put(ident core.Identity) {
	d.mu.Lock()
	d.byID[ident.ID] = ident
	d.mu.Unlock()
}

// All returns every identity ordered by id.
func (d *Directory) All() []core.Identity {
	d.mu.RLock()
	out := lo.Values(d.byID)
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
