package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/asaidimu/go-repodb/core/query"
	"github.com/asaidimu/go-repodb/core/schema"
)

// Tenant identifies one of the sites sharing a store.
type Tenant string

const (
	TenantSchool  Tenant = "school"
	TenantMasjid  Tenant = "masjid"
	TenantCharity Tenant = "charity"
	TenantTravels Tenant = "travels"
)

// Tenants lists the known tenants.
func Tenants() []Tenant {
	return []Tenant{TenantSchool, TenantMasjid, TenantCharity, TenantTravels}
}

// ParseTenant accepts a known tenant name in any case.
func ParseTenant(s string) (Tenant, error) {
	t := Tenant(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Tenants() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tenant %q", s)
}

// TenantStore scopes every collection name to one tenant. Isolation is by
// naming only; it does not restrict access to other tenants.
type TenantStore struct {
	store  *Store
	tenant Tenant
}

// Tenant returns a view of the store scoped to t.
func (s *Store) Tenant(t Tenant) *TenantStore {
	return &TenantStore{store: s, tenant: t}
}

// Tenant returns the tenant the view is scoped to.
func (ts *TenantStore) Tenant() Tenant {
	return ts.tenant
}

// Name returns the namespaced form of collection.
func (ts *TenantStore) Name(collection string) string {
	return string(ts.tenant) + "/" + strings.TrimLeft(collection, "/")
}

// Get returns the tenant's collection, reading it through the remote store
// when it is not cached or force is set.
func (ts *TenantStore) Get(ctx context.Context, collection string, force bool) ([]schema.Document, error) {
	return ts.store.Get(ctx, ts.Name(collection), force)
}

// GetItem returns a cached record of the tenant's collection by id or uid.
// See Store.GetItem.
func (ts *TenantStore) GetItem(ctx context.Context, collection, key string) (schema.Document, error) {
	return ts.store.GetItem(ctx, ts.Name(collection), key)
}

// Insert adds a record to the tenant's collection.
func (ts *TenantStore) Insert(ctx context.Context, collection string, partial schema.Document) (schema.Document, error) {
	return ts.store.Insert(ctx, ts.Name(collection), partial)
}

// Update merges partial into the record whose id or uid equals key.
func (ts *TenantStore) Update(ctx context.Context, collection, key string, partial schema.Document) (schema.Document, error) {
	return ts.store.Update(ctx, ts.Name(collection), key, partial)
}

// Delete removes the record whose id or uid equals key.
func (ts *TenantStore) Delete(ctx context.Context, collection, key string) error {
	return ts.store.Delete(ctx, ts.Name(collection), key)
}

// Subscribe watches the tenant's collection. See Store.Subscribe.
func (ts *TenantStore) Subscribe(collection string, cb func([]schema.Document)) func() {
	return ts.store.Subscribe(ts.Name(collection), cb)
}

// Query starts a query over the tenant's collection.
func (ts *TenantStore) Query(collection string) *query.QueryBuilder {
	return ts.store.Query(ts.Name(collection))
}

// Audit returns the retained audit entries of the tenant's collection.
func (ts *TenantStore) Audit(collection string) []AuditEntry {
	return ts.store.Audit(ts.Name(collection))
}

// Mutate queues mutation against the tenant's collection.
func (ts *TenantStore) Mutate(ctx context.Context, collection string, mutation Mutation) ([]schema.Document, error) {
	return ts.store.Mutate(ctx, ts.Name(collection), mutation)
}

// Path returns the remote file path of the tenant's collection.
func (ts *TenantStore) Path(collection string) (string, error) {
	return ts.store.Path(ts.Name(collection))
}
