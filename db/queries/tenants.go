package queries

import (
	"context"
	"fmt"

	"go.hackfix.me/tenmig/db/types"
)

// DefaultTenantsQuery selects active tenant databases from the host's tenant
// registry. Custom queries must return exactly two columns: the tenant ID and
// the tenant's data source name.
const DefaultTenantsQuery = `SELECT id, dbconnection FROM tenants
	WHERE is_active AND tenant_type = 'tenant'
	ORDER BY id`

// TenantDSN is a row of the host's tenant registry.
type TenantDSN struct {
	ID  string
	DSN string
}

// Tenants returns the tenant databases registered in the host database, in
// the order returned by query. Rows with a duplicate tenant ID are skipped.
func Tenants(ctx context.Context, d types.Querier, query string) (tenants []TenantDSN, rerr error) {
	if query == "" {
		query = DefaultTenantsQuery
	}

	rows, err := d.QueryContext(ctx, query)
	if err != nil {
		return nil, types.LoadError{ModelName: "tenants", Err: err}
	}
	defer func() {
		if err = rows.Close(); err != nil && rerr == nil {
			rerr = fmt.Errorf("failed closing tenants rows: %w", err)
		}
	}()

	seen := map[string]struct{}{}
	tenants = make([]TenantDSN, 0)
	for rows.Next() {
		var t TenantDSN
		if err = rows.Scan(&t.ID, &t.DSN); err != nil {
			return nil, types.ScanError{ModelName: "tenant", Err: err}
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		tenants = append(tenants, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating over tenants rows: %w", err)
	}

	return tenants, nil
}
