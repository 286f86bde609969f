// Package worker schedules pipeline jobs: it partitions accounts into tenant
// groups that share an external rate-limit bucket, runs groups across a fixed
// worker pool, and drives each account through the step sequence with
// persisted checkpoints.
package worker

import (
	"sort"

	"github.com/ignite/adpulse/internal/domain"
)

// TenantGroup is the set of accounts sharing one rate-limit bucket. Accounts
// inside a group run strictly sequentially; distinct groups run in parallel.
type TenantGroup struct {
	Key      string
	Accounts []domain.AdAccount
}

// GroupAccounts partitions accounts by business id. Accounts without one get
// a solo group keyed by their own id, since nothing shares their bucket.
// Group order and in-group account order are deterministic.
func GroupAccounts(accounts []domain.AdAccount) []TenantGroup {
	byKey := map[string][]domain.AdAccount{}
	for _, a := range accounts {
		key := a.BusinessID
		if key == "" {
			key = "solo:" + a.ID
		}
		byKey[key] = append(byKey[key], a)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]TenantGroup, 0, len(keys))
	for _, k := range keys {
		members := byKey[k]
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
		out = append(out, TenantGroup{Key: k, Accounts: members})
	}
	return out
}
