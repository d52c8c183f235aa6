// Package dispatch picks a rider for a delivery when assignment is automatic.
package dispatch

import (
	"errors"
	"sort"

	"github.com/kiwari-pos/fulfillment/internal/database"
)

// ErrNoRider is returned when no candidate has spare capacity.
var ErrNoRider = errors.New("no rider available")

// Policy chooses one rider out of the branch's candidates. Candidates may
// include riders that cannot take work; policies must skip them.
type Policy interface {
	Select(candidates []database.Rider) (database.Rider, error)
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(candidates []database.Rider) (database.Rider, error)

func (f PolicyFunc) Select(candidates []database.Rider) (database.Rider, error) { return f(candidates) }

// CanTake reports whether r is available and below capacity.
func CanTake(r database.Rider) bool {
	return r.IsAvailable && r.ActiveDeliveriesCount < r.MaxConcurrentDeliveries
}

// LeastLoaded picks the rider with the fewest active deliveries, breaking ties
// by earliest registration. Distance and zone are not considered.
type LeastLoaded struct{}

func (LeastLoaded) Select(candidates []database.Rider) (database.Rider, error) {
	eligible := make([]database.Rider, 0, len(candidates))
	for _, r := range candidates {
		if CanTake(r) {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 {
		return database.Rider{}, ErrNoRider
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.ActiveDeliveriesCount != b.ActiveDeliveriesCount {
			return a.ActiveDeliveriesCount < b.ActiveDeliveriesCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return eligible[0], nil
}
