package routing

import (
	"sort"

	"github.com/upb/inference-router/models"
	"github.com/upb/inference-router/services/breaker"
)

// candidates builds the per-request ordered candidate list: the requested
// tier first, filtered to admissible backends and ordered by health score
// descending, then each lower tier the same way, and finally any last-resort
// backend not already included. The list is built once and never mutated;
// all state changes happen in the per-backend records.
func (s *Service) candidates(req *Request) []*backendState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byTier := make(map[models.Tier][]*backendState)
	var tiers []models.Tier
	var lastResort []*backendState

	for _, id := range s.order {
		c := s.backends[id]
		if c.def.LastResort {
			lastResort = append(lastResort, c)
			continue
		}
		if c.def.Tier > req.Tier {
			continue
		}
		if _, seen := byTier[c.def.Tier]; !seen {
			tiers = append(tiers, c.def.Tier)
		}
		byTier[c.def.Tier] = append(byTier[c.def.Tier], c)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] > tiers[j] })

	var out []*backendState
	for _, tier := range tiers {
		group := s.admissible(byTier[tier], req)
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].health.Score() > group[j].health.Score()
		})
		out = append(out, group...)
	}

	// The last resort is appended unfiltered: it is the always-available
	// floor of the chain.
	out = append(out, lastResort...)
	return out
}

// admissible filters a tier group to backends that can accept traffic right
// now: breaker not OPEN, bulkhead capacity available, both rate-limit
// buckets non-empty for the estimated cost.
func (s *Service) admissible(group []*backendState, req *Request) []*backendState {
	out := make([]*backendState, 0, len(group))
	for _, c := range group {
		if c.breaker.State() == breaker.StateOpen {
			continue
		}
		if !c.bulkhead.Available() {
			continue
		}
		estUnits := req.EstimatedUnits
		if estUnits <= 0 {
			estUnits = c.def.EstimatedUnits
		}
		if !c.limiter.HasCapacity(1, estUnits) {
			continue
		}
		out = append(out, c)
	}
	return out
}
