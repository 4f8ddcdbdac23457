package planner

import "github.com/praetorian-inc/ssoctl/pkg/ssotypes"

// shardAssignments distributes assignments across numShards buckets using
// each assignment's stable fingerprint-derived ShardIndex, preserving the
// relative order assignments arrived in within each bucket.
func shardAssignments(assignments []ssotypes.Assignment, numShards int) [][]ssotypes.Assignment {
	buckets := make([][]ssotypes.Assignment, numShards)
	for _, a := range assignments {
		idx := a.ShardIndex(numShards)
		buckets[idx] = append(buckets[idx], a)
	}
	return buckets
}

// applyConcurrencyThrottle sets DependsOn on the kth resource (0-indexed,
// k >= window) to the name of the (k-window)th resource in the same slice,
// the sliding window that keeps in-flight assignment mutations within
// window. names must be in the same order the resources were emitted.
func applyConcurrencyThrottle(resources map[string]Resource, names []string, window int) {
	if window <= 0 {
		return
	}
	for k, name := range names {
		if k < window {
			continue
		}
		r := resources[name]
		r.DependsOn = DependsOn{names[k-window]}
		resources[name] = r
	}
}
