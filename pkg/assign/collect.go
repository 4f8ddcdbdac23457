package assign

import (
	"context"

	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

// ResourceCollection is the drained, deduplicated form of a Resolve run
// that the template planner consumes: every assignment plus the distinct
// set of inline-resource permission sets they reference.
type ResourceCollection struct {
	Assignments    []ssotypes.Assignment
	PermissionSets []ssotypes.PermissionSet
	NumResources   int
}

// Collect drains items into a ResourceCollection, stopping at the first
// error. Inline-resource permission sets are deduplicated by name; every
// other mode contributes zero resources of its own (the planner resolves
// them to an existing ARN instead).
func Collect(ctx context.Context, items <-chan Item) (*ResourceCollection, error) {
	rc := &ResourceCollection{}
	seenInline := map[string]bool{}

	for item := range items {
		if item.Err != nil {
			return nil, item.Err
		}
		rc.Assignments = append(rc.Assignments, item.Assignment)
		rc.NumResources++

		ps := item.Assignment.PermissionSet
		if ps.Mode == ssotypes.PermissionSetInlineResource && ps.Inline != nil && !seenInline[ps.Inline.Name] {
			seenInline[ps.Inline.Name] = true
			rc.PermissionSets = append(rc.PermissionSets, ps)
			rc.NumResources++
		}
	}

	select {
	case <-ctx.Done():
		return rc, ctx.Err()
	default:
	}
	return rc, nil
}
