package planner

// GenerationConfig controls how Generate shards assignments into child
// stacks and throttles concurrent mutations within each stack.
type GenerationConfig struct {
	// MaxResourcesPerTemplate is the hard cap on resources in any single
	// emitted template. Default 500.
	MaxResourcesPerTemplate int
	// MaxConcurrentAssignments is the sliding DependsOn window size per
	// stack. Default 20.
	MaxConcurrentAssignments int
	// NumChildStacks fixes the child-stack count. Nil means "compute";
	// a value of 0 means "inline" (no child stacks at all).
	NumChildStacks *int
	// MaxAssignmentsAllocation is a lower bound on child-stack count sized
	// for future growth, in units of assignment count. Nil means no bound.
	MaxAssignmentsAllocation *int
	// DefaultSessionDuration is applied to permission-set resources missing
	// SessionDuration. Empty means none.
	DefaultSessionDuration string
	// ResourcePrefix is prepended to every emitted resource's logical name
	// ("<prefix>Assignment...", "<prefix>PermSet...").
	ResourcePrefix string
}

// DefaultGenerationConfig returns the documented defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxResourcesPerTemplate:  500,
		MaxConcurrentAssignments: 20,
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// effectiveNumChildStacks computes "num_child_stacks = max(ceil(
// max_assignments_allocation / max_resources_per_template), explicit
// num_child_stacks) when either is set, else ceil(num_resources /
// max_resources_per_template)", returning (count, explicit) where explicit
// reports whether the caller (or MaxAssignmentsAllocation) pinned a value,
// as opposed to the "auto, compute from num_resources" default used only
// when neither field is set.
func (g GenerationConfig) effectiveNumChildStacks(numResources int) (int, bool) {
	if g.NumChildStacks == nil && g.MaxAssignmentsAllocation == nil {
		return ceilDiv(numResources, g.MaxResourcesPerTemplate), false
	}

	fromAllocation := 0
	if g.MaxAssignmentsAllocation != nil {
		fromAllocation = ceilDiv(*g.MaxAssignmentsAllocation, g.MaxResourcesPerTemplate)
	}
	fromExplicit := 0
	if g.NumChildStacks != nil {
		fromExplicit = *g.NumChildStacks
	}
	if fromAllocation > fromExplicit {
		return fromAllocation, true
	}
	return fromExplicit, true
}
