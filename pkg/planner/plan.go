package planner

import (
	"fmt"

	"github.com/praetorian-inc/ssoctl/pkg/assign"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

// Generate builds the template hierarchy for rc under cfg. instanceArn is
// the active SSO instance's ARN, used to resolve ARN-shaped permission sets
// and to post-process inline AWS::SSO::PermissionSet resources.
// existingParentResources is the count of resources already present in a
// user-provided base template the parent will be merged into, consumed
// when checking the per-template resource cap.
func Generate(rc *assign.ResourceCollection, cfg GenerationConfig, instanceArn string, existingParentResources int) (*Plan, error) {
	if cfg.MaxResourcesPerTemplate <= 0 {
		cfg.MaxResourcesPerTemplate = 500
	}
	if cfg.MaxConcurrentAssignments <= 0 {
		cfg.MaxConcurrentAssignments = 20
	}

	resolver := newReferenceResolver(instanceArn)
	permSetResources, err := renderPermissionSetResources(rc.PermissionSets, cfg, resolver)
	if err != nil {
		return nil, err
	}

	explicitSharding := cfg.NumChildStacks != nil || cfg.MaxAssignmentsAllocation != nil
	numAssignments := len(rc.Assignments)

	if !explicitSharding {
		total := existingParentResources + numAssignments + len(permSetResources)
		if total > cfg.MaxResourcesPerTemplate {
			return nil, ssoerr.New(ssoerr.KindInvalidSSOConfig,
				"assignment set needs %d resources, over the %d-resource template cap, and num_child_stacks was not specified; set num_child_stacks to shard",
				total, cfg.MaxResourcesPerTemplate)
		}
		return generateInline(rc, cfg, resolver, permSetResources)
	}

	numChildStacks, _ := cfg.effectiveNumChildStacks(numAssignments)
	if numChildStacks == 0 {
		total := existingParentResources + numAssignments + len(permSetResources)
		if total > cfg.MaxResourcesPerTemplate {
			return nil, ssoerr.New(ssoerr.KindInvalidSSOConfig,
				"num_child_stacks is 0 (inline) but the assignment set needs %d resources, over the %d-resource template cap",
				total, cfg.MaxResourcesPerTemplate)
		}
		return generateInline(rc, cfg, resolver, permSetResources)
	}

	return generateSharded(rc, cfg, resolver, permSetResources, numChildStacks, existingParentResources)
}

func renderPermissionSetResources(permSets []ssotypes.PermissionSet, cfg GenerationConfig, resolver *referenceResolver) (map[string]Resource, error) {
	out := map[string]Resource{}
	for _, ps := range permSets {
		if ps.Mode != ssotypes.PermissionSetInlineResource {
			continue
		}
		name, ok := ps.ResourceName(cfg.ResourcePrefix)
		if !ok {
			continue
		}
		out[name] = permissionSetResource(ps, resolver.instanceArn, cfg.DefaultSessionDuration)
		resolver.inlineLogicalName[ps.Inline.Name] = name
	}
	return out, nil
}

func assignmentResource(a ssotypes.Assignment, cfg GenerationConfig, resolver *referenceResolver, crossStack bool) (string, Resource, error) {
	name := a.ResourceName(cfg.ResourcePrefix)
	arnValue, err := resolver.permissionSetArnValue(a.PermissionSet, crossStack)
	if err != nil {
		return "", Resource{}, fmt.Errorf("assignment %s: %w", name, err)
	}
	props := map[string]interface{}{
		"InstanceArn":      a.Instance.InstanceArn,
		"PrincipalType":    string(a.Principal.Type),
		"PrincipalId":      a.Principal.ID,
		"PermissionSetArn": arnValue,
		"TargetId":         a.Target.ID,
		"TargetType":       string(a.Target.Type),
	}
	return name, Resource{Type: "AWS::SSO::Assignment", Properties: props}, nil
}

func generateInline(rc *assign.ResourceCollection, cfg GenerationConfig, resolver *referenceResolver, permSetResources map[string]Resource) (*Plan, error) {
	tmpl := NewTemplate()
	for name, res := range permSetResources {
		tmpl.Resources[name] = res
	}

	names := make([]string, 0, len(rc.Assignments))
	for _, a := range rc.Assignments {
		name, res, err := assignmentResource(a, cfg, resolver, false)
		if err != nil {
			return nil, err
		}
		tmpl.Resources[name] = res
		names = append(names, name)
	}
	applyConcurrencyThrottle(tmpl.Resources, names, cfg.MaxConcurrentAssignments)

	for paramName, source := range resolver.crossStackParams {
		if source != nil {
			continue
		}
		if tmpl.Parameters == nil {
			tmpl.Parameters = map[string]Parameter{}
		}
		tmpl.Parameters[paramName] = Parameter{Type: "String"}
	}

	if err := detectCycles(tmpl.Resources); err != nil {
		return nil, ssoerr.Wrap(ssoerr.KindInvalidSSOConfig, err, "rejecting template")
	}

	return &Plan{Parent: tmpl}, nil
}

func generateSharded(rc *assign.ResourceCollection, cfg GenerationConfig, resolver *referenceResolver, permSetResources map[string]Resource, numChildStacks, existingParentResources int) (*Plan, error) {
	buckets := shardAssignments(rc.Assignments, numChildStacks)

	parent := NewTemplate()
	for name, res := range permSetResources {
		parent.Resources[name] = res
	}

	plan := &Plan{Parent: parent, ShardOf: map[int][]string{}}

	var prevStackName string
	for idx, bucket := range buckets {
		child := NewTemplate()
		names := make([]string, 0, len(bucket))
		for _, a := range bucket {
			name, res, err := assignmentResource(a, cfg, resolver, true)
			if err != nil {
				return nil, err
			}
			child.Resources[name] = res
			names = append(names, name)
		}
		applyConcurrencyThrottle(child.Resources, names, cfg.MaxConcurrentAssignments)
		if len(child.Resources) > cfg.MaxResourcesPerTemplate {
			return nil, ssoerr.New(ssoerr.KindInvalidSSOConfig, "child stack %d needs %d resources, over the %d-resource template cap", idx, len(child.Resources), cfg.MaxResourcesPerTemplate)
		}
		if err := detectCycles(child.Resources); err != nil {
			return nil, ssoerr.Wrap(ssoerr.KindInvalidSSOConfig, err, "rejecting child template %d", idx)
		}

		child.Parameters = childParameters(resolver, names, child.Resources)

		stackName := childStackName(cfg.ResourcePrefix, idx)
		stackRes := Resource{
			Type: "AWS::CloudFormation::Stack",
			Properties: map[string]interface{}{
				"Parameters": stackParameterValues(resolver, child.Parameters),
			},
		}
		if prevStackName != "" {
			stackRes.DependsOn = DependsOn{prevStackName}
		}
		parent.Resources[stackName] = stackRes

		plan.Children = append(plan.Children, child)
		plan.ChildNames = append(plan.ChildNames, stackName)
		plan.ShardOf[idx] = names
		prevStackName = stackName
	}

	for paramName, source := range resolver.crossStackParams {
		if source != nil {
			continue // sourced from a GetAtt the parent itself computes, not a new parameter
		}
		if parent.Parameters == nil {
			parent.Parameters = map[string]Parameter{}
		}
		if _, ok := parent.Parameters[paramName]; !ok {
			parent.Parameters[paramName] = Parameter{Type: "String"}
		}
	}

	if existingParentResources+len(parent.Resources) > cfg.MaxResourcesPerTemplate {
		return nil, ssoerr.New(ssoerr.KindInvalidSSOConfig, "parent template needs %d resources, over the %d-resource template cap", existingParentResources+len(parent.Resources), cfg.MaxResourcesPerTemplate)
	}
	if err := detectCycles(parent.Resources); err != nil {
		return nil, ssoerr.Wrap(ssoerr.KindInvalidSSOConfig, err, "rejecting parent template")
	}

	return plan, nil
}

// childParameters declares a String parameter in the child template for
// every cross-stack reference its resources ended up using, so the nested
// stack has somewhere to receive the value the parent passes in.
func childParameters(resolver *referenceResolver, childResourceNames []string, childResources map[string]Resource) map[string]Parameter {
	params := map[string]Parameter{}
	for paramName := range resolver.crossStackParams {
		for _, name := range childResourceNames {
			if referencesParam(childResources[name].Properties, paramName) {
				params[paramName] = Parameter{Type: "String"}
				break
			}
		}
	}
	return params
}

func referencesParam(v interface{}, paramName string) bool {
	switch val := v.(type) {
	case map[string]interface{}:
		if r, ok := val["Ref"]; ok {
			if name, ok := r.(string); ok && name == paramName {
				return true
			}
		}
		for _, nested := range val {
			if referencesParam(nested, paramName) {
				return true
			}
		}
	case []interface{}:
		for _, nested := range val {
			if referencesParam(nested, paramName) {
				return true
			}
		}
	}
	return false
}

// stackParameterValues builds the Parameters property of a nested
// AWS::CloudFormation::Stack resource: for every parameter the child
// declares, the value the parent passes down (a GetAtt against its own
// permission-set resource, or a Ref against a parameter the parent itself
// exposes).
func stackParameterValues(resolver *referenceResolver, childParams map[string]Parameter) map[string]interface{} {
	out := map[string]interface{}{}
	for name := range childParams {
		if v, ok := resolver.crossStackParams[name]; ok && v != nil {
			out[name] = v
			continue
		}
		out[name] = ref(name)
	}
	return out
}
