package planner

import (
	"fmt"

	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

// referenceResolver rewrites a PermissionSet reference into a CloudFormation
// intrinsic: GetAtt when the permission set resource and its consumer live
// in the same template, Ref when the reference crosses a child-stack
// boundary. It also accumulates the set of parameters the parent must
// expose for values it does not itself define, the union of references in
// assignments and child-template parameters.
type referenceResolver struct {
	instanceArn string
	// inlineLogicalName maps an INLINE_RESOURCE permission set's Name to its
	// rendered template resource's logical name.
	inlineLogicalName map[string]string
	// crossStackParams is the accumulated set of parameter names the parent
	// must carry: paramName -> the parent-side value expression to hand the
	// child stack (a GetAtt for a permission set the parent itself defines,
	// or nil for a bare pass-through parameter the parent exposes as new).
	crossStackParams map[string]interface{}
}

func newReferenceResolver(instanceArn string) *referenceResolver {
	return &referenceResolver{
		instanceArn:       instanceArn,
		inlineLogicalName: map[string]string{},
		crossStackParams:  map[string]interface{}{},
	}
}

func getAtt(logicalName, attr string) map[string]interface{} {
	return map[string]interface{}{"Fn::GetAtt": []string{logicalName, attr}}
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"Ref": name}
}

// crossStackParamName derives the parameter name a child stack exposes for
// a permission-set resource's ARN crossing the stack boundary.
func crossStackParamName(logicalName string) string {
	return logicalName + "Arn"
}

// permissionSetArnValue renders the value an assignment resource's
// PermissionSetArn property should carry for ps: a literal ARN for the
// three ARN-shaped modes, or the appropriate GetAtt/Ref intrinsic for
// INLINE_RESOURCE and TEMPLATE_REF. crossStack is true
// when the assignment consuming this value lives in a child stack rather
// than the parent template.
func (rr *referenceResolver) permissionSetArnValue(ps ssotypes.PermissionSet, crossStack bool) (interface{}, error) {
	switch ps.Mode {
	case ssotypes.PermissionSetArnLiteral, ssotypes.PermissionSetInstanceScoped, ssotypes.PermissionSetBareID:
		return ps.Resolve(rr.instanceArn)
	case ssotypes.PermissionSetInlineResource:
		logicalName, ok := rr.inlineLogicalName[ps.Inline.Name]
		if !ok {
			return nil, fmt.Errorf("inline permission set %q was not registered before reference resolution", ps.Inline.Name)
		}
		return rr.resolveAcrossBoundary(logicalName, crossStack), nil
	case ssotypes.PermissionSetTemplateRef:
		if logicalName, ok := rr.inlineLogicalName[ps.TemplateRef]; ok {
			return rr.resolveAcrossBoundary(logicalName, crossStack), nil
		}
		rr.crossStackParams[ps.TemplateRef] = nil
		return ref(ps.TemplateRef), nil
	default:
		return nil, fmt.Errorf("permission set in unrecognized mode %q", ps.Mode)
	}
}

func (rr *referenceResolver) resolveAcrossBoundary(logicalName string, crossStack bool) interface{} {
	if !crossStack {
		return getAtt(logicalName, "PermissionSetArn")
	}
	paramName := crossStackParamName(logicalName)
	rr.crossStackParams[paramName] = getAtt(logicalName, "PermissionSetArn")
	return ref(paramName)
}

// detectCycles rejects a reference graph in which a resource's GetAtt/Ref
// properties (directly or transitively) resolve back to itself; such a
// template could never be created.
func detectCycles(resources map[string]Resource) error {
	graph := map[string][]string{}
	for name, res := range resources {
		edges := map[string]bool{}
		collectReferences(res.Properties, resources, edges)
		for _, dep := range res.DependsOn {
			if _, ok := resources[dep]; ok {
				edges[dep] = true
			}
		}
		for dep := range edges {
			graph[name] = append(graph[name], dep)
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var visit func(node string, stack []string) error
	visit = func(node string, stack []string) error {
		color[node] = gray
		for _, next := range graph[node] {
			switch color[next] {
			case gray:
				return fmt.Errorf("template reference cycle detected: %v -> %s", append(stack, node), next)
			case white:
				if err := visit(next, append(stack, node)); err != nil {
					return err
				}
			}
		}
		color[node] = black
		return nil
	}

	for name := range resources {
		if color[name] == white {
			if err := visit(name, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func collectReferences(v interface{}, resources map[string]Resource, out map[string]bool) {
	switch val := v.(type) {
	case map[string]interface{}:
		if atts, ok := val["Fn::GetAtt"]; ok {
			if pair, ok := atts.([]string); ok && len(pair) > 0 {
				if _, known := resources[pair[0]]; known {
					out[pair[0]] = true
				}
			}
		}
		if r, ok := val["Ref"]; ok {
			if name, ok := r.(string); ok {
				if _, known := resources[name]; known {
					out[name] = true
				}
			}
		}
		for _, nested := range val {
			collectReferences(nested, resources, out)
		}
	case []string:
		for _, s := range val {
			if _, known := resources[s]; known {
				out[s] = true
			}
		}
	case []interface{}:
		for _, nested := range val {
			collectReferences(nested, resources, out)
		}
	}
}
