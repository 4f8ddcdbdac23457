// Package assign expands a declarative assignment policy into the flat set
// of concrete (instance, principal, permission-set, target) tuples the
// underlying directory service models one at a time.
package assign

import (
	"fmt"

	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

// Config is the normalized input to an expansion run: everything a raw
// policy or resource document reduces to once the config loader is done
// with it.
type Config struct {
	Instance       ssotypes.InstanceRef
	Principals     []ssotypes.Principal
	PermissionSets []ssotypes.PermissionSet
	Targets        []ssotypes.Target

	// OURecursive controls whether an AWS_OU target fans out through child
	// OUs as well as direct member accounts.
	OURecursive bool
	// ExcludeOrgMgmtAccount drops the organization's management account
	// from any OU fan-out.
	ExcludeOrgMgmtAccount bool
}

// Filters holds the optional per-axis predicates applied during expansion.
// A nil filter accepts everything.
type Filters struct {
	Target        func(t ssotypes.Target) bool
	PermissionSet func(p ssotypes.PermissionSet, name string) bool
	Principal     func(p ssotypes.Principal, name string) bool
}

func (f Filters) target(t ssotypes.Target) bool {
	if f.Target == nil {
		return true
	}
	return f.Target(t)
}

func (f Filters) permissionSet(p ssotypes.PermissionSet, name string) bool {
	if f.PermissionSet == nil {
		return true
	}
	return f.PermissionSet(p, name)
}

func (f Filters) principal(p ssotypes.Principal, name string) bool {
	if f.Principal == nil {
		return true
	}
	return f.Principal(p, name)
}

// NormalizePrincipalSpecs expands a loosely typed principal specification —
// a bare id string, a two-element [type, id] slice, or a list mixing
// either — into normalized Principal values. Bare ids propagate with
// PrincipalAny so they later match against either GROUP or USER.
func NormalizePrincipalSpecs(raw interface{}) ([]ssotypes.Principal, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return []ssotypes.Principal{{Type: ssotypes.PrincipalAny, ID: v}}, nil
	case []interface{}:
		return normalizePrincipalList(v)
	case []string:
		out := make([]ssotypes.Principal, 0, len(v))
		for _, id := range v {
			out = append(out, ssotypes.Principal{Type: ssotypes.PrincipalAny, ID: id})
		}
		return out, nil
	case map[string]interface{}:
		p, err := normalizePrincipalPair(v)
		if err != nil {
			return nil, err
		}
		return []ssotypes.Principal{p}, nil
	default:
		return nil, fmt.Errorf("unrecognized principal specification of type %T", raw)
	}
}

func normalizePrincipalList(items []interface{}) ([]ssotypes.Principal, error) {
	// A flat [type, id] pair is itself a valid top-level spec; detect it
	// before treating the list as a list-of-specs.
	if len(items) == 2 {
		if s0, ok := items[0].(string); ok {
			if s0 == string(ssotypes.PrincipalGroup) || s0 == string(ssotypes.PrincipalUser) {
				if id, ok := items[1].(string); ok {
					return []ssotypes.Principal{{Type: ssotypes.PrincipalType(s0), ID: id}}, nil
				}
			}
		}
	}

	var out []ssotypes.Principal
	for _, item := range items {
		specs, err := NormalizePrincipalSpecs(item)
		if err != nil {
			return nil, err
		}
		out = append(out, specs...)
	}
	return out, nil
}

func normalizePrincipalPair(m map[string]interface{}) (ssotypes.Principal, error) {
	typ, _ := m["type"].(string)
	id, _ := m["id"].(string)
	if id == "" {
		return ssotypes.Principal{}, fmt.Errorf("principal specification missing id")
	}
	return ssotypes.Principal{Type: ssotypes.PrincipalType(typ), ID: id}, nil
}

// NormalizePermissionSetSpecs expands a loosely typed permission-set
// specification — a bare ARN/id string or a list of them — into
// PermissionSet values via ssotypes.ParsePermissionSetSpec.
func NormalizePermissionSetSpecs(raw interface{}) ([]ssotypes.PermissionSet, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		ps, err := ssotypes.ParsePermissionSetSpec(v)
		if err != nil {
			return nil, err
		}
		return []ssotypes.PermissionSet{ps}, nil
	case []interface{}:
		var out []ssotypes.PermissionSet
		for _, item := range v {
			specs, err := NormalizePermissionSetSpecs(item)
			if err != nil {
				return nil, err
			}
			out = append(out, specs...)
		}
		return out, nil
	case []string:
		var out []ssotypes.PermissionSet
		for _, s := range v {
			ps, err := ssotypes.ParsePermissionSetSpec(s)
			if err != nil {
				return nil, err
			}
			out = append(out, ps)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unrecognized permission set specification of type %T", raw)
	}
}

// NormalizeTargetSpecs expands a loosely typed target specification — a
// bare numeric/OU-id string, an explicit (type, id) pair, or a list of
// either — into Target values.
func NormalizeTargetSpecs(raw interface{}) ([]ssotypes.Target, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		t, err := ssotypes.NormalizeTargetSpec(v)
		if err != nil {
			return nil, err
		}
		return []ssotypes.Target{t}, nil
	case int, int64:
		return normalizeNumericTarget(v)
	case []interface{}:
		return normalizeTargetList(v)
	case []string:
		var out []ssotypes.Target
		for _, s := range v {
			t, err := ssotypes.NormalizeTargetSpec(s)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unrecognized target specification of type %T", raw)
	}
}

func normalizeNumericTarget(v interface{}) ([]ssotypes.Target, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	}
	id, err := ssotypes.NormalizeAccountNumber(n)
	if err != nil {
		return nil, err
	}
	return []ssotypes.Target{{Type: ssotypes.TargetAccount, ID: id}}, nil
}

func normalizeTargetList(items []interface{}) ([]ssotypes.Target, error) {
	if len(items) == 2 {
		if s0, ok := items[0].(string); ok {
			if s0 == string(ssotypes.TargetAccount) || s0 == string(ssotypes.TargetOU) {
				if id, ok := items[1].(string); ok {
					if s0 == string(ssotypes.TargetAccount) {
						padded, err := ssotypes.PadAccountID(id)
						if err != nil {
							return nil, err
						}
						id = padded
					}
					return []ssotypes.Target{{Type: ssotypes.TargetType(s0), ID: id}}, nil
				}
			}
		}
	}

	var out []ssotypes.Target
	for _, item := range items {
		specs, err := NormalizeTargetSpecs(item)
		if err != nil {
			return nil, err
		}
		out = append(out, specs...)
	}
	return out, nil
}
