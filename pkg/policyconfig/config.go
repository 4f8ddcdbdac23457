// Package policyconfig loads a declarative assignment policy — either a
// free-form policy document or a CloudFormation resource-properties
// document — into the normalized assign.Config every downstream component
// consumes.
package policyconfig

import (
	"context"
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/praetorian-inc/ssoctl/pkg/assign"
	"github.com/praetorian-inc/ssoctl/pkg/identity"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

// Load parses a free-form policy document (YAML or JSON; yaml.v3 parses
// both) into a Config, applying alias resolution. JSON-schema validation is
// reserved for the resource form.
func Load(raw []byte) (*assign.Config, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, ssoerr.Wrap(ssoerr.KindInvalidSSOConfig, err, "parsing policy document")
	}
	return fromAliasedDoc(doc)
}

// LoadResource parses a CloudFormation resource-properties ("macro") form
// document, validating it against resourceSchema first.
func LoadResource(raw []byte) (*assign.Config, error) {
	schemaLoader := gojsonschema.NewStringLoader(resourceSchema)
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, ssoerr.Wrap(ssoerr.KindInvalidSSOConfig, err, "validating resource document against schema")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, ssoerr.New(ssoerr.KindInvalidSSOConfig, "resource document failed schema validation: %v", msgs)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, ssoerr.Wrap(ssoerr.KindInvalidSSOConfig, err, "parsing resource document")
	}
	return fromAliasedDoc(doc)
}

func fromAliasedDoc(doc map[string]interface{}) (*assign.Config, error) {
	aliased, err := resolveAliases(doc)
	if err != nil {
		return nil, err
	}

	cfg := &assign.Config{}

	if v, ok := aliased["instance"]; ok {
		s, _ := v.(string)
		cfg.Instance.InstanceArn = s
	}
	if v, ok := aliased["identity_store_id"]; ok {
		s, _ := v.(string)
		cfg.Instance.IdentityStoreID = s
	}

	if v, ok := aliased["principals"]; ok {
		principals, err := assign.NormalizePrincipalSpecs(v)
		if err != nil {
			return nil, ssoerr.Wrap(ssoerr.KindInvalidSSOConfig, err, "parsing principals")
		}
		cfg.Principals = principals
	}

	if v, ok := aliased["permission_sets"]; ok {
		permissionSets, err := assign.NormalizePermissionSetSpecs(v)
		if err != nil {
			return nil, ssoerr.Wrap(ssoerr.KindInvalidSSOConfig, err, "parsing permission sets")
		}
		cfg.PermissionSets = permissionSets
	}

	if v, ok := aliased["targets"]; ok {
		targets, err := assign.NormalizeTargetSpecs(v)
		if err != nil {
			return nil, ssoerr.Wrap(ssoerr.KindInvalidSSOConfig, err, "parsing targets")
		}
		cfg.Targets = targets
	}

	if v, ok := aliased["ou_recursive"]; ok {
		b, _ := v.(bool)
		cfg.OURecursive = b
	}
	if v, ok := aliased["exclude_org_mgmt_account"]; ok {
		b, _ := v.(bool)
		cfg.ExcludeOrgMgmtAccount = b
	}

	return cfg, nil
}

// Validate checks that cfg carries a non-empty instance and at least one
// principal, permission set, and target. When cfg.Instance.InstanceArn is
// empty it is filled in from ids, the active-instance resolver.
func Validate(ctx context.Context, cfg *assign.Config, ids *identity.Ids) error {
	if cfg.Instance.InstanceArn == "" {
		resolved, err := ids.Resolve(ctx)
		if err != nil {
			return err
		}
		cfg.Instance = resolved
	} else if err := ssotypes.ValidateInstanceArn(cfg.Instance.InstanceArn); err != nil {
		return ssoerr.Wrap(ssoerr.KindInvalidSSOConfig, err, "validating configured instance")
	}

	if len(cfg.Principals) == 0 {
		return ssoerr.New(ssoerr.KindInvalidSSOConfig, "config must supply at least one principal")
	}
	if len(cfg.PermissionSets) == 0 {
		return ssoerr.New(ssoerr.KindInvalidSSOConfig, "config must supply at least one permission set")
	}
	if len(cfg.Targets) == 0 {
		return ssoerr.New(ssoerr.KindInvalidSSOConfig, "config must supply at least one target")
	}
	return nil
}
