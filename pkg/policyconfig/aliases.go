package policyconfig

import "github.com/praetorian-inc/ssoctl/pkg/ssoerr"

// aliasGroup is one logical field's accepted key spellings. A document
// supplying more than one of a group's keys is rejected, since that is
// almost always a typo rather than an intentional override.
type aliasGroup struct {
	canonical string
	keys      []string
}

// aliasTable centralizes every accepted key spelling for both the
// policy-document and resource-properties forms.
var aliasTable = []aliasGroup{
	{canonical: "instance", keys: []string{"instance", "Instance", "InstanceArn", "InstanceARN", "instance_arn"}},
	{canonical: "identity_store_id", keys: []string{"identity_store_id", "IdentityStoreId", "IdentityStoreID"}},
	{canonical: "principals", keys: []string{"principals", "Principals", "principal", "Principal", "groups", "Groups", "Group", "users", "Users", "User"}},
	{canonical: "permission_sets", keys: []string{"permission_sets", "PermissionSets", "permission_set", "PermissionSet"}},
	{canonical: "targets", keys: []string{"targets", "Targets", "target", "Target", "accounts", "Accounts", "account", "Account", "ous", "OUs", "ou", "OU"}},
	{canonical: "ou_recursive", keys: []string{"ou_recursive", "OuRecursive", "OURecursive"}},
	{canonical: "exclude_org_mgmt_account", keys: []string{"exclude_org_mgmt_account", "ExcludeOrgMgmtAccount", "ExcludeOrganizationMgmtAccount"}},
}

// resolveAliases walks doc and returns a map keyed by each group's
// canonical name, erroring if a document supplies more than one spelling of
// the same logical field.
func resolveAliases(doc map[string]interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	for _, group := range aliasTable {
		var found []string
		var value interface{}
		for _, key := range group.keys {
			if v, ok := doc[key]; ok {
				found = append(found, key)
				value = v
			}
		}
		if len(found) > 1 {
			return nil, ssoerr.New(ssoerr.KindInvalidSSOConfig, "config supplies more than one spelling of %q: %v", group.canonical, found)
		}
		if len(found) == 1 {
			out[group.canonical] = value
		}
	}
	return out, nil
}
