package policyconfig

// resourceSchema is the JSON schema the resource-properties ("macro") form
// of a config must satisfy before loading. It lists every accepted key
// spelling; additionalProperties: false makes a typo'd key a validation
// error instead of a silently ignored field.
const resourceSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "Instance":              {"type": "string"},
    "InstanceArn":            {"type": "string"},
    "InstanceARN":            {"type": "string"},
    "IdentityStoreId":        {"type": "string"},
    "IdentityStoreID":        {"type": "string"},
    "Principals":             {},
    "Principal":              {},
    "Groups":                 {},
    "Group":                  {},
    "Users":                  {},
    "User":                   {},
    "PermissionSets":         {},
    "PermissionSet":          {},
    "Targets":                {},
    "Target":                 {},
    "Accounts":               {},
    "Account":                {},
    "OUs":                    {},
    "OU":                     {},
    "OuRecursive":            {"type": "boolean"},
    "OURecursive":            {"type": "boolean"},
    "ExcludeOrgMgmtAccount":  {"type": "boolean"},
    "ExcludeOrganizationMgmtAccount": {"type": "boolean"}
  },
  "additionalProperties": false
}`
