package planner

import (
	"encoding/json"
	"regexp"

	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

var barePolicyNamePattern = regexp.MustCompile(`^[\w+=,.@-]+$`)

// permissionSetResource renders one AWS::SSO::PermissionSet resource from
// an INLINE_RESOURCE-mode PermissionSet: InstanceArn is injected if absent,
// SessionDuration defaults from the generation config if the resource omits
// it, any structured InlinePolicy is JSON-stringified, and ManagedPolicies
// entries given as bare policy names are normalized to full ARNs.
func permissionSetResource(ps ssotypes.PermissionSet, instanceArn, defaultSessionDuration string) Resource {
	res := ps.Inline
	props := map[string]interface{}{
		"InstanceArn": instanceArn,
		"Name":        res.Name,
	}
	if res.Description != "" {
		props["Description"] = res.Description
	}
	duration := res.SessionDuration
	if duration == "" {
		duration = defaultSessionDuration
	}
	if duration != "" {
		props["SessionDuration"] = duration
	}
	if res.RelayState != "" {
		props["RelayState"] = res.RelayState
	}
	if len(res.Tags) > 0 {
		var tags []map[string]string
		for k, v := range res.Tags {
			tags = append(tags, map[string]string{"Key": k, "Value": v})
		}
		props["Tags"] = tags
	}
	if res.InlinePolicy != nil {
		props["InlinePolicy"] = stringifyInlinePolicy(res.InlinePolicy)
	}
	if len(res.ManagedPolicies) > 0 {
		normalized := make([]string, len(res.ManagedPolicies))
		for i, p := range res.ManagedPolicies {
			normalized[i] = normalizeManagedPolicy(p)
		}
		props["ManagedPolicies"] = normalized
	}

	return Resource{Type: "AWS::SSO::PermissionSet", Properties: props}
}

// stringifyInlinePolicy JSON-stringifies a structured InlinePolicy object;
// a value that is already a string (the caller pre-stringified it) passes
// through unchanged.
func stringifyInlinePolicy(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// normalizeManagedPolicy turns a bare policy name into its full
// aws-managed-policy ARN; anything already ARN-shaped passes through.
func normalizeManagedPolicy(p string) string {
	if len(p) > 4 && p[:4] == "arn:" {
		return p
	}
	if barePolicyNamePattern.MatchString(p) {
		return "arn:aws:iam::aws:policy/" + p
	}
	return p
}
