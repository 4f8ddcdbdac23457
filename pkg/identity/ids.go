// Package identity resolves ids and names for principals, permission sets,
// and accounts, memoizing per-resolver-instance, and discovers which SSO
// instance is in play.
package identity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"

	"github.com/praetorian-inc/ssoctl/internal/awsclients"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

// Ids discovers and memoizes the active SSO instance, wrapping
// ssoadmin:ListInstances. Callers sharing an Ids object see identical
// answers, which is the point: it replaces the source's process-wide
// singleton with an explicit object the caller controls the lifetime of.
type Ids struct {
	Admin    awsclients.SSOAdminClient
	resolved *ssotypes.InstanceRef
}

// NewIds builds an unresolved Ids bound to the given instance/identity
// store if the caller already knows them; pass empty strings to force a
// ListInstances lookup on first use.
func NewIds(admin awsclients.SSOAdminClient, instanceArn, identityStoreID string) *Ids {
	ids := &Ids{Admin: admin}
	if instanceArn != "" || identityStoreID != "" {
		ids.resolved = &ssotypes.InstanceRef{InstanceArn: instanceArn, IdentityStoreID: identityStoreID}
	}
	return ids
}

// Resolve returns the active instance, calling ListInstances and validating
// against any caller-supplied instance/identity-store hint exactly once.
func (ids *Ids) Resolve(ctx context.Context) (ssotypes.InstanceRef, error) {
	if ids.resolved != nil && ids.resolved.InstanceArn != "" && ids.resolved.IdentityStoreID != "" {
		return *ids.resolved, nil
	}

	var instances []ssoadmintypesInstance
	var nextToken *string
	for {
		resp, err := ids.Admin.ListInstances(ctx, &ssoadmin.ListInstancesInput{NextToken: nextToken})
		if err != nil {
			return ssotypes.InstanceRef{}, ssoerr.Wrap(ssoerr.KindServiceError, err, "listing SSO instances")
		}
		for _, inst := range resp.Instances {
			instances = append(instances, ssoadmintypesInstance{
				InstanceArn:     aws.ToString(inst.InstanceArn),
				IdentityStoreID: aws.ToString(inst.IdentityStoreId),
			})
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		nextToken = resp.NextToken
	}

	hintArn, hintStore := "", ""
	if ids.resolved != nil {
		hintArn, hintStore = ids.resolved.InstanceArn, ids.resolved.IdentityStoreID
	}

	var matches []ssoadmintypesInstance
	for _, inst := range instances {
		if hintArn != "" && inst.InstanceArn != hintArn {
			continue
		}
		if hintStore != "" && inst.IdentityStoreID != hintStore {
			continue
		}
		matches = append(matches, inst)
	}

	switch len(matches) {
	case 0:
		return ssotypes.InstanceRef{}, ssoerr.New(ssoerr.KindInvalidSSOConfig, "no SSO instance matched the supplied instance/identity-store filter")
	case 1:
		ids.resolved = &ssotypes.InstanceRef{InstanceArn: matches[0].InstanceArn, IdentityStoreID: matches[0].IdentityStoreID}
		return *ids.resolved, nil
	default:
		var arns []string
		for _, m := range matches {
			arns = append(arns, m.InstanceArn)
		}
		return ssotypes.InstanceRef{}, ssoerr.New(ssoerr.KindInvalidSSOConfig, "multiple SSO instances matched; candidates: %v", arns)
	}
}

// ssoadmintypesInstance avoids importing ssoadmin/types solely for this
// internal pair; ListInstances's instance element only ever needs these two
// fields here.
type ssoadmintypesInstance struct {
	InstanceArn     string
	IdentityStoreID string
}

func (i ssoadmintypesInstance) String() string {
	return fmt.Sprintf("%s (%s)", i.InstanceArn, i.IdentityStoreID)
}
