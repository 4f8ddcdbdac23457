package identity

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	identitystoretypes "github.com/aws/aws-sdk-go-v2/service/identitystore/types"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	organizationstypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"

	"github.com/praetorian-inc/ssoctl/internal/awsclients"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
)

// Account is the minimal account descriptor the OU traversal and account
// enumeration produce.
type Account struct {
	ID   string
	Name string
}

// Resolver performs per-process memoized id/name lookups and OU traversal.
// A Resolver's caches are private to it and must not be shared across
// concurrent runs without external synchronization.
type Resolver struct {
	IdentityStore awsclients.IdentityStoreClient
	Organizations awsclients.OrganizationsClient
	SSOAdmin      awsclients.SSOAdminClient
	Ids           *Ids

	cache map[string]interface{} // namespaced key -> value or cached error
}

// NewResolver builds a Resolver with an empty cache.
func NewResolver(idStore awsclients.IdentityStoreClient, orgs awsclients.OrganizationsClient, admin awsclients.SSOAdminClient, ids *Ids) *Resolver {
	return &Resolver{IdentityStore: idStore, Organizations: orgs, SSOAdmin: admin, Ids: ids, cache: map[string]interface{}{}}
}

func (r *Resolver) cacheKey(kind, axis, value string) string {
	return kind + "#" + axis + "#" + value
}

// LookupGroupByID resolves a group id to its display name, memoizing both
// hits and ResourceNotFoundException misses so a missing id is never
// re-queried.
func (r *Resolver) LookupGroupByID(ctx context.Context, groupID string) (string, error) {
	key := r.cacheKey("group", "id", groupID)
	if v, ok := r.cache[key]; ok {
		if err, isErr := v.(error); isErr {
			return "", err
		}
		return v.(string), nil
	}

	instance, err := r.Ids.Resolve(ctx)
	if err != nil {
		return "", err
	}
	resp, err := r.IdentityStore.DescribeGroup(ctx, &identitystore.DescribeGroupInput{
		IdentityStoreId: aws.String(instance.IdentityStoreID),
		GroupId:         aws.String(groupID),
	})
	if err != nil {
		wrapped := r.wrapLookupError(err, "group", groupID)
		r.cache[key] = wrapped
		return "", wrapped
	}
	name := aws.ToString(resp.DisplayName)
	r.cache[key] = name
	return name, nil
}

// LookupUserByID resolves a user id to its display name, same caching
// policy as LookupGroupByID.
func (r *Resolver) LookupUserByID(ctx context.Context, userID string) (string, error) {
	key := r.cacheKey("user", "id", userID)
	if v, ok := r.cache[key]; ok {
		if err, isErr := v.(error); isErr {
			return "", err
		}
		return v.(string), nil
	}

	instance, err := r.Ids.Resolve(ctx)
	if err != nil {
		return "", err
	}
	resp, err := r.IdentityStore.DescribeUser(ctx, &identitystore.DescribeUserInput{
		IdentityStoreId: aws.String(instance.IdentityStoreID),
		UserId:          aws.String(userID),
	})
	if err != nil {
		wrapped := r.wrapLookupError(err, "user", userID)
		r.cache[key] = wrapped
		return "", wrapped
	}
	name := aws.ToString(resp.UserName)
	r.cache[key] = name
	return name, nil
}

// LookupPermissionSetByID resolves a permission-set ARN to its friendly
// name, same caching policy.
func (r *Resolver) LookupPermissionSetByID(ctx context.Context, permissionSetArn string) (string, error) {
	key := r.cacheKey("permissionset", "id", permissionSetArn)
	if v, ok := r.cache[key]; ok {
		if err, isErr := v.(error); isErr {
			return "", err
		}
		return v.(string), nil
	}

	instance, err := r.Ids.Resolve(ctx)
	if err != nil {
		return "", err
	}
	resp, err := r.SSOAdmin.DescribePermissionSet(ctx, &ssoadmin.DescribePermissionSetInput{
		InstanceArn:      aws.String(instance.InstanceArn),
		PermissionSetArn: aws.String(permissionSetArn),
	})
	if err != nil {
		wrapped := r.wrapLookupError(err, "permission set", permissionSetArn)
		r.cache[key] = wrapped
		return "", wrapped
	}
	name := aws.ToString(resp.PermissionSet.Name)
	r.cache[key] = name
	return name, nil
}

// LookupAccountByID resolves an account id to its display name via
// Organizations:DescribeAccount, same caching policy.
func (r *Resolver) LookupAccountByID(ctx context.Context, accountID string) (string, error) {
	key := r.cacheKey("account", "id", accountID)
	if v, ok := r.cache[key]; ok {
		if err, isErr := v.(error); isErr {
			return "", err
		}
		return v.(string), nil
	}

	resp, err := r.Organizations.DescribeAccount(ctx, &organizations.DescribeAccountInput{AccountId: aws.String(accountID)})
	if err != nil {
		wrapped := r.wrapLookupError(err, "account", accountID)
		r.cache[key] = wrapped
		return "", wrapped
	}
	name := aws.ToString(resp.Account.Name)
	r.cache[key] = name
	return name, nil
}

func (r *Resolver) wrapLookupError(err error, kind, id string) error {
	if isResourceNotFound(err) {
		return ssoerr.Wrap(ssoerr.KindLookupError, err, "%s %q not found", kind, id)
	}
	return ssoerr.Wrap(ssoerr.KindServiceError, err, "looking up %s %q", kind, id)
}

func isResourceNotFound(err error) bool {
	var idStoreNotFound *identitystoretypes.ResourceNotFoundException
	if errors.As(err, &idStoreNotFound) {
		return true
	}
	var orgNotFound *organizationstypes.AccountNotFoundException
	if errors.As(err, &orgNotFound) {
		return true
	}
	return false
}

// LookupAccountsForOU produces the account descriptors under ou. Direct
// accounts and, when recursive, child OUs are each cached independently
// under "ou#accounts#<ou>" and "ou#children#<ou>" so repeated traversals of a
// shared subtree reuse paginator results. When excludeOrgMgmtAcct is true,
// the organization's management account id is fetched once (also cached)
// and filtered out of every emitted account.
func (r *Resolver) LookupAccountsForOU(ctx context.Context, ou string, recursive bool, excludeOrgMgmtAcct bool) ([]Account, error) {
	var mgmtAccountID string
	if excludeOrgMgmtAcct {
		id, err := r.managementAccountID(ctx)
		if err != nil {
			return nil, err
		}
		mgmtAccountID = id
	}

	var out []Account
	var walk func(parent string) error
	walk = func(parent string) error {
		direct, err := r.directAccountsForParent(ctx, parent)
		if err != nil {
			return err
		}
		for _, a := range direct {
			if mgmtAccountID != "" && a.ID == mgmtAccountID {
				continue
			}
			out = append(out, a)
		}

		if !recursive {
			return nil
		}

		children, err := r.childOUsForParent(ctx, parent)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(ou); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) managementAccountID(ctx context.Context) (string, error) {
	key := "org#management_account_id"
	if v, ok := r.cache[key]; ok {
		return v.(string), nil
	}
	resp, err := r.Organizations.DescribeOrganization(ctx, &organizations.DescribeOrganizationInput{})
	if err != nil {
		return "", ssoerr.Wrap(ssoerr.KindServiceError, err, "describing organization")
	}
	id := aws.ToString(resp.Organization.MasterAccountId)
	r.cache[key] = id
	return id, nil
}

func (r *Resolver) directAccountsForParent(ctx context.Context, parent string) ([]Account, error) {
	key := r.cacheKey("ou", "accounts", parent)
	if v, ok := r.cache[key]; ok {
		return v.([]Account), nil
	}

	var accounts []Account
	var nextToken *string
	for {
		resp, err := r.Organizations.ListAccountsForParent(ctx, &organizations.ListAccountsForParentInput{
			ParentId:  aws.String(parent),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, ssoerr.Wrap(ssoerr.KindServiceError, err, "listing accounts for parent %q", parent)
		}
		for _, a := range resp.Accounts {
			accounts = append(accounts, Account{ID: aws.ToString(a.Id), Name: aws.ToString(a.Name)})
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		nextToken = resp.NextToken
	}
	r.cache[key] = accounts
	return accounts, nil
}

func (r *Resolver) childOUsForParent(ctx context.Context, parent string) ([]string, error) {
	key := r.cacheKey("ou", "children", parent)
	if v, ok := r.cache[key]; ok {
		return v.([]string), nil
	}

	var children []string
	var nextToken *string
	for {
		resp, err := r.Organizations.ListOrganizationalUnitsForParent(ctx, &organizations.ListOrganizationalUnitsForParentInput{
			ParentId:  aws.String(parent),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, ssoerr.Wrap(ssoerr.KindServiceError, err, "listing child OUs for parent %q", parent)
		}
		for _, ou := range resp.OrganizationalUnits {
			children = append(children, aws.ToString(ou.Id))
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		nextToken = resp.NextToken
	}
	r.cache[key] = children
	return children, nil
}

// ListAllAccounts enumerates every account in the organization via
// organizations:ListAccounts, used when an assignment config gives no
// explicit targets.
func (r *Resolver) ListAllAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	var nextToken *string
	for {
		resp, err := r.Organizations.ListAccounts(ctx, &organizations.ListAccountsInput{NextToken: nextToken})
		if err != nil {
			return nil, ssoerr.Wrap(ssoerr.KindServiceError, err, "listing organization accounts")
		}
		for _, a := range resp.Accounts {
			accounts = append(accounts, Account{ID: aws.ToString(a.Id), Name: aws.ToString(a.Name)})
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		nextToken = resp.NextToken
	}
	return accounts, nil
}
