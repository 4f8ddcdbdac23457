package identity

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	identitystoretypes "github.com/aws/aws-sdk-go-v2/service/identitystore/types"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"

	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
)

// LookupGroupByName resolves a group display name to its id via
// identitystore:ListGroups with a DisplayName filter, memoizing hits and
// not-found errors under "group#name#<name>".
func (r *Resolver) LookupGroupByName(ctx context.Context, name string) (string, error) {
	key := r.cacheKey("group", "name", name)
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
	resp, err := r.IdentityStore.ListGroups(ctx, &identitystore.ListGroupsInput{
		IdentityStoreId: aws.String(instance.IdentityStoreID),
		Filters: []identitystoretypes.Filter{
			{AttributePath: aws.String("DisplayName"), AttributeValue: aws.String(name)},
		},
	})
	if err != nil {
		wrapped := r.wrapLookupError(err, "group", name)
		r.cache[key] = wrapped
		return "", wrapped
	}
	if len(resp.Groups) == 0 {
		notFound := ssoerr.New(ssoerr.KindLookupError, "group %q not found", name)
		r.cache[key] = notFound
		return "", notFound
	}
	id := aws.ToString(resp.Groups[0].GroupId)
	r.cache[key] = id
	return id, nil
}

// LookupUserByName resolves a user name to its id via
// identitystore:ListUsers with a UserName filter, same caching policy.
func (r *Resolver) LookupUserByName(ctx context.Context, name string) (string, error) {
	key := r.cacheKey("user", "name", name)
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
	resp, err := r.IdentityStore.ListUsers(ctx, &identitystore.ListUsersInput{
		IdentityStoreId: aws.String(instance.IdentityStoreID),
		Filters: []identitystoretypes.Filter{
			{AttributePath: aws.String("UserName"), AttributeValue: aws.String(name)},
		},
	})
	if err != nil {
		wrapped := r.wrapLookupError(err, "user", name)
		r.cache[key] = wrapped
		return "", wrapped
	}
	if len(resp.Users) == 0 {
		notFound := ssoerr.New(ssoerr.KindLookupError, "user %q not found", name)
		r.cache[key] = notFound
		return "", notFound
	}
	id := aws.ToString(resp.Users[0].UserId)
	r.cache[key] = id
	return id, nil
}

// LookupPermissionSetByName resolves a permission set's friendly name to its
// ARN by enumerating ListPermissionSets and describing each until the name
// matches. Every described set is cached by ARN along the way, so a later
// LookupPermissionSetByID for any of them is free.
func (r *Resolver) LookupPermissionSetByName(ctx context.Context, name string) (string, error) {
	key := r.cacheKey("permissionset", "name", name)
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

	var nextToken *string
	for {
		resp, err := r.SSOAdmin.ListPermissionSets(ctx, &ssoadmin.ListPermissionSetsInput{
			InstanceArn: aws.String(instance.InstanceArn),
			NextToken:   nextToken,
		})
		if err != nil {
			wrapped := ssoerr.Wrap(ssoerr.KindServiceError, err, "listing permission sets")
			r.cache[key] = wrapped
			return "", wrapped
		}
		for _, arn := range resp.PermissionSets {
			candidate, err := r.LookupPermissionSetByID(ctx, arn)
			if err != nil {
				return "", err
			}
			if candidate == name {
				r.cache[key] = arn
				return arn, nil
			}
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		nextToken = resp.NextToken
	}

	notFound := ssoerr.New(ssoerr.KindLookupError, "permission set %q not found", name)
	r.cache[key] = notFound
	return "", notFound
}

// LookupAccountByName resolves an account display name to its id by
// enumerating the organization's accounts, caching both directions.
func (r *Resolver) LookupAccountByName(ctx context.Context, name string) (string, error) {
	key := r.cacheKey("account", "name", name)
	if v, ok := r.cache[key]; ok {
		if err, isErr := v.(error); isErr {
			return "", err
		}
		return v.(string), nil
	}

	accounts, err := r.ListAllAccounts(ctx)
	if err != nil {
		return "", err
	}
	for _, a := range accounts {
		r.cache[r.cacheKey("account", "id", a.ID)] = a.Name
		if a.Name == name {
			r.cache[key] = a.ID
			return a.ID, nil
		}
	}

	notFound := ssoerr.New(ssoerr.KindLookupError, "account %q not found", name)
	r.cache[key] = notFound
	return "", notFound
}
