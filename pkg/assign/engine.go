package assign

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	ssoadmintypes "github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"

	"github.com/praetorian-inc/ssoctl/internal/awsclients"
	"github.com/praetorian-inc/ssoctl/pkg/identity"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

// Engine expands a Config into its flat set of Assignment tuples. It holds
// no state of its own beyond its clients and identity resolver; all
// expansion-run state (filter memoization) lives on the call stack of
// Resolve. Concurrent Resolve calls on one Engine still share its identity
// resolver, whose lookup caches are not synchronized.
type Engine struct {
	Admin    awsclients.SSOAdminClient
	Identity *identity.Resolver
	Filters  Filters
}

// NewEngine builds an Engine. identityResolver supplies name enrichment and
// OU traversal; pass the same Resolver used elsewhere in the run so its
// lookup caches are shared.
func NewEngine(admin awsclients.SSOAdminClient, identityResolver *identity.Resolver, filters Filters) *Engine {
	return &Engine{Admin: admin, Identity: identityResolver, Filters: filters}
}

// Resolve runs the full expansion algorithm and returns a channel of Item,
// closed when expansion finishes or ctx is canceled. Emission order is
// target-outer, permission-set-middle, principal-inner, following the
// paginator order of the underlying calls; no sort is applied. Callers that
// stop reading before the channel closes must cancel ctx, or the internal
// producer goroutines block forever on their sends.
func (e *Engine) Resolve(ctx context.Context, cfg Config) <-chan Item {
	targetFilterMemo := map[string]bool{}

	return generator(ctx, func(emit func(Item) bool) {
		// Drain the targets first: its goroutine's lookups must not overlap
		// this goroutine's use of the unsynchronized identity caches.
		var targets []ssotypes.Target
		for t := range e.targets(ctx, cfg, emit) {
			targets = append(targets, t)
		}
		for _, target := range targets {
			if !e.targetPasses(ctx, target, targetFilterMemo, emit) {
				continue
			}
			for _, permSet := range e.permissionSets(ctx, cfg, target, emit) {
				name := e.permissionSetName(ctx, permSet, emit)
				if !e.Filters.permissionSet(permSet, name) {
					continue
				}
				if !e.principals(ctx, cfg, target, permSet, emit) {
					return
				}
			}
		}
	})
}

// targets yields the resolved, fanned-out target set: explicit targets
// (with AWS_OU entries expanded through the OU traversal) or, absent any
// explicit target, every account in the organization.
func (e *Engine) targets(ctx context.Context, cfg Config, emit func(Item) bool) <-chan ssotypes.Target {
	out := make(chan ssotypes.Target)
	go func() {
		defer close(out)
		send := func(t ssotypes.Target) bool {
			select {
			case out <- t:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if len(cfg.Targets) == 0 {
			accounts, err := e.Identity.ListAllAccounts(ctx)
			if err != nil {
				emit(Item{Err: err})
				return
			}
			for _, a := range accounts {
				if !send(ssotypes.Target{Type: ssotypes.TargetAccount, ID: a.ID, Name: a.Name}) {
					return
				}
			}
			return
		}

		for _, t := range cfg.Targets {
			if t.Type != ssotypes.TargetOU {
				if !send(t) {
					return
				}
				continue
			}
			accounts, err := e.Identity.LookupAccountsForOU(ctx, t.ID, cfg.OURecursive, cfg.ExcludeOrgMgmtAccount)
			if err != nil {
				emit(Item{Err: err})
				return
			}
			for _, a := range accounts {
				fanned := ssotypes.Target{Type: ssotypes.TargetAccount, ID: a.ID, Name: a.Name, SourceOU: t.ID}
				if !send(fanned) {
					return
				}
			}
		}
	}()
	return out
}

func (e *Engine) targetPasses(ctx context.Context, t ssotypes.Target, memo map[string]bool, emit func(Item) bool) bool {
	if passes, ok := memo[t.ID]; ok {
		return passes
	}
	name := t.Name
	if name == "" && t.Type == ssotypes.TargetAccount {
		if resolved, err := e.Identity.LookupAccountByID(ctx, t.ID); err == nil {
			name = resolved
		}
	}
	passes := e.Filters.target(ssotypes.Target{Type: t.Type, ID: t.ID, Name: name, SourceOU: t.SourceOU})
	memo[t.ID] = passes
	return passes
}

// permissionSets yields the permission sets to evaluate for target: the
// explicit set from cfg, or every permission set provisioned to the target
// account.
func (e *Engine) permissionSets(ctx context.Context, cfg Config, target ssotypes.Target, emit func(Item) bool) []ssotypes.PermissionSet {
	if len(cfg.PermissionSets) > 0 {
		return cfg.PermissionSets
	}

	instance, err := e.Identity.Ids.Resolve(ctx)
	if err != nil {
		emit(Item{Err: err})
		return nil
	}

	var arns []string
	var nextToken *string
	for {
		resp, err := e.Admin.ListPermissionSetsProvisionedToAccount(ctx, &ssoadmin.ListPermissionSetsProvisionedToAccountInput{
			InstanceArn: aws.String(instance.InstanceArn),
			AccountId:   aws.String(target.ID),
			NextToken:   nextToken,
		})
		if err != nil {
			emit(Item{Err: ssoerr.Wrap(ssoerr.KindServiceError, err, "listing permission sets provisioned to account %s", target.ID)})
			return nil
		}
		arns = append(arns, resp.PermissionSets...)
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		nextToken = resp.NextToken
	}

	out := make([]ssotypes.PermissionSet, 0, len(arns))
	for _, arn := range arns {
		out = append(out, ssotypes.PermissionSet{Mode: ssotypes.PermissionSetArnLiteral, ARN: arn})
	}
	return out
}

func (e *Engine) permissionSetName(ctx context.Context, ps ssotypes.PermissionSet, emit func(Item) bool) string {
	instance, err := e.Identity.Ids.Resolve(ctx)
	if err != nil {
		return ""
	}
	arn, err := ps.Resolve(instance.InstanceArn)
	if err != nil || arn == "" {
		return ""
	}
	name, err := e.Identity.LookupPermissionSetByID(ctx, arn)
	if err != nil {
		return ""
	}
	return name
}

// principals calls ListAccountAssignments for (target, permSet), filters
// and enriches each returned principal, and emits one Assignment per
// surviving tuple. It returns false if the caller's consumer stopped
// reading (ctx canceled mid-emit).
func (e *Engine) principals(ctx context.Context, cfg Config, target ssotypes.Target, permSet ssotypes.PermissionSet, emit func(Item) bool) bool {
	instance, err := e.Identity.Ids.Resolve(ctx)
	if err != nil {
		return emit(Item{Err: err})
	}
	permSetArn, err := permSet.Resolve(instance.InstanceArn)
	if err != nil {
		return emit(Item{Err: ssoerr.Wrap(ssoerr.KindInvalidSSOConfig, err, "resolving permission set for account assignment listing")})
	}

	var nextToken *string
	for {
		resp, err := e.Admin.ListAccountAssignments(ctx, &ssoadmin.ListAccountAssignmentsInput{
			InstanceArn:      aws.String(instance.InstanceArn),
			AccountId:        aws.String(target.ID),
			PermissionSetArn: aws.String(permSetArn),
			NextToken:        nextToken,
		})
		if err != nil {
			return emit(Item{Err: ssoerr.Wrap(ssoerr.KindServiceError, err, "listing account assignments for %s", target.ID)})
		}

		for _, raw := range resp.AccountAssignments {
			principal := ssotypes.Principal{
				Type: principalTypeFromSDK(raw.PrincipalType),
				ID:   aws.ToString(raw.PrincipalId),
			}

			if len(cfg.Principals) > 0 && !matchesAny(cfg.Principals, principal) {
				continue
			}

			name := e.principalName(ctx, principal)
			if !e.Filters.principal(principal, name) {
				continue
			}

			assignment := ssotypes.Assignment{
				Instance:      instance,
				Principal:     principal,
				PermissionSet: permSet,
				Target:        target,
				SourceOU:      target.SourceOU,
			}
			if !emit(Item{Assignment: assignment}) {
				return false
			}
		}

		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		nextToken = resp.NextToken
	}
	return true
}

// principalName resolves a display name for enrichment and filtering.
// Lookup failures (including "not found") are not fatal here: the caller
// gets an empty name and the tuple is still emitted, since a missing name
// is a value worth caching, not a hard error.
func (e *Engine) principalName(ctx context.Context, p ssotypes.Principal) string {
	var name string
	var err error
	switch p.Type {
	case ssotypes.PrincipalGroup:
		name, err = e.Identity.LookupGroupByID(ctx, p.ID)
	case ssotypes.PrincipalUser:
		name, err = e.Identity.LookupUserByID(ctx, p.ID)
	default:
		return ""
	}
	if err != nil {
		return ""
	}
	return name
}

func matchesAny(specs []ssotypes.Principal, actual ssotypes.Principal) bool {
	for _, spec := range specs {
		if spec.Matches(actual) {
			return true
		}
	}
	return false
}

func principalTypeFromSDK(t ssoadmintypes.PrincipalType) ssotypes.PrincipalType {
	switch t {
	case ssoadmintypes.PrincipalTypeGroup:
		return ssotypes.PrincipalGroup
	case ssoadmintypes.PrincipalTypeUser:
		return ssotypes.PrincipalUser
	default:
		return ssotypes.PrincipalAny
	}
}
