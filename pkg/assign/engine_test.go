package assign

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	organizationstypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	ssoadmintypes "github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/ssoctl/pkg/identity"
	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

const (
	testInstanceArn = "arn:aws:sso:::instance/ssoins-1111222233334444"
	testPermSetArn  = "arn:aws:sso:::permissionSet/ssoins-1111222233334444/ps-aaaabbbbccccdddd"
	rootOU          = "ou-abcd-11111111"
	childOU         = "ou-abcd-22222222"
)

type fakeAdmin struct {
	assignmentsByAccount map[string][]ssoadmintypes.AccountAssignment
}

func (f *fakeAdmin) ListInstances(ctx context.Context, params *ssoadmin.ListInstancesInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListInstancesOutput, error) {
	return &ssoadmin.ListInstancesOutput{Instances: []ssoadmintypes.InstanceMetadata{
		{InstanceArn: aws.String(testInstanceArn), IdentityStoreId: aws.String("d-1234567890")},
	}}, nil
}

func (f *fakeAdmin) DescribePermissionSet(ctx context.Context, params *ssoadmin.DescribePermissionSetInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.DescribePermissionSetOutput, error) {
	return &ssoadmin.DescribePermissionSetOutput{PermissionSet: &ssoadmintypes.PermissionSet{
		Name:             aws.String("Analysts"),
		PermissionSetArn: params.PermissionSetArn,
	}}, nil
}

func (f *fakeAdmin) ListPermissionSets(ctx context.Context, params *ssoadmin.ListPermissionSetsInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListPermissionSetsOutput, error) {
	return &ssoadmin.ListPermissionSetsOutput{PermissionSets: []string{testPermSetArn}}, nil
}

func (f *fakeAdmin) ListPermissionSetsProvisionedToAccount(ctx context.Context, params *ssoadmin.ListPermissionSetsProvisionedToAccountInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListPermissionSetsProvisionedToAccountOutput, error) {
	return &ssoadmin.ListPermissionSetsProvisionedToAccountOutput{PermissionSets: []string{testPermSetArn}}, nil
}

func (f *fakeAdmin) ListAccountAssignments(ctx context.Context, params *ssoadmin.ListAccountAssignmentsInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListAccountAssignmentsOutput, error) {
	return &ssoadmin.ListAccountAssignmentsOutput{
		AccountAssignments: f.assignmentsByAccount[aws.ToString(params.AccountId)],
	}, nil
}

type fakeOrgs struct {
	accountsByParent map[string][]organizationstypes.Account
	childrenByParent map[string][]string
	mgmtAccountID    string
}

func (f *fakeOrgs) ListAccounts(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
	var all []organizationstypes.Account
	for _, accounts := range f.accountsByParent {
		all = append(all, accounts...)
	}
	return &organizations.ListAccountsOutput{Accounts: all}, nil
}

func (f *fakeOrgs) ListAccountsForParent(ctx context.Context, params *organizations.ListAccountsForParentInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsForParentOutput, error) {
	return &organizations.ListAccountsForParentOutput{Accounts: f.accountsByParent[aws.ToString(params.ParentId)]}, nil
}

func (f *fakeOrgs) ListOrganizationalUnitsForParent(ctx context.Context, params *organizations.ListOrganizationalUnitsForParentInput, optFns ...func(*organizations.Options)) (*organizations.ListOrganizationalUnitsForParentOutput, error) {
	var ous []organizationstypes.OrganizationalUnit
	for _, id := range f.childrenByParent[aws.ToString(params.ParentId)] {
		ous = append(ous, organizationstypes.OrganizationalUnit{Id: aws.String(id)})
	}
	return &organizations.ListOrganizationalUnitsForParentOutput{OrganizationalUnits: ous}, nil
}

func (f *fakeOrgs) DescribeAccount(ctx context.Context, params *organizations.DescribeAccountInput, optFns ...func(*organizations.Options)) (*organizations.DescribeAccountOutput, error) {
	return &organizations.DescribeAccountOutput{Account: &organizationstypes.Account{
		Id:   params.AccountId,
		Name: aws.String("account-" + aws.ToString(params.AccountId)),
	}}, nil
}

func (f *fakeOrgs) DescribeOrganization(ctx context.Context, params *organizations.DescribeOrganizationInput, optFns ...func(*organizations.Options)) (*organizations.DescribeOrganizationOutput, error) {
	return &organizations.DescribeOrganizationOutput{Organization: &organizationstypes.Organization{
		MasterAccountId: aws.String(f.mgmtAccountID),
	}}, nil
}

type fakeIdentityStore struct{}

func (f *fakeIdentityStore) DescribeGroup(ctx context.Context, params *identitystore.DescribeGroupInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeGroupOutput, error) {
	return &identitystore.DescribeGroupOutput{
		GroupId:     params.GroupId,
		DisplayName: aws.String("group-" + aws.ToString(params.GroupId)),
	}, nil
}

func (f *fakeIdentityStore) DescribeUser(ctx context.Context, params *identitystore.DescribeUserInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeUserOutput, error) {
	return &identitystore.DescribeUserOutput{
		UserId:   params.UserId,
		UserName: aws.String("user-" + aws.ToString(params.UserId)),
	}, nil
}

func (f *fakeIdentityStore) ListGroups(ctx context.Context, params *identitystore.ListGroupsInput, optFns ...func(*identitystore.Options)) (*identitystore.ListGroupsOutput, error) {
	return &identitystore.ListGroupsOutput{}, nil
}

func (f *fakeIdentityStore) ListUsers(ctx context.Context, params *identitystore.ListUsersInput, optFns ...func(*identitystore.Options)) (*identitystore.ListUsersOutput, error) {
	return &identitystore.ListUsersOutput{}, nil
}

func groupAssignment(id string) ssoadmintypes.AccountAssignment {
	return ssoadmintypes.AccountAssignment{
		PrincipalType:    ssoadmintypes.PrincipalTypeGroup,
		PrincipalId:      aws.String(id),
		PermissionSetArn: aws.String(testPermSetArn),
	}
}

func newTestEngine(admin *fakeAdmin, orgs *fakeOrgs) *Engine {
	ids := identity.NewIds(admin, "", "")
	resolver := identity.NewResolver(&fakeIdentityStore{}, orgs, admin, ids)
	return NewEngine(admin, resolver, Filters{})
}

// Scenario: one group principal, one permission set, one recursive OU with
// two direct accounts and one in a child OU. Emission order follows the OU
// traversal; all resource names share the Assignment prefix with distinct
// fingerprint suffixes.
func TestResolve_RecursiveOUExpansion(t *testing.T) {
	admin := &fakeAdmin{assignmentsByAccount: map[string][]ssoadmintypes.AccountAssignment{
		"111111111111": {groupAssignment("G1")},
		"222222222222": {groupAssignment("G1")},
		"333333333333": {groupAssignment("G1")},
	}}
	orgs := &fakeOrgs{
		accountsByParent: map[string][]organizationstypes.Account{
			rootOU:  {{Id: aws.String("111111111111"), Name: aws.String("A1")}, {Id: aws.String("222222222222"), Name: aws.String("A2")}},
			childOU: {{Id: aws.String("333333333333"), Name: aws.String("A3")}},
		},
		childrenByParent: map[string][]string{rootOU: {childOU}},
	}

	cfg := Config{
		Principals:     []ssotypes.Principal{{Type: ssotypes.PrincipalGroup, ID: "G1"}},
		PermissionSets: []ssotypes.PermissionSet{{Mode: ssotypes.PermissionSetArnLiteral, ARN: testPermSetArn}},
		Targets:        []ssotypes.Target{{Type: ssotypes.TargetOU, ID: rootOU}},
		OURecursive:    true,
	}

	engine := newTestEngine(admin, orgs)
	var assignments []ssotypes.Assignment
	for item := range engine.Resolve(context.Background(), cfg) {
		require.NoError(t, item.Err)
		assignments = append(assignments, item.Assignment)
	}

	require.Len(t, assignments, 3)
	wantAccounts := []string{"111111111111", "222222222222", "333333333333"}
	suffixes := map[string]bool{}
	for i, a := range assignments {
		assert.Equal(t, wantAccounts[i], a.Target.ID)
		assert.Equal(t, ssotypes.TargetAccount, a.Target.Type)
		assert.Equal(t, rootOU, a.SourceOU)
		assert.Equal(t, "G1", a.Principal.ID)

		name := a.ResourceName("")
		assert.Regexp(t, `^Assignment[0-9A-F]{6}$`, name)
		suffixes[name] = true
	}
	assert.Len(t, suffixes, 3, "fingerprint suffixes must be distinct")
}

func TestResolve_NonRecursiveOUSkipsChildren(t *testing.T) {
	admin := &fakeAdmin{assignmentsByAccount: map[string][]ssoadmintypes.AccountAssignment{
		"111111111111": {groupAssignment("G1")},
		"333333333333": {groupAssignment("G1")},
	}}
	orgs := &fakeOrgs{
		accountsByParent: map[string][]organizationstypes.Account{
			rootOU:  {{Id: aws.String("111111111111"), Name: aws.String("A1")}},
			childOU: {{Id: aws.String("333333333333"), Name: aws.String("A3")}},
		},
		childrenByParent: map[string][]string{rootOU: {childOU}},
	}

	cfg := Config{
		Principals:     []ssotypes.Principal{{Type: ssotypes.PrincipalGroup, ID: "G1"}},
		PermissionSets: []ssotypes.PermissionSet{{Mode: ssotypes.PermissionSetArnLiteral, ARN: testPermSetArn}},
		Targets:        []ssotypes.Target{{Type: ssotypes.TargetOU, ID: rootOU}},
	}

	engine := newTestEngine(admin, orgs)
	var accounts []string
	for item := range engine.Resolve(context.Background(), cfg) {
		require.NoError(t, item.Err)
		accounts = append(accounts, item.Assignment.Target.ID)
	}
	assert.Equal(t, []string{"111111111111"}, accounts)
}

// A bare principal id (no type) matches assignments of any principal type;
// a typed one matches only its own.
func TestResolve_PrincipalTypeMatching(t *testing.T) {
	admin := &fakeAdmin{assignmentsByAccount: map[string][]ssoadmintypes.AccountAssignment{
		"111111111111": {
			groupAssignment("P1"),
			{PrincipalType: ssoadmintypes.PrincipalTypeUser, PrincipalId: aws.String("P1"), PermissionSetArn: aws.String(testPermSetArn)},
			groupAssignment("OTHER"),
		},
	}}
	orgs := &fakeOrgs{}

	base := Config{
		PermissionSets: []ssotypes.PermissionSet{{Mode: ssotypes.PermissionSetArnLiteral, ARN: testPermSetArn}},
		Targets:        []ssotypes.Target{{Type: ssotypes.TargetAccount, ID: "111111111111"}},
	}

	bare := base
	bare.Principals = []ssotypes.Principal{{Type: ssotypes.PrincipalAny, ID: "P1"}}
	engine := newTestEngine(admin, orgs)
	count := 0
	for item := range engine.Resolve(context.Background(), bare) {
		require.NoError(t, item.Err)
		count++
	}
	assert.Equal(t, 2, count, "a bare id matches both the GROUP and USER assignment")

	typed := base
	typed.Principals = []ssotypes.Principal{{Type: ssotypes.PrincipalUser, ID: "P1"}}
	engine = newTestEngine(admin, orgs)
	var types []ssotypes.PrincipalType
	for item := range engine.Resolve(context.Background(), typed) {
		require.NoError(t, item.Err)
		types = append(types, item.Assignment.Principal.Type)
	}
	assert.Equal(t, []ssotypes.PrincipalType{ssotypes.PrincipalUser}, types)
}

func TestResolve_FiltersApply(t *testing.T) {
	admin := &fakeAdmin{assignmentsByAccount: map[string][]ssoadmintypes.AccountAssignment{
		"111111111111": {groupAssignment("G1")},
		"222222222222": {groupAssignment("G1")},
	}}
	orgs := &fakeOrgs{
		accountsByParent: map[string][]organizationstypes.Account{
			rootOU: {{Id: aws.String("111111111111"), Name: aws.String("A1")}, {Id: aws.String("222222222222"), Name: aws.String("A2")}},
		},
	}

	cfg := Config{
		Principals:     []ssotypes.Principal{{Type: ssotypes.PrincipalGroup, ID: "G1"}},
		PermissionSets: []ssotypes.PermissionSet{{Mode: ssotypes.PermissionSetArnLiteral, ARN: testPermSetArn}},
		Targets:        []ssotypes.Target{{Type: ssotypes.TargetOU, ID: rootOU}},
	}

	ids := identity.NewIds(admin, "", "")
	resolver := identity.NewResolver(&fakeIdentityStore{}, orgs, admin, ids)
	engine := NewEngine(admin, resolver, Filters{
		Target: func(t ssotypes.Target) bool { return t.ID != "222222222222" },
	})

	var accounts []string
	for item := range engine.Resolve(context.Background(), cfg) {
		require.NoError(t, item.Err)
		accounts = append(accounts, item.Assignment.Target.ID)
	}
	assert.Equal(t, []string{"111111111111"}, accounts)
}

func TestCollect_DeduplicatesInlinePermissionSets(t *testing.T) {
	inline := ssotypes.PermissionSet{
		Mode:   ssotypes.PermissionSetInlineResource,
		Inline: &ssotypes.PermissionSetResource{Name: "Analysts"},
	}
	instance := ssotypes.InstanceRef{InstanceArn: testInstanceArn}

	items := make(chan Item, 3)
	for _, acct := range []string{"111111111111", "222222222222"} {
		items <- Item{Assignment: ssotypes.Assignment{
			Instance:      instance,
			Principal:     ssotypes.Principal{Type: ssotypes.PrincipalGroup, ID: "G1"},
			PermissionSet: inline,
			Target:        ssotypes.Target{Type: ssotypes.TargetAccount, ID: acct},
		}}
	}
	close(items)

	rc, err := Collect(context.Background(), items)
	require.NoError(t, err)
	assert.Len(t, rc.Assignments, 2)
	assert.Len(t, rc.PermissionSets, 1)
	assert.Equal(t, 3, rc.NumResources)
}
