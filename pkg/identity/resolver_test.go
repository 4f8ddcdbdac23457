package identity

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	identitystoretypes "github.com/aws/aws-sdk-go-v2/service/identitystore/types"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	organizationstypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	ssoadmintypes "github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
)

const (
	testInstanceArn = "arn:aws:sso:::instance/ssoins-1111222233334444"
	rootOU          = "ou-abcd-11111111"
	childOU         = "ou-abcd-22222222"
)

type countingAdmin struct {
	instances     [][2]string // (arn, identity store id) pairs
	describeCalls int
	listCalls     int
}

func (f *countingAdmin) ListInstances(ctx context.Context, params *ssoadmin.ListInstancesInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListInstancesOutput, error) {
	f.listCalls++
	var out []ssoadmintypes.InstanceMetadata
	for _, pair := range f.instances {
		out = append(out, ssoadmintypes.InstanceMetadata{InstanceArn: aws.String(pair[0]), IdentityStoreId: aws.String(pair[1])})
	}
	return &ssoadmin.ListInstancesOutput{Instances: out}, nil
}

func (f *countingAdmin) DescribePermissionSet(ctx context.Context, params *ssoadmin.DescribePermissionSetInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.DescribePermissionSetOutput, error) {
	f.describeCalls++
	return &ssoadmin.DescribePermissionSetOutput{PermissionSet: &ssoadmintypes.PermissionSet{
		Name:             aws.String("Analysts"),
		PermissionSetArn: params.PermissionSetArn,
	}}, nil
}

func (f *countingAdmin) ListPermissionSets(ctx context.Context, params *ssoadmin.ListPermissionSetsInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListPermissionSetsOutput, error) {
	return &ssoadmin.ListPermissionSetsOutput{PermissionSets: []string{"arn:aws:sso:::permissionSet/ssoins-1111222233334444/ps-aaaabbbbccccdddd"}}, nil
}

func (f *countingAdmin) ListPermissionSetsProvisionedToAccount(ctx context.Context, params *ssoadmin.ListPermissionSetsProvisionedToAccountInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListPermissionSetsProvisionedToAccountOutput, error) {
	return &ssoadmin.ListPermissionSetsProvisionedToAccountOutput{}, nil
}

func (f *countingAdmin) ListAccountAssignments(ctx context.Context, params *ssoadmin.ListAccountAssignmentsInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListAccountAssignmentsOutput, error) {
	return &ssoadmin.ListAccountAssignmentsOutput{}, nil
}

type countingIdentityStore struct {
	describeGroupCalls int
	missingGroups      map[string]bool
}

func (f *countingIdentityStore) DescribeGroup(ctx context.Context, params *identitystore.DescribeGroupInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeGroupOutput, error) {
	f.describeGroupCalls++
	id := aws.ToString(params.GroupId)
	if f.missingGroups[id] {
		return nil, &identitystoretypes.ResourceNotFoundException{}
	}
	return &identitystore.DescribeGroupOutput{GroupId: params.GroupId, DisplayName: aws.String("group-" + id)}, nil
}

func (f *countingIdentityStore) DescribeUser(ctx context.Context, params *identitystore.DescribeUserInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeUserOutput, error) {
	return &identitystore.DescribeUserOutput{UserId: params.UserId, UserName: aws.String("user-" + aws.ToString(params.UserId))}, nil
}

func (f *countingIdentityStore) ListGroups(ctx context.Context, params *identitystore.ListGroupsInput, optFns ...func(*identitystore.Options)) (*identitystore.ListGroupsOutput, error) {
	name := aws.ToString(params.Filters[0].AttributeValue)
	if name != "Analysts" {
		return &identitystore.ListGroupsOutput{}, nil
	}
	return &identitystore.ListGroupsOutput{Groups: []identitystoretypes.Group{{GroupId: aws.String("G1"), DisplayName: aws.String(name)}}}, nil
}

func (f *countingIdentityStore) ListUsers(ctx context.Context, params *identitystore.ListUsersInput, optFns ...func(*identitystore.Options)) (*identitystore.ListUsersOutput, error) {
	return &identitystore.ListUsersOutput{}, nil
}

type countingOrgs struct {
	accountsByParent   map[string][]organizationstypes.Account
	childrenByParent   map[string][]string
	mgmtAccountID      string
	listForParentCalls int
	listChildrenCalls  int
	describeOrgCalls   int
}

func (f *countingOrgs) ListAccounts(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
	var all []organizationstypes.Account
	for _, accounts := range f.accountsByParent {
		all = append(all, accounts...)
	}
	return &organizations.ListAccountsOutput{Accounts: all}, nil
}

func (f *countingOrgs) ListAccountsForParent(ctx context.Context, params *organizations.ListAccountsForParentInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsForParentOutput, error) {
	f.listForParentCalls++
	return &organizations.ListAccountsForParentOutput{Accounts: f.accountsByParent[aws.ToString(params.ParentId)]}, nil
}

func (f *countingOrgs) ListOrganizationalUnitsForParent(ctx context.Context, params *organizations.ListOrganizationalUnitsForParentInput, optFns ...func(*organizations.Options)) (*organizations.ListOrganizationalUnitsForParentOutput, error) {
	f.listChildrenCalls++
	var ous []organizationstypes.OrganizationalUnit
	for _, id := range f.childrenByParent[aws.ToString(params.ParentId)] {
		ous = append(ous, organizationstypes.OrganizationalUnit{Id: aws.String(id)})
	}
	return &organizations.ListOrganizationalUnitsForParentOutput{OrganizationalUnits: ous}, nil
}

func (f *countingOrgs) DescribeAccount(ctx context.Context, params *organizations.DescribeAccountInput, optFns ...func(*organizations.Options)) (*organizations.DescribeAccountOutput, error) {
	return &organizations.DescribeAccountOutput{Account: &organizationstypes.Account{Id: params.AccountId, Name: aws.String("acct")}}, nil
}

func (f *countingOrgs) DescribeOrganization(ctx context.Context, params *organizations.DescribeOrganizationInput, optFns ...func(*organizations.Options)) (*organizations.DescribeOrganizationOutput, error) {
	f.describeOrgCalls++
	return &organizations.DescribeOrganizationOutput{Organization: &organizationstypes.Organization{MasterAccountId: aws.String(f.mgmtAccountID)}}, nil
}

func newTestResolver(admin *countingAdmin, idStore *countingIdentityStore, orgs *countingOrgs) *Resolver {
	if admin == nil {
		admin = &countingAdmin{instances: [][2]string{{testInstanceArn, "d-1234567890"}}}
	}
	if idStore == nil {
		idStore = &countingIdentityStore{}
	}
	if orgs == nil {
		orgs = &countingOrgs{}
	}
	return NewResolver(idStore, orgs, admin, NewIds(admin, "", ""))
}

func TestLookupGroupByID_MemoizesHits(t *testing.T) {
	idStore := &countingIdentityStore{}
	r := newTestResolver(nil, idStore, nil)

	name, err := r.LookupGroupByID(context.Background(), "G1")
	require.NoError(t, err)
	assert.Equal(t, "group-G1", name)

	_, err = r.LookupGroupByID(context.Background(), "G1")
	require.NoError(t, err)
	assert.Equal(t, 1, idStore.describeGroupCalls, "second lookup must come from the cache")
}

func TestLookupGroupByID_CachesNotFound(t *testing.T) {
	idStore := &countingIdentityStore{missingGroups: map[string]bool{"GONE": true}}
	r := newTestResolver(nil, idStore, nil)

	_, err := r.LookupGroupByID(context.Background(), "GONE")
	var se *ssoerr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ssoerr.KindLookupError, se.Kind)

	_, err2 := r.LookupGroupByID(context.Background(), "GONE")
	assert.Equal(t, err, err2, "the cached error object itself is returned")
	assert.Equal(t, 1, idStore.describeGroupCalls, "a missing id is never re-queried")
}

func TestLookupPermissionSetByID_Memoizes(t *testing.T) {
	admin := &countingAdmin{instances: [][2]string{{testInstanceArn, "d-1234567890"}}}
	r := newTestResolver(admin, nil, nil)

	const arn = "arn:aws:sso:::permissionSet/ssoins-1111222233334444/ps-aaaabbbbccccdddd"
	name, err := r.LookupPermissionSetByID(context.Background(), arn)
	require.NoError(t, err)
	assert.Equal(t, "Analysts", name)

	_, err = r.LookupPermissionSetByID(context.Background(), arn)
	require.NoError(t, err)
	assert.Equal(t, 1, admin.describeCalls)
}

func TestLookupGroupByName(t *testing.T) {
	r := newTestResolver(nil, nil, nil)

	id, err := r.LookupGroupByName(context.Background(), "Analysts")
	require.NoError(t, err)
	assert.Equal(t, "G1", id)

	_, err = r.LookupGroupByName(context.Background(), "Nobody")
	var se *ssoerr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ssoerr.KindLookupError, se.Kind)
}

func TestLookupAccountsForOU_RecursiveTraversalAndCaching(t *testing.T) {
	orgs := &countingOrgs{
		accountsByParent: map[string][]organizationstypes.Account{
			rootOU:  {{Id: aws.String("111111111111"), Name: aws.String("A1")}, {Id: aws.String("222222222222"), Name: aws.String("A2")}},
			childOU: {{Id: aws.String("333333333333"), Name: aws.String("A3")}},
		},
		childrenByParent: map[string][]string{rootOU: {childOU}},
	}
	r := newTestResolver(nil, nil, orgs)

	accounts, err := r.LookupAccountsForOU(context.Background(), rootOU, true, false)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, "111111111111", accounts[0].ID)
	assert.Equal(t, "222222222222", accounts[1].ID)
	assert.Equal(t, "333333333333", accounts[2].ID)

	// Second traversal reuses the per-OU caches entirely.
	callsAfterFirst := orgs.listForParentCalls
	childCallsAfterFirst := orgs.listChildrenCalls
	_, err = r.LookupAccountsForOU(context.Background(), rootOU, true, false)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, orgs.listForParentCalls)
	assert.Equal(t, childCallsAfterFirst, orgs.listChildrenCalls)
}

func TestLookupAccountsForOU_NonRecursive(t *testing.T) {
	orgs := &countingOrgs{
		accountsByParent: map[string][]organizationstypes.Account{
			rootOU:  {{Id: aws.String("111111111111")}},
			childOU: {{Id: aws.String("333333333333")}},
		},
		childrenByParent: map[string][]string{rootOU: {childOU}},
	}
	r := newTestResolver(nil, nil, orgs)

	accounts, err := r.LookupAccountsForOU(context.Background(), rootOU, false, false)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Zero(t, orgs.listChildrenCalls, "non-recursive traversal never lists child OUs")
}

func TestLookupAccountsForOU_ExcludesManagementAccount(t *testing.T) {
	orgs := &countingOrgs{
		accountsByParent: map[string][]organizationstypes.Account{
			rootOU: {{Id: aws.String("111111111111")}, {Id: aws.String("999999999999")}},
		},
		mgmtAccountID: "999999999999",
	}
	r := newTestResolver(nil, nil, orgs)

	accounts, err := r.LookupAccountsForOU(context.Background(), rootOU, false, true)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "111111111111", accounts[0].ID)
	assert.Equal(t, 1, orgs.describeOrgCalls)

	// The management account id is cached too.
	_, err = r.LookupAccountsForOU(context.Background(), rootOU, false, true)
	require.NoError(t, err)
	assert.Equal(t, 1, orgs.describeOrgCalls)
}

func TestIdsResolve(t *testing.T) {
	admin := &countingAdmin{instances: [][2]string{{testInstanceArn, "d-1234567890"}}}
	ids := NewIds(admin, "", "")

	instance, err := ids.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testInstanceArn, instance.InstanceArn)
	assert.Equal(t, "d-1234567890", instance.IdentityStoreID)

	_, err = ids.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, admin.listCalls, "the answer is memoized")
}

func TestIdsResolve_HintValidation(t *testing.T) {
	admin := &countingAdmin{instances: [][2]string{
		{testInstanceArn, "d-1234567890"},
		{"arn:aws:sso:::instance/ssoins-5555666677778888", "d-0987654321"},
	}}

	// A one-sided hint selects the matching instance and fills the other side.
	ids := NewIds(admin, "", "d-0987654321")
	instance, err := ids.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:sso:::instance/ssoins-5555666677778888", instance.InstanceArn)

	// No hint with two instances is ambiguous.
	_, err = NewIds(admin, "", "").Resolve(context.Background())
	var se *ssoerr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ssoerr.KindInvalidSSOConfig, se.Kind)
	assert.Contains(t, err.Error(), "ssoins-1111222233334444")
	assert.Contains(t, err.Error(), "ssoins-5555666677778888")

	// A hint matching nothing errors.
	_, err = NewIds(admin, "arn:aws:sso:::instance/ssoins-0000000000000000", "").Resolve(context.Background())
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ssoerr.KindInvalidSSOConfig, se.Kind)
}
