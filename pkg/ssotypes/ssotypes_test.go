package ssotypes

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadAccountID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "123456789012", want: "123456789012"},
		{in: "42", want: "000000000042"},
		{in: "1", want: "000000000001"},
		{in: "1234567890123", wantErr: true},
		{in: "12ab", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := PadAccountID(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got)
		assert.Len(t, got, 12)
		assert.Regexp(t, `^[0-9]{12}$`, got)
	}
}

func TestNormalizeTargetSpec(t *testing.T) {
	acct, err := NormalizeTargetSpec("42")
	require.NoError(t, err)
	assert.Equal(t, Target{Type: TargetAccount, ID: "000000000042"}, acct)

	root, err := NormalizeTargetSpec("r-abcd")
	require.NoError(t, err)
	assert.Equal(t, Target{Type: TargetOU, ID: "r-abcd"}, root)

	ou, err := NormalizeTargetSpec("ou-abcd-12345678")
	require.NoError(t, err)
	assert.Equal(t, Target{Type: TargetOU, ID: "ou-abcd-12345678"}, ou)

	_, err = NormalizeTargetSpec("not-a-target")
	assert.Error(t, err)

	_, err = NormalizeTargetSpec("ou-abcd-short")
	assert.Error(t, err, "second OU segment must be at least 8 characters")
}

func TestAssignmentResourceName_MatchesFingerprintDefinition(t *testing.T) {
	a := Assignment{
		Instance:      InstanceRef{InstanceArn: "arn:aws:sso:::instance/ssoins-1111222233334444"},
		Principal:     Principal{Type: PrincipalGroup, ID: "G1"},
		PermissionSet: PermissionSet{Mode: PermissionSetArnLiteral, ARN: "arn:aws:sso:::permissionSet/ssoins-1111222233334444/ps-aaaabbbbccccdddd"},
		Target:        Target{Type: TargetAccount, ID: "000000000042"},
	}

	sum := md5.Sum([]byte(a.Instance.HashKey() + a.Principal.HashKey() + a.PermissionSet.HashKey() + a.Target.HashKey()))
	wantSuffix := strings.ToUpper(hex.EncodeToString(sum[:]))[:6]

	assert.Equal(t, "SSOAssignment"+wantSuffix, a.ResourceName("SSO"))
	assert.Equal(t, a.ResourceName("SSO"), a.ResourceName("SSO"), "resource names are stable across calls")

	// Changing any component changes the name; duplicates collapse.
	b := a
	b.Target.ID = "000000000043"
	assert.NotEqual(t, a.ResourceName("SSO"), b.ResourceName("SSO"))
	c := a
	assert.Equal(t, a.ResourceName("SSO"), c.ResourceName("SSO"))
}

func TestAssignmentShardIndex_IsStableAndInRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		a := Assignment{
			Instance:      InstanceRef{InstanceArn: "arn:aws:sso:::instance/ssoins-1111222233334444"},
			Principal:     Principal{Type: PrincipalGroup, ID: fmt.Sprintf("g-%d", i)},
			PermissionSet: PermissionSet{Mode: PermissionSetBareID, BareID: "ps-aaaabbbbccccdddd"},
			Target:        Target{Type: TargetAccount, ID: "000000000042"},
		}
		idx := a.ShardIndex(7)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 7)
		assert.Equal(t, idx, a.ShardIndex(7))

		// The index is the full 16-byte digest taken as a big-endian
		// unsigned integer, reduced modulo the shard count.
		sum := a.Fingerprint()
		want := new(big.Int).SetBytes(sum[:])
		want.Mod(want, big.NewInt(7))
		assert.Equal(t, int(want.Int64()), idx)
	}
}

func TestParsePermissionSetSpec(t *testing.T) {
	full, err := ParsePermissionSetSpec("arn:aws:sso:::permissionSet/ssoins-1111222233334444/ps-aaaabbbbccccdddd")
	require.NoError(t, err)
	assert.Equal(t, PermissionSetArnLiteral, full.Mode)

	scoped, err := ParsePermissionSetSpec("arn:aws:sso:::permissionSet//ps-aaaabbbbccccdddd")
	require.NoError(t, err)
	assert.Equal(t, PermissionSetInstanceScoped, scoped.Mode)

	bare, err := ParsePermissionSetSpec("ps-aaaabbbbccccdddd")
	require.NoError(t, err)
	assert.Equal(t, PermissionSetBareID, bare.Mode)

	_, err = ParsePermissionSetSpec("something-else")
	assert.Error(t, err)
}

func TestPermissionSetResolve(t *testing.T) {
	const instanceArn = "arn:aws:sso:::instance/ssoins-1111222233334444"

	full := PermissionSet{Mode: PermissionSetArnLiteral, ARN: "arn:aws:sso:::permissionSet/ssoins-1111222233334444/ps-aaaabbbbccccdddd"}
	got, err := full.Resolve(instanceArn)
	require.NoError(t, err)
	assert.Equal(t, full.ARN, got)

	scoped := PermissionSet{Mode: PermissionSetInstanceScoped, ARN: "arn:aws:sso:::permissionSet//ps-aaaabbbbccccdddd"}
	got, err = scoped.Resolve(instanceArn)
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:sso:::permissionSet/ssoins-1111222233334444/ps-aaaabbbbccccdddd", got)

	bare := PermissionSet{Mode: PermissionSetBareID, BareID: "ps-aaaabbbbccccdddd"}
	got, err = bare.Resolve(instanceArn)
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:sso:::permissionSet/ssoins-1111222233334444/ps-aaaabbbbccccdddd", got)

	inline := PermissionSet{Mode: PermissionSetInlineResource, Inline: &PermissionSetResource{Name: "Analysts"}}
	_, err = inline.Resolve(instanceArn)
	assert.Error(t, err, "inline resources resolve to a template expression, not an ARN")
}

func TestPermissionSetResourceName(t *testing.T) {
	inline := PermissionSet{Mode: PermissionSetInlineResource, Inline: &PermissionSetResource{Name: "Analysts"}}
	name, ok := inline.ResourceName("SSO")
	require.True(t, ok)
	assert.Equal(t, "SSOPermSetAnalysts", name)

	arn := PermissionSet{Mode: PermissionSetArnLiteral, ARN: "arn:aws:sso:::permissionSet/ssoins-1111222233334444/ps-aaaabbbbccccdddd"}
	_, ok = arn.ResourceName("SSO")
	assert.False(t, ok, "only INLINE_RESOURCE contributes a template resource")
}

func TestAccessTokenExpiryAndRefreshability(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	fresh := AccessToken{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, fresh.Expired(now, DefaultExpiryWindow))

	insideWindow := AccessToken{ExpiresAt: now.Add(10 * time.Minute)}
	assert.True(t, insideWindow.Expired(now, DefaultExpiryWindow))

	refreshable := AccessToken{RefreshToken: "R", RegistrationExpiresAt: now.Add(time.Hour)}
	assert.True(t, refreshable.Refreshable(now))
	assert.False(t, AccessToken{RegistrationExpiresAt: now.Add(time.Hour)}.Refreshable(now))
	assert.False(t, AccessToken{RefreshToken: "R", RegistrationExpiresAt: now.Add(-time.Hour)}.Refreshable(now))
}

func TestValidateInstanceRef(t *testing.T) {
	require.NoError(t, ValidateInstanceArn("arn:aws:sso:::instance/ssoins-1111222233334444"))
	assert.Error(t, ValidateInstanceArn("arn:aws:sso:::instance/bogus"))
	require.NoError(t, ValidateIdentityStoreID("d-1234567890"))
	assert.Error(t, ValidateIdentityStoreID("1234567890"))
}

func TestSessionIdentityAndCacheKeySeed(t *testing.T) {
	named := Session{Name: "corp", StartURL: "https://corp.example/start", Region: "us-east-1"}
	assert.False(t, named.IsInline())
	assert.Equal(t, "corp", named.CacheKeySeed())

	inline := Session{Name: "https://corp.example/start", StartURL: "https://corp.example/start", Region: "us-east-1"}
	assert.True(t, inline.IsInline())
	assert.Equal(t, "https://corp.example/start", inline.CacheKeySeed())
}

func TestSourceString(t *testing.T) {
	s := Source{
		Type: "env var",
		Name: "AWS_SSO_SESSION",
		Parent: &Source{
			Type:   "inline specifier",
			Name:   "spec",
			Parent: &Source{Type: "config profile", Name: "P"},
		},
	}
	assert.Equal(t, "env var AWS_SSO_SESSION ← inline specifier spec ← config profile P", s.String())
}
