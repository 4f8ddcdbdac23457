package credproc

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

func TestWrite_EmitsExactProtocolShape(t *testing.T) {
	creds := ssotypes.RoleCredentials{
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secret",
		SessionToken:    "token",
		Expiration:      time.Date(2024, 5, 1, 20, 30, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, creds))

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, float64(1), out["Version"])
	assert.Equal(t, "AKIAEXAMPLE", out["AccessKeyId"])
	assert.Equal(t, "secret", out["SecretAccessKey"])
	assert.Equal(t, "token", out["SessionToken"])
	assert.Equal(t, "2024-05-01T20:30:00Z", out["Expiration"])
	assert.Len(t, out, 5, "the protocol object carries exactly five fields")
	assert.NotContains(t, buf.String(), "+00:00")
}

func TestRequestMerge_Precedence(t *testing.T) {
	profile := Request{StartURL: "https://profile", Region: "us-east-1", AccountID: "111111111111", RoleName: "FromProfile"}
	env := Request{RoleName: "FromEnv"}
	flags := Request{AccountID: "222222222222"}

	merged := profile.Merge(env).Merge(flags)
	assert.Equal(t, "https://profile", merged.StartURL)
	assert.Equal(t, "us-east-1", merged.Region)
	assert.Equal(t, "222222222222", merged.AccountID)
	assert.Equal(t, "FromEnv", merged.RoleName)
}

func TestRequestComplete(t *testing.T) {
	assert.False(t, Request{}.Complete())
	assert.False(t, Request{StartURL: "u", Region: "r", AccountID: "a"}.Complete())
	assert.True(t, Request{StartURL: "u", Region: "r", AccountID: "a", RoleName: "x"}.Complete())
}
