package consoleurl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigToken_RoundTrip(t *testing.T) {
	tokens := []ConfigToken{
		{SSOStartURL: "https://corp.awsapps.com/start", SSORegion: "us-east-2", AccountID: "123456789012", RoleName: "Admin"},
		{SSOStartURL: "https://corp.awsapps.com/start", SSORegion: "us-east-2", AccountID: "123456789012", RoleName: "Admin",
			Region: "eu-west-1", URL: "https://corp.example", Issuer: "https://issuer.example", Destination: "https://console.aws.amazon.com/ec2", DurationSecs: 3600},
		{AccountID: "000000000042", RoleName: "ReadOnly"},
	}

	for _, tok := range tokens {
		encoded, err := EncodeConfigToken(tok)
		require.NoError(t, err)
		assert.NotContains(t, encoded, "=", "config tokens are unpadded base64url")

		decoded, err := DecodeConfigToken(encoded)
		require.NoError(t, err)
		tok.Version = 1
		assert.Equal(t, tok, decoded)
	}
}

func TestConfigToken_UsesShortKeys(t *testing.T) {
	encoded, err := EncodeConfigToken(ConfigToken{SSOStartURL: "https://u", SSORegion: "r", AccountID: "a", RoleName: "x", DurationSecs: 60})
	require.NoError(t, err)

	decoded, err := DecodeConfigToken(encoded)
	require.NoError(t, err)
	b, err := json.Marshal(decoded)
	require.NoError(t, err)
	for _, key := range []string{`"v"`, `"ssourl"`, `"ssoreg"`, `"acc"`, `"rol"`, `"dur"`} {
		assert.Contains(t, string(b), key)
	}
}

func TestMergeRegion(t *testing.T) {
	// No region present, no override: appended.
	got, err := mergeRegion("https://console.aws.amazon.com/ec2", "eu-west-1", false)
	require.NoError(t, err)
	assert.Contains(t, got, "region=eu-west-1")

	// Region present, no override: left alone.
	got, err = mergeRegion("https://console.aws.amazon.com/ec2?region=us-east-1", "eu-west-1", false)
	require.NoError(t, err)
	assert.Contains(t, got, "region=us-east-1")
	assert.NotContains(t, got, "eu-west-1")

	// Region present, override: stripped and replaced.
	got, err = mergeRegion("https://console.aws.amazon.com/ec2?region=us-east-1&region=us-west-2", "eu-west-1", true)
	require.NoError(t, err)
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, []string{"eu-west-1"}, u.Query()["region"])
}

func TestBuildLoginURL(t *testing.T) {
	p := Params{
		Region:      "us-east-2",
		Issuer:      "https://issuer.example",
		Destination: "https://console.aws.amazon.com/ec2",
	}
	got, err := BuildLoginURL(p, "SIGNIN-TOKEN")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, "https://us-east-2.signin.aws.amazon.com/federation?"))
	u, err := url.Parse(got)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "login", q.Get("Action"))
	assert.Equal(t, "https://issuer.example", q.Get("Issuer"))
	assert.Equal(t, "SIGNIN-TOKEN", q.Get("SigninToken"))
	assert.Contains(t, q.Get("Destination"), "region=us-east-2")
}

func TestFetchSigninToken(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]string{"SigninToken": "TOK"})
	}))
	defer server.Close()

	session := Session{SessionID: "AKIA...", SessionKey: "secret", SessionToken: "token"}
	client := server.Client()
	client.Transport = rewriteHost(server.URL, client.Transport)

	tok, err := FetchSigninToken(context.Background(), client, "us-east-2", session)
	require.NoError(t, err)
	assert.Equal(t, "TOK", tok)
	assert.Equal(t, "getSigninToken", gotQuery.Get("Action"))

	var sent Session
	require.NoError(t, json.Unmarshal([]byte(gotQuery.Get("Session")), &sent))
	assert.Equal(t, session, sent)
}

// rewriteHost redirects every request to the test server regardless of the
// federation host the code under test built.
func rewriteHost(target string, base http.RoundTripper) http.RoundTripper {
	u, _ := url.Parse(target)
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = u.Scheme
		req.URL.Host = u.Host
		return base.RoundTrip(req)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
