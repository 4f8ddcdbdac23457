// Package consoleurl builds AWS federation console launch URLs — a
// getSigninToken request against the federation endpoint followed by a
// login URL carrying that token — and encodes the compact console-launch
// config token.
package consoleurl

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const federationEndpoint = "https://signin.aws.amazon.com/federation"

// regionalFederationEndpoint returns the region-scoped federation endpoint,
// falling back to the global one when region is empty.
func regionalFederationEndpoint(region string) string {
	if region == "" {
		return federationEndpoint
	}
	return fmt.Sprintf("https://%s.signin.aws.amazon.com/federation", region)
}

// Session is the {sessionId, sessionKey, sessionToken} payload the
// getSigninToken request carries.
type Session struct {
	SessionID    string `json:"sessionId"`
	SessionKey   string `json:"sessionKey"`
	SessionToken string `json:"sessionToken"`
}

// Params gathers the values needed to build a launch URL.
type Params struct {
	Region      string
	Issuer      string
	Destination string
	Session     Session
	// OverrideRegionInDestination resolves the Destination/region
	// interaction open question: when true, any existing region= query
	// parameters on Destination are stripped and replaced with Region;
	// when false, a region= parameter is appended only if one is not
	// already present.
	OverrideRegionInDestination bool
}

// FetchSigninToken performs the Action=getSigninToken round trip and
// returns the token AWS issues for the given session.
func FetchSigninToken(ctx context.Context, client *http.Client, region string, session Session) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("marshaling session: %w", err)
	}

	endpoint := regionalFederationEndpoint(region)
	reqURL := fmt.Sprintf("%s?Action=getSigninToken&Session=%s", endpoint, url.QueryEscape(string(sessionJSON)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("building getSigninToken request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting signin token: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		SigninToken string `json:"SigninToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding signin token response: %w", err)
	}
	if out.SigninToken == "" {
		return "", fmt.Errorf("empty signin token in response")
	}
	return out.SigninToken, nil
}

// BuildLoginURL builds the Action=login federation URL from an
// already-fetched signin token, applying the destination/region merge rule.
func BuildLoginURL(p Params, signinToken string) (string, error) {
	dest, err := mergeRegion(p.Destination, p.Region, p.OverrideRegionInDestination)
	if err != nil {
		return "", err
	}

	endpoint := regionalFederationEndpoint(p.Region)
	values := url.Values{}
	values.Set("Action", "login")
	values.Set("Issuer", p.Issuer)
	values.Set("Destination", dest)
	values.Set("SigninToken", signinToken)

	return endpoint + "?" + values.Encode(), nil
}

// Launch performs the full two-step federation flow: fetch a signin token
// then build the login URL.
func Launch(ctx context.Context, client *http.Client, p Params) (string, error) {
	token, err := FetchSigninToken(ctx, client, p.Region, p.Session)
	if err != nil {
		return "", err
	}
	return BuildLoginURL(p, token)
}

// mergeRegion applies the resolved Open Question: when override is true,
// every existing region= query parameter on dest is stripped and replaced
// with region; otherwise region is appended only if dest has none already.
func mergeRegion(dest, region string, override bool) (string, error) {
	if dest == "" || region == "" {
		return dest, nil
	}

	u, err := url.Parse(dest)
	if err != nil {
		return "", fmt.Errorf("parsing destination %q: %w", dest, err)
	}

	q := u.Query()
	if override {
		q.Del("region")
		q.Set("region", region)
	} else if q.Get("region") == "" {
		q.Set("region", region)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ConfigToken packages console launch parameters as compact JSON with short
// field keys (v, ssourl, ssoreg, acc, rol, reg, url, iss, dst, dur), kept
// terse so the base64url-encoded token stays short enough to paste around.
type ConfigToken struct {
	Version      int    `json:"v"`
	SSOStartURL  string `json:"ssourl,omitempty"`
	SSORegion    string `json:"ssoreg,omitempty"`
	AccountID    string `json:"acc,omitempty"`
	RoleName     string `json:"rol,omitempty"`
	Region       string `json:"reg,omitempty"`
	URL          string `json:"url,omitempty"`
	Issuer       string `json:"iss,omitempty"`
	Destination  string `json:"dst,omitempty"`
	DurationSecs int    `json:"dur,omitempty"`
}

const configTokenVersion = 1

// EncodeConfigToken renders t as base64url (no padding) compact JSON.
func EncodeConfigToken(t ConfigToken) (string, error) {
	t.Version = configTokenVersion
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshaling config token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeConfigToken parses a token produced by EncodeConfigToken.
func DecodeConfigToken(encoded string) (ConfigToken, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return ConfigToken{}, fmt.Errorf("decoding config token: %w", err)
	}
	var t ConfigToken
	if err := json.Unmarshal(b, &t); err != nil {
		return ConfigToken{}, fmt.Errorf("unmarshaling config token: %w", err)
	}
	return t, nil
}

// DurationString renders the duration in the ISO-8601 "PT<n>S" shape used
// elsewhere in this codebase for session durations, when a caller needs it
// in that form rather than as raw seconds.
func DurationString(seconds int) string {
	return "PT" + strconv.Itoa(seconds) + "S"
}
