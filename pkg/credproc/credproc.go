// Package credproc implements the credential_process stdout protocol: a
// single JSON object with Version, AccessKeyId, SecretAccessKey,
// SessionToken, and Expiration, written once to stdout.
package credproc

import (
	"encoding/json"
	"io"
	"time"

	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

// Output is the exact JSON shape the credential_process protocol requires.
type Output struct {
	Version         int    `json:"Version"`
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	SessionToken    string `json:"SessionToken"`
	Expiration      string `json:"Expiration"`
}

func isoZ(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// FromRoleCredentials renders creds as the protocol's Output value.
func FromRoleCredentials(creds ssotypes.RoleCredentials) Output {
	return Output{
		Version:         1,
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		Expiration:      isoZ(creds.Expiration),
	}
}

// Write emits exactly one JSON object to w, per the protocol.
func Write(w io.Writer, creds ssotypes.RoleCredentials) error {
	enc := json.NewEncoder(w)
	return enc.Encode(FromRoleCredentials(creds))
}

// Request bundles the four values the credential-process subcommand needs,
// gathered from CLI flags, environment variables
// (AWS_SSO_ROLE_NAME/AWS_SSO_ACCOUNT_ID/AWS_SSO_START_URL/AWS_SSO_REGION),
// and the named profile, in that precedence order.
type Request struct {
	StartURL  string
	Region    string
	AccountID string
	RoleName  string
}

// Merge overlays non-empty fields from override onto r, the precedence rule
// used to combine CLI flags, env vars, and profile-sourced values.
func (r Request) Merge(override Request) Request {
	out := r
	if override.StartURL != "" {
		out.StartURL = override.StartURL
	}
	if override.Region != "" {
		out.Region = override.Region
	}
	if override.AccountID != "" {
		out.AccountID = override.AccountID
	}
	if override.RoleName != "" {
		out.RoleName = override.RoleName
	}
	return out
}

// Complete reports whether every field needed to request credentials is set.
func (r Request) Complete() bool {
	return r.StartURL != "" && r.Region != "" && r.AccountID != "" && r.RoleName != ""
}
