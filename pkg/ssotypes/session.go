package ssotypes

import "strings"

// Session is (session_name, start_url, region, registration_scopes?). A
// session is "named" when Name was taken from configuration, or "inline"
// when Name equals StartURL (the specifier itself was a start URL or an
// inline JSON descriptor).
type Session struct {
	Name               string
	StartURL           string
	Region             string
	RegistrationScopes []string
}

// IsInline reports whether this session's name is its start URL, i.e. it was
// never looked up by name in a config file.
func (s Session) IsInline() bool {
	return s.Name == s.StartURL
}

// CacheKeySeed returns the value the token cache hashes to name its file:
// the session name for a named session, the start URL for an inline one.
func (s Session) CacheKeySeed() string {
	if s.IsInline() {
		return s.StartURL
	}
	return s.Name
}

// Equal compares every field other than Name, used to detect mismatched
// sessions that share a name.
func (s Session) Equal(other Session) bool {
	if s.StartURL != other.StartURL {
		return false
	}
	if s.Region != other.Region {
		return false
	}
	return stringSlicesEqual(s.RegistrationScopes, other.RegistrationScopes)
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Source records the provenance of a configuration value: a chain of
// (type, name, parent) records used only for diagnostics, e.g. "env var
// AWS_SSO_SESSION ← inline specifier ← config profile P".
type Source struct {
	Type   string
	Name   string
	Parent *Source
}

// String renders the provenance chain leaf-to-root separated by " ← ",
// e.g. "env var AWS_SSO_SESSION ← inline specifier ← config profile P".
func (s Source) String() string {
	var parts []string
	cur := &s
	for cur != nil {
		parts = append(parts, cur.Type+" "+cur.Name)
		cur = cur.Parent
	}
	return strings.Join(parts, " ← ")
}

// MismatchedSession records two sessions sharing a name whose fields
// disagree, along with the field that differs and the sources of each.
type MismatchedSession struct {
	Name      string
	FieldName string
	A         Session
	ASource   Source
	B         Session
	BSource   Source
}
