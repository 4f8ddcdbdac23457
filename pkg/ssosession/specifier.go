// Package ssosession locates the SSO session(s) that the rest of ssoctl
// should use, given a specifier, profile name, session name, or explicit
// start-url/region pair, following the precedence chain: explicit profile
// name, explicit session name, a CLI start-url/region pair (treated as an
// inline specifier), a CLI bare specifier, the AWS_SSO_SESSION environment
// variable, then a full scan of the configuration file.
package ssosession

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

// inlineSessionDoc mirrors the JSON-like inline session descriptor a
// specifier may carry: {"sso_start_url": "...", "sso_region": "...",
// "sso_registration_scopes": [...]}.
type inlineSessionDoc struct {
	StartURL           string   `json:"sso_start_url"`
	Region             string   `json:"sso_region"`
	RegistrationScopes []string `json:"sso_registration_scopes,omitempty"`
}

// Specifier is a parsed form of a user-supplied session selector.
type Specifier struct {
	Raw    string
	Inline *ssotypes.Session // non-nil when the specifier was an inline descriptor
	IsURL  bool              // specifier began with "http": literal start-url match
	Regexp *regexp.Regexp    // set when the specifier is matched as a name regexp
}

// ParseSpecifier classifies raw per the data model's Specifier rules: a
// leading "{" is an inline JSON descriptor, a leading "http" matches a
// start URL literally, anything else is a regular expression against
// session names.
func ParseSpecifier(raw string) (Specifier, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(trimmed, "{"):
		var doc inlineSessionDoc
		if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
			return Specifier{}, ssoerr.Wrap(ssoerr.KindInlineSessionError, err, "invalid inline session descriptor %q", raw)
		}
		if doc.StartURL == "" || doc.Region == "" {
			return Specifier{}, ssoerr.New(ssoerr.KindInlineSessionError, "inline session descriptor %q missing sso_start_url or sso_region", raw)
		}
		sess := ssotypes.Session{
			Name:               doc.StartURL,
			StartURL:           doc.StartURL,
			Region:             doc.Region,
			RegistrationScopes: doc.RegistrationScopes,
		}
		return Specifier{Raw: raw, Inline: &sess}, nil
	case strings.HasPrefix(trimmed, "http"):
		return Specifier{Raw: raw, IsURL: true}, nil
	default:
		re, err := regexp.Compile(trimmed)
		if err != nil {
			return Specifier{}, ssoerr.Wrap(ssoerr.KindFormatError, err, "specifier %q is not a valid regular expression", raw)
		}
		return Specifier{Raw: raw, Regexp: re}, nil
	}
}

// EncodeInlineSpecifier renders a (startURL, region) pair the way the CLI
// layer encodes an explicit start-url/region argument pair: as the inline
// JSON descriptor form, so it flows through the same specifier path.
func EncodeInlineSpecifier(startURL, region string) string {
	doc := inlineSessionDoc{StartURL: startURL, Region: region}
	b, _ := json.Marshal(doc)
	return string(b)
}

// Matches reports whether session satisfies this specifier: inline
// specifiers never reach Matches (they resolve directly in ParseSpecifier);
// a URL specifier matches by literal start-url equality; otherwise the
// specifier's regexp is matched against the session name.
func (s Specifier) Matches(session ssotypes.Session) bool {
	if s.IsURL {
		return session.StartURL == s.Raw
	}
	if s.Regexp != nil {
		return s.Regexp.MatchString(session.Name)
	}
	return false
}

func (s Specifier) String() string {
	return fmt.Sprintf("Specifier(%q)", s.Raw)
}
