package ssosession

import (
	"strings"

	"gopkg.in/ini.v1"

	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

// ProfileEntry is one [profile X] or the default section of ~/.aws/config,
// with only the fields session discovery cares about.
type ProfileEntry struct {
	Name       string
	SSOSession string // sso_session = X, when the profile references a named session
	StartURL   string // sso_start_url, when the profile embeds an inline session
	Region     string // sso_region
	Scopes     []string
}

// SessionEntry is one [sso-session Y] section.
type SessionEntry struct {
	Name               string
	StartURL           string
	Region             string
	RegistrationScopes []string
}

// ConfigFile is the parsed subset of ~/.aws/config relevant to session
// discovery.
type ConfigFile struct {
	Profiles map[string]ProfileEntry
	Sessions map[string]SessionEntry
}

// LoadConfigFile parses the ini-format AWS config file at path using
// gopkg.in/ini.v1, the natural library for this format, into profile and
// sso-session entries. A missing file yields an empty, non-nil ConfigFile.
func LoadConfigFile(path string) (*ConfigFile, error) {
	cf := &ConfigFile{Profiles: map[string]ProfileEntry{}, Sessions: map[string]SessionEntry{}}

	opts := ini.LoadOptions{Loose: true, AllowNonUniqueSections: false}
	f, err := ini.LoadSources(opts, path)
	if err != nil {
		return cf, err
	}

	for _, section := range f.Sections() {
		name := section.Name()
		switch {
		case name == ini.DefaultSection:
			continue
		case name == "default":
			cf.Profiles["default"] = entryFromSection("default", section)
		case strings.HasPrefix(name, "profile "):
			profileName := strings.TrimSpace(strings.TrimPrefix(name, "profile "))
			cf.Profiles[profileName] = entryFromSection(profileName, section)
		case strings.HasPrefix(name, "sso-session "):
			sessionName := strings.TrimSpace(strings.TrimPrefix(name, "sso-session "))
			scopes := splitScopes(section.Key("sso_registration_scopes").String())
			cf.Sessions[sessionName] = SessionEntry{
				Name:               sessionName,
				StartURL:           section.Key("sso_start_url").String(),
				Region:             section.Key("sso_region").String(),
				RegistrationScopes: scopes,
			}
		}
	}
	return cf, nil
}

func entryFromSection(name string, section *ini.Section) ProfileEntry {
	return ProfileEntry{
		Name:       name,
		SSOSession: section.Key("sso_session").String(),
		StartURL:   section.Key("sso_start_url").String(),
		Region:     section.Key("sso_region").String(),
		Scopes:     splitScopes(section.Key("sso_registration_scopes").String()),
	}
}

func splitScopes(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsMalformed reports whether a profile entry that has started down the
// inline-session path is missing one of sso_start_url/sso_region — these
// contribute to malformed_session_errors rather than aborting the scan.
func (p ProfileEntry) IsMalformed() bool {
	if p.SSOSession != "" {
		return false
	}
	hasURL := p.StartURL != ""
	hasRegion := p.Region != ""
	return hasURL != hasRegion
}

// HasInlineSession reports whether the profile carries a usable inline
// session (both start URL and region present, no named session).
func (p ProfileEntry) HasInlineSession() bool {
	return p.SSOSession == "" && p.StartURL != "" && p.Region != ""
}

// AsInlineSession converts a profile's embedded sso_start_url/sso_region
// into an inline Session: its name is its start URL, so two profiles
// embedding the same start URL collapse into one session.
func (p ProfileEntry) AsInlineSession() ssotypes.Session {
	return ssotypes.Session{Name: p.StartURL, StartURL: p.StartURL, Region: p.Region, RegistrationScopes: p.Scopes}
}

// AsSession converts a named [sso-session] entry into a Session.
func (s SessionEntry) AsSession() ssotypes.Session {
	return ssotypes.Session{Name: s.Name, StartURL: s.StartURL, Region: s.Region, RegistrationScopes: s.RegistrationScopes}
}
