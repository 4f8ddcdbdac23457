package ssosession

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

// Params bundles every optional input to session discovery, in the
// precedence order the contract defines (highest first): ProfileName,
// SessionName, the (StartURL, Region) CLI pair, Specifier, then the
// environment-variable specifier is supplied by the caller as EnvSpecifier
// since ssoctl treats argument parsing and env-var reading as external
// collaborators.
type Params struct {
	ProfileName  string
	SessionName  string
	StartURL     string
	Region       string
	Specifier    string
	EnvSpecifier string
	LoginAll     bool
}

// Result is the outcome of a successful discovery: the selected sessions
// plus diagnostics about the rest of the config file.
type Result struct {
	Sessions               []ssotypes.Session
	AllSessions            []ssotypes.Session
	Mismatches             []ssotypes.MismatchedSession
	MalformedSessionErrors []error
}

// Discover implements the precedence chain, returning a non-empty ordered
// list of sessions or a taxonomized error.
func Discover(cfg *ConfigFile, p Params) (*Result, error) {
	// Explicit profile name.
	if p.ProfileName != "" {
		return discoverFromProfile(cfg, p.ProfileName)
	}

	// Explicit session name.
	if p.SessionName != "" {
		entry, ok := cfg.Sessions[p.SessionName]
		if !ok {
			return nil, ssoerr.New(ssoerr.KindConfigSessionError, "no sso-session named %q in configuration", p.SessionName)
		}
		return &Result{Sessions: []ssotypes.Session{entry.AsSession()}}, nil
	}

	// CLI (start_url, region) pair: encoded as an inline specifier.
	if p.StartURL != "" && p.Region != "" {
		sess := ssotypes.Session{Name: p.StartURL, StartURL: p.StartURL, Region: p.Region}
		return &Result{Sessions: []ssotypes.Session{sess}}, nil
	}

	// CLI bare specifier, then the env-var specifier, then a full scan.
	effectiveSpecifier := p.Specifier
	if effectiveSpecifier == "" {
		effectiveSpecifier = p.EnvSpecifier
	}

	if effectiveSpecifier != "" {
		spec, err := ParseSpecifier(effectiveSpecifier)
		if err != nil {
			return nil, err
		}
		if spec.Inline != nil {
			return &Result{Sessions: []ssotypes.Session{*spec.Inline}}, nil
		}
		result, err := discoverByFilter(cfg, spec, p.LoginAll)
		if err != nil {
			return nil, err
		}
		// A region given alongside a specifier that uniquely matched a start
		// URL is advisory: contradiction warns but never aborts.
		if p.Region != "" && len(result.Sessions) == 1 && result.Sessions[0].Region != p.Region {
			slog.Warn("specifier region disagrees with the matched session's region; using the session's",
				"specifier_region", p.Region, "session", result.Sessions[0].Name, "session_region", result.Sessions[0].Region)
		}
		return result, nil
	}

	return discoverByFilter(cfg, Specifier{}, p.LoginAll)
}

func discoverFromProfile(cfg *ConfigFile, profileName string) (*Result, error) {
	profile, ok := cfg.Profiles[profileName]
	if !ok {
		return nil, ssoerr.New(ssoerr.KindConfigProfileError, "no profile named %q in configuration", profileName)
	}
	if profile.SSOSession != "" {
		entry, ok := cfg.Sessions[profile.SSOSession]
		if !ok {
			return nil, ssoerr.New(ssoerr.KindConfigSessionError, "profile %q references sso-session %q, which does not exist", profileName, profile.SSOSession)
		}
		return &Result{Sessions: []ssotypes.Session{entry.AsSession()}}, nil
	}
	if !profile.HasInlineSession() {
		return nil, ssoerr.New(ssoerr.KindConfigProfileError, "profile %q has no sso_session and no complete inline sso_start_url/sso_region", profileName)
	}
	return &Result{Sessions: []ssotypes.Session{profile.AsInlineSession()}}, nil
}

// FindAllSessions harvests every entry with both start_url and region from
// profiles and named sessions, deduplicates by name, and records mismatches
// — the building block behind both the "scan all" discovery path and
// `ssoctl lookup`/`login --all` style commands. A mismatch is recorded both
// when two entries share a session name but disagree on another field, and
// when entries for the same start URL disagree on region (the typical shape
// of a profile-embedded session drifting from the named sso-session it
// duplicates).
func FindAllSessions(cfg *ConfigFile) *Result {
	type harvested struct {
		session ssotypes.Session
		source  ssotypes.Source
	}
	byName := map[string]harvested{}
	var ordered []string
	var all []harvested
	var malformed []error
	var mismatches []ssotypes.MismatchedSession

	// Profiles that reference a named session contribute provenance, not a
	// session of their own.
	referencedBy := map[string][]string{}
	for _, name := range sortedProfileNames(cfg) {
		if s := cfg.Profiles[name].SSOSession; s != "" {
			referencedBy[s] = append(referencedBy[s], name)
		}
	}

	record := func(s ssotypes.Session, source ssotypes.Source) {
		entry := harvested{session: s, source: source}
		all = append(all, entry)
		if prior, ok := byName[s.Name]; ok {
			if !prior.session.Equal(s) {
				mismatches = append(mismatches, ssotypes.MismatchedSession{
					Name:      s.Name,
					FieldName: firstDifferingField(prior.session, s),
					A:         prior.session,
					ASource:   prior.source,
					B:         s,
					BSource:   source,
				})
			}
			return
		}
		byName[s.Name] = entry
		ordered = append(ordered, s.Name)
	}

	for _, name := range sortedProfileNames(cfg) {
		p := cfg.Profiles[name]
		if p.SSOSession != "" {
			continue // resolved via the session section itself
		}
		if p.IsMalformed() {
			malformed = append(malformed, fmt.Errorf("profile %q has only one of sso_start_url/sso_region", name))
			continue
		}
		if p.HasInlineSession() {
			record(p.AsInlineSession(), ssotypes.Source{Type: "config profile", Name: name})
		}
	}
	for _, name := range sortedSessionNames(cfg) {
		s := cfg.Sessions[name]
		if s.StartURL == "" || s.Region == "" {
			malformed = append(malformed, fmt.Errorf("sso-session %q has only one of sso_start_url/sso_region", name))
			continue
		}
		source := ssotypes.Source{Type: "sso-session", Name: name}
		if refs := referencedBy[name]; len(refs) > 0 {
			source.Parent = &ssotypes.Source{Type: "config profile", Name: strings.Join(refs, ", ")}
		}
		record(s.AsSession(), source)
	}

	// Cross-name conflicts: distinct entries for one start URL whose regions
	// disagree. Attributed to the named session when one side has a name.
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			a, b := all[i], all[j]
			if a.session.Name == b.session.Name || a.session.StartURL != b.session.StartURL {
				continue
			}
			if a.session.Region == b.session.Region {
				continue
			}
			name := a.session.Name
			if !b.session.IsInline() {
				name = b.session.Name
			}
			mismatches = append(mismatches, ssotypes.MismatchedSession{
				Name:      name,
				FieldName: "region",
				A:         a.session,
				ASource:   a.source,
				B:         b.session,
				BSource:   b.source,
			})
		}
	}

	result := &Result{MalformedSessionErrors: malformed, Mismatches: mismatches}
	for _, name := range ordered {
		result.AllSessions = append(result.AllSessions, byName[name].session)
	}
	return result
}

func discoverByFilter(cfg *ConfigFile, spec Specifier, loginAll bool) (*Result, error) {
	all := FindAllSessions(cfg)
	var matched []ssotypes.Session
	if spec.Raw == "" {
		matched = all.AllSessions
	} else {
		for _, s := range all.AllSessions {
			if spec.Matches(s) {
				matched = append(matched, s)
			}
		}
	}

	if len(matched) == 0 {
		return nil, ssoerr.New(ssoerr.KindConfigSessionError, "no session matched specifier %q", spec.Raw)
	}
	if len(matched) > 1 && !loginAll {
		return nil, ssoerr.New(ssoerr.KindConfigSessionError, "specifier %q is ambiguous: matched %d sessions", spec.Raw, len(matched))
	}

	all.Sessions = matched
	return all, nil
}

// RaiseForMismatch fails if any of the selected sessions appears in the
// result's recorded mismatches.
func RaiseForMismatch(result *Result, selected []ssotypes.Session) error {
	selectedNames := map[string]bool{}
	for _, s := range selected {
		selectedNames[s.Name] = true
	}
	for _, m := range result.Mismatches {
		if selectedNames[m.Name] {
			return ssoerr.New(ssoerr.KindMismatchedSession,
				"session %q is defined inconsistently: %s disagrees with %s on field %s",
				m.Name, m.ASource.String(), m.BSource.String(), m.FieldName)
		}
	}
	return nil
}

func firstDifferingField(a, b ssotypes.Session) string {
	if a.StartURL != b.StartURL {
		return "start_url"
	}
	if a.Region != b.Region {
		return "region"
	}
	return "registration_scopes"
}

func sortedProfileNames(cfg *ConfigFile) []string {
	names := make([]string, 0, len(cfg.Profiles))
	for n := range cfg.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func sortedSessionNames(cfg *ConfigFile) []string {
	names := make([]string, 0, len(cfg.Sessions))
	for n := range cfg.Sessions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
