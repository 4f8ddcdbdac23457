// Package awsconfig writes and reads [profile] / [sso-session] sections of
// ~/.aws/config. It edits via gopkg.in/ini.v1 rather than rendering
// sections from a template so the keep/overwrite/discard merge semantics
// can inspect and preserve existing keys.
package awsconfig

import (
	"bytes"
	"fmt"

	"gopkg.in/ini.v1"

	"github.com/praetorian-inc/ssoctl/pkg/utils"
)

// ExistingConfigAction controls how WriteProfile merges into a file that
// already has a section for the profile being written.
type ExistingConfigAction string

const (
	// ActionKeep leaves every existing key in the profile section alone,
	// only adding keys the section doesn't already have.
	ActionKeep ExistingConfigAction = "keep"
	// ActionOverwrite replaces every key WriteProfile sets, leaving
	// unrelated keys in the section untouched.
	ActionOverwrite ExistingConfigAction = "overwrite"
	// ActionDiscard deletes the existing section entirely before writing.
	ActionDiscard ExistingConfigAction = "discard"
)

// Profile is the set of keys WriteProfile can set on a [profile <Name>]
// section.
type Profile struct {
	Name                string
	SSOSession          string // sso_session, when referencing a named session
	SSOStartURL         string // sso_start_url, for an inline session
	SSORegion           string // sso_region, for an inline session
	SSOAccountID        string
	SSORoleName         string
	Region              string
	Output              string
	CredentialProcess   string // explicit override; computed default used if empty
	NoCredentialProcess bool   // omit the credential_process line entirely
	Tool                string // the binary name used to build the default credential_process line
}

// SessionSection is a [sso-session <Name>] section.
type SessionSection struct {
	Name               string
	StartURL           string
	Region             string
	RegistrationScopes []string
}

// DefaultCredentialProcess renders the default
// `ssoctl credential-process --profile "<name>"` line, quoting the profile
// name.
func DefaultCredentialProcess(tool, profileName string) string {
	if tool == "" {
		tool = "ssoctl"
	}
	return fmt.Sprintf("%s credential-process --profile %q", tool, profileName)
}

// WriteProfile merges p into the ini file at path according to action,
// creating the file and its parent directory if necessary. The file is
// rewritten on every call, even when no key changed.
func WriteProfile(path string, p Profile, action ExistingConfigAction) error {
	f, err := loadOrCreate(path)
	if err != nil {
		return err
	}

	sectionName := "profile " + p.Name
	if p.Name == "default" {
		sectionName = "default"
	}

	if action == ActionDiscard {
		f.DeleteSection(sectionName)
	}

	section, err := f.GetSection(sectionName)
	existed := err == nil
	if !existed {
		section, err = f.NewSection(sectionName)
		if err != nil {
			return fmt.Errorf("creating section %q: %w", sectionName, err)
		}
	}

	desired := map[string]string{}
	if p.SSOSession != "" {
		desired["sso_session"] = p.SSOSession
	}
	if p.SSOStartURL != "" {
		desired["sso_start_url"] = p.SSOStartURL
	}
	if p.SSORegion != "" {
		desired["sso_region"] = p.SSORegion
	}
	if p.SSOAccountID != "" {
		desired["sso_account_id"] = p.SSOAccountID
	}
	if p.SSORoleName != "" {
		desired["sso_role_name"] = p.SSORoleName
	}
	if p.Region != "" {
		desired["region"] = p.Region
	}
	if p.Output != "" {
		desired["output"] = p.Output
	}
	if !p.NoCredentialProcess {
		credProcess := p.CredentialProcess
		if credProcess == "" {
			credProcess = DefaultCredentialProcess(p.Tool, p.Name)
		}
		desired["credential_process"] = credProcess
	}

	for key, value := range desired {
		if existed && action == ActionKeep && section.HasKey(key) {
			continue
		}
		section.Key(key).SetValue(value)
	}

	return save(f, path)
}

// WriteSession merges an [sso-session <Name>] section into the ini file at
// path, always overwriting (named sessions are expected to be a single
// source of truth for the session's start URL/region).
func WriteSession(path string, s SessionSection) error {
	f, err := loadOrCreate(path)
	if err != nil {
		return err
	}

	section, err := f.GetSection("sso-session " + s.Name)
	if err != nil {
		section, err = f.NewSection("sso-session " + s.Name)
		if err != nil {
			return fmt.Errorf("creating sso-session section %q: %w", s.Name, err)
		}
	}

	section.Key("sso_start_url").SetValue(s.StartURL)
	section.Key("sso_region").SetValue(s.Region)
	if len(s.RegistrationScopes) > 0 {
		scopes := s.RegistrationScopes[0]
		for _, sc := range s.RegistrationScopes[1:] {
			scopes += "," + sc
		}
		section.Key("sso_registration_scopes").SetValue(scopes)
	}

	return save(f, path)
}

// save writes f to path through a temp file renamed into place, creating
// the parent directory if necessary.
func save(f *ini.File, path string) error {
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return err
	}
	return utils.WriteFileAtomic(path, buf.Bytes(), 0644)
}

// ReadProfile returns the named profile's keys, or ok=false if absent.
func ReadProfile(path, name string) (Profile, bool, error) {
	f, err := ini.LoadSources(ini.LoadOptions{Loose: true}, path)
	if err != nil {
		return Profile{}, false, err
	}
	sectionName := "profile " + name
	if name == "default" {
		sectionName = "default"
	}
	section, err := f.GetSection(sectionName)
	if err != nil {
		return Profile{}, false, nil
	}
	return Profile{
		Name:              name,
		SSOSession:        section.Key("sso_session").String(),
		SSOStartURL:       section.Key("sso_start_url").String(),
		SSORegion:         section.Key("sso_region").String(),
		SSOAccountID:      section.Key("sso_account_id").String(),
		SSORoleName:       section.Key("sso_role_name").String(),
		Region:            section.Key("region").String(),
		Output:            section.Key("output").String(),
		CredentialProcess: section.Key("credential_process").String(),
	}, true, nil
}

func loadOrCreate(path string) (*ini.File, error) {
	f, err := ini.LoadSources(ini.LoadOptions{Loose: true, AllowNonUniqueSections: false}, path)
	if err != nil {
		return ini.Empty(), nil
	}
	return f, nil
}
