// Package ssotoken implements the device-authorization OAuth 2.0 flow
// against the SSO OIDC endpoint, disk-cached access tokens and client
// registrations, refresh-before-full-flow, and logout.
package ssotoken

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
	"github.com/praetorian-inc/ssoctl/pkg/utils"
)

// cachedToken is the on-disk JSON shape for an access token, with dates
// serialized as "YYYY-MM-DDTHH:MM:SSZ" and never "+00:00".
type cachedToken struct {
	StartURL              string   `json:"startUrl"`
	Region                string   `json:"region"`
	AccessToken           string   `json:"accessToken"`
	ExpiresAt             string   `json:"expiresAt"`
	ReceivedAt            string   `json:"receivedAt,omitempty"`
	ClientID              string   `json:"clientId,omitempty"`
	ClientSecret          string   `json:"clientSecret,omitempty"`
	RegistrationExpiresAt string   `json:"registrationExpiresAt,omitempty"`
	RefreshToken          string   `json:"refreshToken,omitempty"`
	Scopes                []string `json:"scopes,omitempty"`
}

// cachedRegistration is the on-disk JSON shape for a client registration,
// cached separately from the token it backs.
type cachedRegistration struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
	ExpiresAt    string   `json:"expiresAt"`
	ReceivedAt   string   `json:"receivedAt,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// isoZ formats t as "YYYY-MM-DDTHH:MM:SSZ", never "+00:00" or "UTC".
func isoZ(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func parseISOZ(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02T15:04:05Z", s)
	if err != nil {
		// tolerate RFC3339 with offset, in case an older cache file used it
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

func toAccessToken(c cachedToken) ssotypes.AccessToken {
	return ssotypes.AccessToken{
		StartURL:              c.StartURL,
		Region:                c.Region,
		AccessToken:           c.AccessToken,
		ExpiresAt:             parseISOZ(c.ExpiresAt),
		ReceivedAt:            parseISOZ(c.ReceivedAt),
		ClientID:              c.ClientID,
		ClientSecret:          c.ClientSecret,
		RegistrationExpiresAt: parseISOZ(c.RegistrationExpiresAt),
		RefreshToken:          c.RefreshToken,
		Scopes:                c.Scopes,
	}
}

func fromAccessToken(t ssotypes.AccessToken) cachedToken {
	return cachedToken{
		StartURL:              t.StartURL,
		Region:                t.Region,
		AccessToken:           t.AccessToken,
		ExpiresAt:             isoZ(t.ExpiresAt),
		ReceivedAt:            isoZ(t.ReceivedAt),
		ClientID:              t.ClientID,
		ClientSecret:          t.ClientSecret,
		RegistrationExpiresAt: isoZ(t.RegistrationExpiresAt),
		RefreshToken:          t.RefreshToken,
		Scopes:                t.Scopes,
	}
}

// TokenCache persists AccessTokens keyed by a session's cache-key seed.
type TokenCache interface {
	Get(session ssotypes.Session) (ssotypes.AccessToken, bool, error)
	Put(session ssotypes.Session, token ssotypes.AccessToken) error
	Delete(session ssotypes.Session) error
}

// RegistrationCache persists ClientRegistrations keyed by the canonical
// JSON of the registration request.
type RegistrationCache interface {
	Get(key RegistrationKey) (ssotypes.ClientRegistration, bool, error)
	Put(key RegistrationKey, reg ssotypes.ClientRegistration) error
}

// RegistrationKey is the canonical-JSON-hashed registration cache key
// material: {tool, startUrl, region, scopes, session_name}, sorted by key.
type RegistrationKey struct {
	Tool        string   `json:"tool"`
	StartURL    string   `json:"startUrl"`
	Region      string   `json:"region"`
	Scopes      []string `json:"scopes,omitempty"`
	SessionName string   `json:"session_name,omitempty"`
}

// CacheKey returns the hex SHA-1 of the canonical JSON of this key, fields
// sorted alphabetically as required by the canonical-JSON cache-key rule.
func (k RegistrationKey) CacheKey() string {
	sorted := struct {
		Region      string   `json:"region"`
		Scopes      []string `json:"scopes,omitempty"`
		SessionName string   `json:"session_name,omitempty"`
		StartURL    string   `json:"startUrl"`
		Tool        string   `json:"tool"`
	}{k.Region, sortedCopy(k.Scopes), k.SessionName, k.StartURL, k.Tool}
	b, _ := json.Marshal(sorted)
	return utils.HashCacheKey(string(b))
}

func sortedCopy(s []string) []string {
	if s == nil {
		return nil
	}
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

// FileTokenCache stores one JSON file per session under dir, named by the
// hex SHA-1 of the session's cache-key seed.
type FileTokenCache struct {
	Dir string
}

// NewFileTokenCache builds a FileTokenCache rooted at ~/.aws/sso/cache.
func NewFileTokenCache() (*FileTokenCache, error) {
	home, err := utils.DefaultCacheHome()
	if err != nil {
		return nil, err
	}
	return &FileTokenCache{Dir: filepath.Join(home, ".aws", "sso", "cache")}, nil
}

func (c *FileTokenCache) path(session ssotypes.Session) string {
	return filepath.Join(c.Dir, utils.HashCacheKey(session.CacheKeySeed())+".json")
}

func (c *FileTokenCache) Get(session ssotypes.Session) (ssotypes.AccessToken, bool, error) {
	data, err := utils.ReadCache(c.path(session))
	if err != nil {
		if os.IsNotExist(err) {
			return ssotypes.AccessToken{}, false, nil
		}
		return ssotypes.AccessToken{}, false, err
	}
	var cached cachedToken
	if err := json.Unmarshal(data, &cached); err != nil {
		return ssotypes.AccessToken{}, false, err
	}
	return toAccessToken(cached), true, nil
}

func (c *FileTokenCache) Put(session ssotypes.Session, token ssotypes.AccessToken) error {
	data, err := json.MarshalIndent(fromAccessToken(token), "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(c.path(session), data, 0600)
}

func (c *FileTokenCache) Delete(session ssotypes.Session) error {
	err := os.Remove(c.path(session))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// FileRegistrationCache stores client registrations the same way, in the
// token cache's directory under a "reg-" file-name prefix, so a registration
// file never collides with a token cache file even if their hashed names
// happened to coincide.
type FileRegistrationCache struct {
	Dir string
}

// NewFileRegistrationCache builds a FileRegistrationCache rooted at
// ~/.aws/sso/cache; registrations share the token cache's directory under a
// "reg-" file prefix.
func NewFileRegistrationCache() (*FileRegistrationCache, error) {
	home, err := utils.DefaultCacheHome()
	if err != nil {
		return nil, err
	}
	return &FileRegistrationCache{Dir: filepath.Join(home, ".aws", "sso", "cache")}, nil
}

func (c *FileRegistrationCache) path(key RegistrationKey) string {
	return filepath.Join(c.Dir, "reg-"+key.CacheKey()+".json")
}

func (c *FileRegistrationCache) Get(key RegistrationKey) (ssotypes.ClientRegistration, bool, error) {
	data, err := utils.ReadCache(c.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ssotypes.ClientRegistration{}, false, nil
		}
		return ssotypes.ClientRegistration{}, false, err
	}
	var cached cachedRegistration
	if err := json.Unmarshal(data, &cached); err != nil {
		return ssotypes.ClientRegistration{}, false, err
	}
	return ssotypes.ClientRegistration{
		ClientID:     cached.ClientID,
		ClientSecret: cached.ClientSecret,
		ExpiresAt:    parseISOZ(cached.ExpiresAt),
		ReceivedAt:   parseISOZ(cached.ReceivedAt),
		Scopes:       cached.Scopes,
	}, true, nil
}

func (c *FileRegistrationCache) Put(key RegistrationKey, reg ssotypes.ClientRegistration) error {
	cached := cachedRegistration{
		ClientID:     reg.ClientID,
		ClientSecret: reg.ClientSecret,
		ExpiresAt:    isoZ(reg.ExpiresAt),
		ReceivedAt:   isoZ(reg.ReceivedAt),
		Scopes:       reg.Scopes,
	}
	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(c.path(key), data, 0600)
}
