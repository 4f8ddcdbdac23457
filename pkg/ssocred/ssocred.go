// Package ssocred exchanges a cached access token for short-lived role
// credentials via sso:GetRoleCredentials, with a disk cache keyed by
// request fingerprint.
package ssocred

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sso"
	"github.com/aws/aws-sdk-go-v2/service/sso/types"
	"github.com/aws/smithy-go"

	"github.com/praetorian-inc/ssoctl/internal/awsclients"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
	"github.com/praetorian-inc/ssoctl/pkg/utils"
)

// RequestKey is the canonical-JSON-hashed cache key material:
// {startUrl, roleName, accountId}.
type RequestKey struct {
	StartURL  string `json:"startUrl"`
	RoleName  string `json:"roleName"`
	AccountID string `json:"accountId"`
}

// CacheKey returns the hex SHA-1 of the canonical JSON of this key.
func (k RequestKey) CacheKey() string {
	sorted := struct {
		AccountID string `json:"accountId"`
		RoleName  string `json:"roleName"`
		StartURL  string `json:"startUrl"`
	}{k.AccountID, k.RoleName, k.StartURL}
	b, _ := json.Marshal(sorted)
	return utils.HashCacheKey(string(b))
}

type cachedCredentials struct {
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	SessionToken    string `json:"SessionToken"`
	Expiration      string `json:"Expiration"`
}

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
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// Cache persists RoleCredentials keyed by RequestKey.
type Cache interface {
	Get(key RequestKey) (ssotypes.RoleCredentials, bool, error)
	Put(key RequestKey, creds ssotypes.RoleCredentials) error
}

// FileCache stores one JSON file per request key under ~/.aws/cli/cache,
// matching where the AWS CLI itself caches role credentials.
type FileCache struct {
	Dir string
}

// NewFileCache builds a FileCache rooted at ~/.aws/cli/cache.
func NewFileCache() (*FileCache, error) {
	home, err := utils.DefaultCacheHome()
	if err != nil {
		return nil, err
	}
	return &FileCache{Dir: filepath.Join(home, ".aws", "cli", "cache")}, nil
}

func (c *FileCache) path(key RequestKey) string {
	return filepath.Join(c.Dir, key.CacheKey()+".json")
}

func (c *FileCache) Get(key RequestKey) (ssotypes.RoleCredentials, bool, error) {
	data, err := utils.ReadCache(c.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ssotypes.RoleCredentials{}, false, nil
		}
		return ssotypes.RoleCredentials{}, false, err
	}
	var cached cachedCredentials
	if err := json.Unmarshal(data, &cached); err != nil {
		return ssotypes.RoleCredentials{}, false, err
	}
	return ssotypes.RoleCredentials{
		AccessKeyID:     cached.AccessKeyID,
		SecretAccessKey: cached.SecretAccessKey,
		SessionToken:    cached.SessionToken,
		Expiration:      parseISOZ(cached.Expiration),
	}, true, nil
}

func (c *FileCache) Put(key RequestKey, creds ssotypes.RoleCredentials) error {
	cached := cachedCredentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		Expiration:      isoZ(creds.Expiration),
	}
	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(c.path(key), data, 0600)
}

// Engine exchanges tokens for role credentials, reusing the disk cache
// before calling the service.
type Engine struct {
	SSO          awsclients.SSOClient
	Cache        Cache
	Now          func() time.Time
	ExpiryWindow time.Duration
}

// NewEngine builds an Engine with production defaults.
func NewEngine(ssoClient awsclients.SSOClient, cache Cache) *Engine {
	return &Engine{SSO: ssoClient, Cache: cache, Now: time.Now, ExpiryWindow: 0}
}

// GetRoleCredentials returns cached credentials if they have more than
// ExpiryWindow left, otherwise calls sso:GetRoleCredentials, caches, and
// returns the result.
func (e *Engine) GetRoleCredentials(ctx context.Context, startURL, accessToken, accountID, roleName string) (ssotypes.RoleCredentials, error) {
	key := RequestKey{StartURL: startURL, RoleName: roleName, AccountID: accountID}
	if cached, ok, err := e.Cache.Get(key); err == nil && ok && cached.Fresh(e.Now(), e.ExpiryWindow) {
		return cached, nil
	}

	resp, err := e.SSO.GetRoleCredentials(ctx, &sso.GetRoleCredentialsInput{
		AccessToken: aws.String(accessToken),
		AccountId:   aws.String(accountID),
		RoleName:    aws.String(roleName),
	})
	if err != nil {
		if isUnauthorized(err) {
			return ssotypes.RoleCredentials{}, ssoerr.Wrap(ssoerr.KindUnauthorizedSSOToken, err, "SSO token rejected for role %s in account %s; rerun login", roleName, accountID)
		}
		return ssotypes.RoleCredentials{}, ssoerr.Wrap(ssoerr.KindServiceError, err, "fetching role credentials")
	}

	creds := ssotypes.RoleCredentials{
		AccessKeyID:     aws.ToString(resp.RoleCredentials.AccessKeyId),
		SecretAccessKey: aws.ToString(resp.RoleCredentials.SecretAccessKey),
		SessionToken:    aws.ToString(resp.RoleCredentials.SessionToken),
		Expiration:      time.UnixMilli(resp.RoleCredentials.Expiration),
	}
	if err := e.Cache.Put(key, creds); err != nil {
		return ssotypes.RoleCredentials{}, ssoerr.Wrap(ssoerr.KindServiceError, err, "writing credentials cache")
	}
	return creds, nil
}

func isUnauthorized(err error) bool {
	var unauthorized *types.UnauthorizedException
	if errors.As(err, &unauthorized) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "UnauthorizedException"
	}
	return false
}
