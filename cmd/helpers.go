package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/praetorian-inc/ssoctl/internal/awsclients"
	"github.com/praetorian-inc/ssoctl/pkg/ssocred"
	"github.com/praetorian-inc/ssoctl/pkg/ssosession"
	"github.com/praetorian-inc/ssoctl/pkg/ssotoken"
	"github.com/praetorian-inc/ssoctl/pkg/utils"
)

// firstEnv returns the first non-empty value among the named environment
// variables.
func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// envTruthy reports whether an environment variable holds a truthy value
// (anything other than empty, "0", "false", or "no", case-insensitively).
func envTruthy(name string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "", "0", "false", "no":
		return false
	}
	return true
}

// awsConfigPath returns the path of the shared AWS config file, honoring
// AWS_CONFIG_FILE.
func awsConfigPath() (string, error) {
	if p := os.Getenv("AWS_CONFIG_FILE"); p != "" {
		return p, nil
	}
	home, err := utils.DefaultCacheHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".aws", "config"), nil
}

// discoverSessions runs session discovery against the shared config file,
// filling in the AWS_SSO_SESSION environment specifier and the
// AWS_DEFAULT_SSO_START_URL/AWS_DEFAULT_SSO_REGION fallback pair.
func discoverSessions(p ssosession.Params) (*ssosession.Result, error) {
	if p.StartURL == "" && p.Region == "" {
		p.StartURL = os.Getenv("AWS_DEFAULT_SSO_START_URL")
		p.Region = os.Getenv("AWS_DEFAULT_SSO_REGION")
	}
	p.EnvSpecifier = os.Getenv("AWS_SSO_SESSION")

	path, err := awsConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := ssosession.LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	return ssosession.Discover(cfg, p)
}

// newTokenEngine wires a token engine for one session's region: OIDC client,
// token cache, registration cache, and the given pending callback.
func newTokenEngine(ctx context.Context, region string, onPending ssotoken.PendingAuthorizationCallback) (*ssotoken.Engine, awsclients.Clients, error) {
	awsCfg, err := awsclients.LoadConfig(ctx, region, "")
	if err != nil {
		return nil, awsclients.Clients{}, err
	}
	clients := awsclients.NewClients(awsCfg)

	tokenCache, err := ssotoken.NewFileTokenCache()
	if err != nil {
		return nil, awsclients.Clients{}, err
	}
	regCache, err := ssotoken.NewFileRegistrationCache()
	if err != nil {
		return nil, awsclients.Clients{}, err
	}
	return ssotoken.NewEngine(clients.OIDC, tokenCache, regCache, onPending), clients, nil
}

// newCredentialEngine wires a credential engine over the given SSO client.
func newCredentialEngine(ssoClient awsclients.SSOClient) (*ssocred.Engine, error) {
	cache, err := ssocred.NewFileCache()
	if err != nil {
		return nil, err
	}
	return ssocred.NewEngine(ssoClient, cache), nil
}

// browserAllowed reports whether the pending-authorization callback may open
// a browser: AWS_SSO_DISABLE_BROWSER wins over the command's flag.
func browserAllowed(noBrowserFlag bool) bool {
	if envTruthy("AWS_SSO_DISABLE_BROWSER") {
		return false
	}
	return !noBrowserFlag
}
