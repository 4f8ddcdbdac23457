package cmd

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/ssoctl/internal/logs"
	"github.com/praetorian-inc/ssoctl/pkg/awsconfig"
	"github.com/praetorian-inc/ssoctl/pkg/credproc"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
	"github.com/praetorian-inc/ssoctl/pkg/ssosession"
	"github.com/praetorian-inc/ssoctl/pkg/ssotoken"
	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
	"github.com/praetorian-inc/ssoctl/pkg/utils"
)

var (
	credProcProfile   string
	credProcStartURL  string
	credProcRegion    string
	credProcAccountID string
	credProcRoleName  string
)

var credentialProcessCmd = &cobra.Command{
	Use:   "credential-process",
	Short: "Emit role credentials on stdout for the AWS credential_process protocol",
	Long: `Fetch role credentials for a profile and write exactly one JSON object to
stdout in the credential_process format. Configuration is taken from CLI
flags, then the AWS_SSO_* environment variables, then the named profile.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if envTruthy("AWS_SSO_CREDENTIAL_PROCESS_DEBUG") {
			home, err := utils.DefaultCacheHome()
			if err == nil {
				logs.SetLogLevel("debug")
				logger, closeLog, err := logs.NewFileLogger(filepath.Join(home, ".aws", "sso", "aws-sso-credential-process-log.txt"))
				if err == nil {
					slog.SetDefault(logger)
					defer closeLog()
				}
			}
		}

		req := credproc.Request{}
		var namedSession *ssotypes.Session
		if credProcProfile != "" {
			path, err := awsConfigPath()
			if err != nil {
				return err
			}
			profile, ok, err := awsconfig.ReadProfile(path, credProcProfile)
			if err != nil {
				return err
			}
			if !ok {
				return ssoerr.New(ssoerr.KindConfigProfileError, "no profile named %q in configuration", credProcProfile)
			}
			req = credproc.Request{
				StartURL:  profile.SSOStartURL,
				Region:    profile.SSORegion,
				AccountID: profile.SSOAccountID,
				RoleName:  profile.SSORoleName,
			}
			if profile.SSOSession != "" {
				sessions, err := discoverSessions(ssosession.Params{SessionName: profile.SSOSession})
				if err != nil {
					return err
				}
				namedSession = &sessions.Sessions[0]
				req.StartURL = namedSession.StartURL
				req.Region = namedSession.Region
			}
		}

		req = req.Merge(credproc.Request{
			StartURL:  os.Getenv("AWS_SSO_START_URL"),
			Region:    os.Getenv("AWS_SSO_REGION"),
			AccountID: os.Getenv("AWS_SSO_ACCOUNT_ID"),
			RoleName:  os.Getenv("AWS_SSO_ROLE_NAME"),
		})
		req = req.Merge(credproc.Request{
			StartURL:  credProcStartURL,
			Region:    credProcRegion,
			AccountID: credProcAccountID,
			RoleName:  credProcRoleName,
		})

		if !req.Complete() {
			return ssoerr.New(ssoerr.KindInvalidSSOConfig, "credential-process needs a start URL, region, account id, and role name; got %+v", req)
		}
		slog.Debug("credential-process request resolved", "startUrl", req.StartURL, "region", req.Region, "accountId", req.AccountID, "roleName", req.RoleName)

		// The token cache key for a named session depends on the name, so a
		// profile referencing one shares its cached token with `login`.
		session := ssotypes.Session{Name: req.StartURL, StartURL: req.StartURL, Region: req.Region}
		if namedSession != nil && namedSession.StartURL == req.StartURL {
			session = *namedSession
		}
		engine, clients, err := newTokenEngine(ctx, req.Region, ssotoken.NonInteractivePendingCallback)
		if err != nil {
			return err
		}
		token, err := engine.FetchToken(ctx, session)
		if err != nil {
			return err
		}

		credEngine, err := newCredentialEngine(clients.SSO)
		if err != nil {
			return err
		}
		creds, err := credEngine.GetRoleCredentials(ctx, req.StartURL, token.AccessToken, req.AccountID, req.RoleName)
		if err != nil {
			return err
		}
		return credproc.Write(os.Stdout, creds)
	},
}

func init() {
	credentialProcessCmd.Flags().StringVar(&credProcProfile, "profile", "", "profile whose SSO configuration to use")
	credentialProcessCmd.Flags().StringVar(&credProcStartURL, "start-url", "", "SSO start URL")
	credentialProcessCmd.Flags().StringVar(&credProcRegion, "region", "", "SSO region")
	credentialProcessCmd.Flags().StringVar(&credProcAccountID, "account-id", "", "target account id")
	credentialProcessCmd.Flags().StringVar(&credProcRoleName, "role-name", "", "role (permission set) name")
	rootCmd.AddCommand(credentialProcessCmd)
}
