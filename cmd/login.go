package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/ssoctl/internal/message"
	"github.com/praetorian-inc/ssoctl/pkg/ssosession"
	"github.com/praetorian-inc/ssoctl/pkg/ssotoken"
)

var (
	loginStartURL  string
	loginRegion    string
	loginProfile   string
	loginSession   string
	loginAll       bool
	loginForce     bool
	loginNoBrowser bool
)

var loginCmd = &cobra.Command{
	Use:   "login [specifier]",
	Short: "Log in to an AWS SSO session via the device authorization flow",
	Long: `Log in to an AWS SSO session. The session is located from (in order of
precedence) --profile, --sso-session, an explicit --sso-start-url/--sso-region
pair, a bare specifier argument, the AWS_SSO_SESSION environment variable, or
a scan of every session in the shared config file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		startURL := loginStartURL
		region := loginRegion
		if startURL == "" && region == "" {
			startURL = os.Getenv("AWS_SSO_LOGIN_DEFAULT_SSO_START_URL")
			region = os.Getenv("AWS_SSO_LOGIN_DEFAULT_SSO_REGION")
		}

		params := ssosession.Params{
			ProfileName: loginProfile,
			SessionName: loginSession,
			StartURL:    startURL,
			Region:      region,
			LoginAll:    loginAll || envTruthy("AWS_SSO_LOGIN_ALL"),
		}
		if len(args) == 1 {
			params.Specifier = args[0]
		}

		result, err := discoverSessions(params)
		if err != nil {
			return err
		}
		if err := ssosession.RaiseForMismatch(result, result.Sessions); err != nil {
			return err
		}

		for _, session := range result.Sessions {
			engine, _, err := newTokenEngine(ctx, session.Region, ssotoken.InteractivePendingCallback(browserAllowed(loginNoBrowser)))
			if err != nil {
				return err
			}
			if loginForce {
				_ = engine.TokenCache.Delete(session)
			}
			token, err := engine.FetchToken(ctx, session)
			if err != nil {
				return err
			}
			message.Success("Logged in to %s; token expires at %s", session.StartURL, token.ExpiresAt.Format("2006-01-02 15:04 MST"))
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginStartURL, "sso-start-url", "", "SSO start URL")
	loginCmd.Flags().StringVar(&loginRegion, "sso-region", "", "SSO region")
	loginCmd.Flags().StringVar(&loginProfile, "profile", "", "use the SSO configuration of this profile")
	loginCmd.Flags().StringVar(&loginSession, "sso-session", "", "use this named sso-session from the config file")
	loginCmd.Flags().BoolVar(&loginAll, "all", false, "log in to every matched session")
	loginCmd.Flags().BoolVar(&loginForce, "force", false, "discard any cached token and run the device flow")
	loginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "do not open a browser; print the verification URL only")
	rootCmd.AddCommand(loginCmd)
}
