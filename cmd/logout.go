package cmd

import (
	"github.com/spf13/cobra"

	"github.com/praetorian-inc/ssoctl/internal/message"
	"github.com/praetorian-inc/ssoctl/pkg/ssosession"
)

var (
	logoutStartURL string
	logoutRegion   string
	logoutProfile  string
	logoutSession  string
	logoutAll      bool
)

var logoutCmd = &cobra.Command{
	Use:   "logout [specifier]",
	Short: "Log out of an AWS SSO session",
	Long: `Log out of an AWS SSO session: the cached token is removed and the SSO
logout API is called with it. Errors from the service are swallowed; logout
always succeeds locally.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		params := ssosession.Params{
			ProfileName: logoutProfile,
			SessionName: logoutSession,
			StartURL:    logoutStartURL,
			Region:      logoutRegion,
			LoginAll:    logoutAll,
		}
		if len(args) == 1 {
			params.Specifier = args[0]
		}

		result, err := discoverSessions(params)
		if err != nil {
			return err
		}

		for _, session := range result.Sessions {
			engine, clients, err := newTokenEngine(ctx, session.Region, nil)
			if err != nil {
				return err
			}
			engine.Logout(ctx, clients.SSO, session)
			message.Success("Logged out of %s", session.StartURL)
		}
		return nil
	},
}

func init() {
	logoutCmd.Flags().StringVar(&logoutStartURL, "sso-start-url", "", "SSO start URL")
	logoutCmd.Flags().StringVar(&logoutRegion, "sso-region", "", "SSO region")
	logoutCmd.Flags().StringVar(&logoutProfile, "profile", "", "use the SSO configuration of this profile")
	logoutCmd.Flags().StringVar(&logoutSession, "sso-session", "", "use this named sso-session from the config file")
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "log out of every matched session")
	rootCmd.AddCommand(logoutCmd)
}
