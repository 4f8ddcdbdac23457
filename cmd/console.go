package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/praetorian-inc/ssoctl/internal/awsclients"
	"github.com/praetorian-inc/ssoctl/internal/message"
	"github.com/praetorian-inc/ssoctl/pkg/awsconfig"
	"github.com/praetorian-inc/ssoctl/pkg/consoleurl"
	"github.com/praetorian-inc/ssoctl/pkg/credproc"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
	"github.com/praetorian-inc/ssoctl/pkg/ssotoken"
	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Launch the AWS console through SSO role credentials",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

var (
	consoleProfile        string
	consoleStartURL       string
	consoleSSORegion      string
	consoleAccountID      string
	consoleRoleName       string
	consoleRegion         string
	consoleDestination    string
	consoleIssuer         string
	consoleOverrideRegion bool
	consolePrintOnly      bool
	consoleLogoutFirst    bool
	consoleFederate       bool
	consoleDuration       int
)

var consoleLaunchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Build a federation login URL and open it in a browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var signinSession consoleurl.Session
		startURL := consoleStartURL
		accountID, roleName := consoleAccountID, consoleRoleName
		if consoleFederate {
			awsCfg, err := awsclients.LoadConfig(ctx, consoleSSORegion, consoleProfile)
			if err != nil {
				return err
			}
			clients := awsclients.NewClients(awsCfg)
			signinSession, err = consoleurl.FederationSession(ctx, clients.STS, "ssoctl", time.Duration(consoleDuration)*time.Second)
			if err != nil {
				return ssoerr.Wrap(ssoerr.KindServiceError, err, "federating ambient credentials")
			}
		} else {
			req, err := resolveConsoleRequest()
			if err != nil {
				return err
			}
			startURL, accountID, roleName = req.StartURL, req.AccountID, req.RoleName

			session := ssotypes.Session{Name: req.StartURL, StartURL: req.StartURL, Region: req.Region}
			engine, clients, err := newTokenEngine(ctx, req.Region, ssotoken.InteractivePendingCallback(browserAllowed(false)))
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
			signinSession = consoleurl.Session{
				SessionID:    creds.AccessKeyID,
				SessionKey:   creds.SecretAccessKey,
				SessionToken: creds.SessionToken,
			}
		}

		region := consoleRegion
		if region == "" {
			region = os.Getenv("AWS_CONSOLE_DEFAULT_REGION")
		}
		destination := consoleDestination
		if destination == "" {
			destination = os.Getenv("AWS_CONSOLE_DEFAULT_DESTINATION")
		}
		if destination == "" {
			destination = "https://console.aws.amazon.com/"
		}
		issuer := consoleIssuer
		if issuer == "" {
			issuer = os.Getenv("AWS_CONSOLE_DEFAULT_ISSUER")
		}
		if issuer == "" {
			issuer = startURL
		}

		loginURL, err := consoleurl.Launch(ctx, nil, consoleurl.Params{
			Region:                      region,
			Issuer:                      issuer,
			Destination:                 destination,
			Session:                     signinSession,
			OverrideRegionInDestination: consoleOverrideRegion,
		})
		if err != nil {
			return ssoerr.Wrap(ssoerr.KindServiceError, err, "building console launch URL")
		}

		if consolePrintOnly {
			fmt.Fprintln(os.Stdout, loginURL)
			return nil
		}
		if consoleLogoutFirst || envTruthy("AWS_CONSOLE_LOGOUT_FIRST") {
			if err := browser.OpenURL("https://signin.aws.amazon.com/oauth?Action=logout"); err != nil {
				return ssoerr.Wrap(ssoerr.KindAuthDispatchError, err, "opening console logout URL")
			}
		}
		if err := browser.OpenURL(loginURL); err != nil {
			return ssoerr.Wrap(ssoerr.KindAuthDispatchError, err, "opening console login URL")
		}
		if accountID != "" {
			message.Success("Opened console for account %s role %s", accountID, roleName)
		} else {
			message.Success("Opened console with federated credentials")
		}
		return nil
	},
}

var (
	consoleTokenDecode   string
	consoleTokenDuration int
)

var consoleTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Encode or decode a compact console launch config token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if consoleTokenDecode != "" {
			decoded, err := consoleurl.DecodeConfigToken(consoleTokenDecode)
			if err != nil {
				return ssoerr.Wrap(ssoerr.KindFormatError, err, "decoding config token")
			}
			out, err := json.MarshalIndent(decoded, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(out))
			return nil
		}

		req, err := resolveConsoleRequest()
		if err != nil {
			return err
		}
		encoded, err := consoleurl.EncodeConfigToken(consoleurl.ConfigToken{
			SSOStartURL:  req.StartURL,
			SSORegion:    req.Region,
			AccountID:    req.AccountID,
			RoleName:     req.RoleName,
			Region:       consoleRegion,
			Issuer:       consoleIssuer,
			Destination:  consoleDestination,
			DurationSecs: consoleTokenDuration,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, encoded)
		return nil
	},
}

// resolveConsoleRequest applies the same flag > env > profile precedence the
// credential-process command uses to gather the four SSO coordinates.
func resolveConsoleRequest() (credproc.Request, error) {
	req := credproc.Request{}
	if consoleProfile != "" {
		path, err := awsConfigPath()
		if err != nil {
			return req, err
		}
		profile, ok, err := awsconfig.ReadProfile(path, consoleProfile)
		if err != nil {
			return req, err
		}
		if !ok {
			return req, ssoerr.New(ssoerr.KindConfigProfileError, "no profile named %q in configuration", consoleProfile)
		}
		req = credproc.Request{
			StartURL:  profile.SSOStartURL,
			Region:    profile.SSORegion,
			AccountID: profile.SSOAccountID,
			RoleName:  profile.SSORoleName,
		}
	}
	req = req.Merge(credproc.Request{
		StartURL:  os.Getenv("AWS_SSO_START_URL"),
		Region:    os.Getenv("AWS_SSO_REGION"),
		AccountID: os.Getenv("AWS_SSO_ACCOUNT_ID"),
		RoleName:  os.Getenv("AWS_SSO_ROLE_NAME"),
	})
	req = req.Merge(credproc.Request{
		StartURL:  consoleStartURL,
		Region:    consoleSSORegion,
		AccountID: consoleAccountID,
		RoleName:  consoleRoleName,
	})
	if !req.Complete() {
		return req, ssoerr.New(ssoerr.KindInvalidSSOConfig, "console needs a start URL, region, account id, and role name")
	}
	return req, nil
}

func init() {
	for _, c := range []*cobra.Command{consoleLaunchCmd, consoleTokenCmd} {
		c.Flags().StringVar(&consoleProfile, "profile", "", "profile whose SSO configuration to use")
		c.Flags().StringVar(&consoleStartURL, "start-url", "", "SSO start URL")
		c.Flags().StringVar(&consoleSSORegion, "sso-region", "", "SSO region")
		c.Flags().StringVar(&consoleAccountID, "account-id", "", "target account id")
		c.Flags().StringVar(&consoleRoleName, "role-name", "", "role (permission set) name")
		c.Flags().StringVar(&consoleRegion, "region", "", "console region for the destination")
		c.Flags().StringVar(&consoleDestination, "destination", "", "console destination URL")
		c.Flags().StringVar(&consoleIssuer, "issuer", "", "federation issuer URL")
	}
	consoleLaunchCmd.Flags().BoolVar(&consoleOverrideRegion, "override-region-in-destination", false, "replace any region= already in the destination")
	consoleLaunchCmd.Flags().BoolVar(&consolePrintOnly, "print", false, "print the login URL instead of opening a browser")
	consoleLaunchCmd.Flags().BoolVar(&consoleLogoutFirst, "logout-first", false, "open the console logout URL before logging in")
	consoleLaunchCmd.Flags().BoolVar(&consoleFederate, "federate", false, "federate the ambient credentials via STS instead of SSO role credentials")
	consoleLaunchCmd.Flags().IntVar(&consoleDuration, "duration", 0, "federation session duration in seconds")
	consoleTokenCmd.Flags().StringVar(&consoleTokenDecode, "decode", "", "decode this config token instead of encoding")
	consoleTokenCmd.Flags().IntVar(&consoleTokenDuration, "duration", 0, "session duration seconds to embed")
	consoleCmd.AddCommand(consoleLaunchCmd)
	consoleCmd.AddCommand(consoleTokenCmd)
	rootCmd.AddCommand(consoleCmd)
}
