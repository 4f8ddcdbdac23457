package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/ssoctl/internal/message"
	"github.com/praetorian-inc/ssoctl/pkg/awsconfig"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write SSO profiles and sessions to the shared config file",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

var (
	cfgProfileName        string
	cfgProfileStartURL    string
	cfgProfileRegion      string
	cfgProfileSession     string
	cfgProfileAccountID   string
	cfgProfileRoleName    string
	cfgProfileCLIRegion   string
	cfgProfileOutput      string
	cfgProfileExistingAct string
	cfgProfileNoCredProc  bool
)

var configureProfileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Write one [profile] section with SSO keys and a credential_process line",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgProfileName == "" {
			return ssoerr.New(ssoerr.KindInvalidSSOConfig, "configure profile requires --profile")
		}

		startURL := cfgProfileStartURL
		region := cfgProfileRegion
		if startURL == "" && region == "" && cfgProfileSession == "" {
			startURL = os.Getenv("AWS_CONFIGURE_SSO_DEFAULT_SSO_START_URL")
			region = os.Getenv("AWS_CONFIGURE_SSO_DEFAULT_SSO_REGION")
		}
		if cfgProfileSession == "" && (startURL == "" || region == "") {
			return ssoerr.New(ssoerr.KindInvalidSSOConfig, "configure profile requires either --sso-session or both --sso-start-url and --sso-region")
		}

		action := awsconfig.ExistingConfigAction(cfgProfileExistingAct)
		switch action {
		case awsconfig.ActionKeep, awsconfig.ActionOverwrite, awsconfig.ActionDiscard:
		default:
			return ssoerr.New(ssoerr.KindInvalidSSOConfig, "--existing-config-action must be one of keep, overwrite, discard; got %q", cfgProfileExistingAct)
		}

		tool := os.Getenv("AWS_SSO_CREDENTIAL_PROCESS_NAME")
		noCredProc := cfgProfileNoCredProc || envTruthy("AWS_CONFIGURE_SSO_DISABLE_CREDENTIAL_PROCESS")

		path, err := awsConfigPath()
		if err != nil {
			return err
		}

		profile := awsconfig.Profile{
			Name:                cfgProfileName,
			SSOSession:          cfgProfileSession,
			SSOStartURL:         startURL,
			SSORegion:           region,
			SSOAccountID:        cfgProfileAccountID,
			SSORoleName:         cfgProfileRoleName,
			Region:              cfgProfileCLIRegion,
			Output:              cfgProfileOutput,
			NoCredentialProcess: noCredProc,
			Tool:                tool,
		}
		if err := awsconfig.WriteProfile(path, profile, action); err != nil {
			return ssoerr.Wrap(ssoerr.KindServiceError, err, "writing profile %q to %s", cfgProfileName, path)
		}
		message.Success("Wrote profile %s to %s", cfgProfileName, path)
		return nil
	},
}

func init() {
	configureProfileCmd.Flags().StringVar(&cfgProfileName, "profile", "", "profile name to write")
	configureProfileCmd.Flags().StringVar(&cfgProfileStartURL, "sso-start-url", "", "SSO start URL")
	configureProfileCmd.Flags().StringVar(&cfgProfileRegion, "sso-region", "", "SSO region")
	configureProfileCmd.Flags().StringVar(&cfgProfileSession, "sso-session", "", "reference a named sso-session instead of inline keys")
	configureProfileCmd.Flags().StringVar(&cfgProfileAccountID, "account-id", "", "sso_account_id for the profile")
	configureProfileCmd.Flags().StringVar(&cfgProfileRoleName, "role-name", "", "sso_role_name for the profile")
	configureProfileCmd.Flags().StringVar(&cfgProfileCLIRegion, "region", "", "CLI region for the profile")
	configureProfileCmd.Flags().StringVar(&cfgProfileOutput, "output", "", "CLI output format for the profile")
	configureProfileCmd.Flags().StringVar(&cfgProfileExistingAct, "existing-config-action", "keep", "how to merge into an existing section: keep, overwrite, or discard")
	configureProfileCmd.Flags().BoolVar(&cfgProfileNoCredProc, "no-credential-process", false, "omit the credential_process line")
	configureCmd.AddCommand(configureProfileCmd)
	rootCmd.AddCommand(configureCmd)
}
