package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/praetorian-inc/ssoctl/internal/logs"
	"github.com/praetorian-inc/ssoctl/internal/message"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
)

var (
	cfgFile      string
	quietFlag    bool
	noColorFlag  bool
	silentFlag   bool
	logLevelFlag string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ssoctl",
	Short: "ssoctl administers AWS IAM Identity Center (SSO) permission set assignments.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// credential-process owns stdout: its protocol is exactly one JSON
		// object, so the banner is suppressed there.
		if cmd.Name() != "credential-process" {
			message.Banner()
		}
	},
}

// Execute runs the command tree and maps any returned error to the process
// exit code the error taxonomy assigns it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ssoerr.ExitCodeFor(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ssoctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&quietFlag, "quiet", false, "suppress user messages")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&silentFlag, "silent", false, "suppress all messages except critical errors")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".ssoctl")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SSOCTL")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	logs.ConfigureDefaults(logLevelFlag)
	message.SetQuiet(quietFlag)
	message.SetNoColor(noColorFlag)
	message.SetSilent(silentFlag)
}
