package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/ssoctl/internal/awsclients"
	"github.com/praetorian-inc/ssoctl/pkg/identity"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
)

var (
	lookupRegion          string
	lookupProfile         string
	lookupInstanceArn     string
	lookupIdentityStoreID string
	lookupByName          bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <group|user|permission-set|account> <id-or-name>...",
	Short: "Resolve ids to names (or names to ids with --by-name)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind := args[0]

		awsCfg, err := awsclients.LoadConfig(ctx, lookupRegion, lookupProfile)
		if err != nil {
			return err
		}
		clients := awsclients.NewClients(awsCfg)
		ids := identity.NewIds(clients.SSOAdmin, lookupInstanceArn, lookupIdentityStoreID)
		resolver := identity.NewResolver(clients.IdentityStore, clients.Organizations, clients.SSOAdmin, ids)

		for _, value := range args[1:] {
			var resolved string
			var err error
			switch {
			case kind == "group" && lookupByName:
				resolved, err = resolver.LookupGroupByName(ctx, value)
			case kind == "group":
				resolved, err = resolver.LookupGroupByID(ctx, value)
			case kind == "user" && lookupByName:
				resolved, err = resolver.LookupUserByName(ctx, value)
			case kind == "user":
				resolved, err = resolver.LookupUserByID(ctx, value)
			case kind == "permission-set" && lookupByName:
				resolved, err = resolver.LookupPermissionSetByName(ctx, value)
			case kind == "permission-set":
				resolved, err = resolver.LookupPermissionSetByID(ctx, value)
			case kind == "account" && lookupByName:
				resolved, err = resolver.LookupAccountByName(ctx, value)
			case kind == "account":
				resolved, err = resolver.LookupAccountByID(ctx, value)
			default:
				return ssoerr.New(ssoerr.KindInvalidSSOConfig, "unknown lookup kind %q; expected group, user, permission-set, or account", kind)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s\t%s\n", value, resolved)
		}
		return nil
	},
}

func init() {
	lookupCmd.Flags().StringVar(&lookupRegion, "region", "", "region of the SSO instance")
	lookupCmd.Flags().StringVar(&lookupProfile, "profile", "", "AWS shared-config profile for credentials")
	lookupCmd.Flags().StringVar(&lookupInstanceArn, "instance-arn", "", "SSO instance ARN override")
	lookupCmd.Flags().StringVar(&lookupIdentityStoreID, "identity-store-id", "", "identity store id override")
	lookupCmd.Flags().BoolVar(&lookupByName, "by-name", false, "treat the arguments as names and resolve them to ids")
	rootCmd.AddCommand(lookupCmd)
}
