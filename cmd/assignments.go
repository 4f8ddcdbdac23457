package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/ssoctl/internal/awsclients"
	"github.com/praetorian-inc/ssoctl/internal/message"
	"github.com/praetorian-inc/ssoctl/pkg/assign"
	"github.com/praetorian-inc/ssoctl/pkg/identity"
	"github.com/praetorian-inc/ssoctl/pkg/planner"
	"github.com/praetorian-inc/ssoctl/pkg/policyconfig"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
	"github.com/praetorian-inc/ssoctl/pkg/utils"
)

var assignmentsCmd = &cobra.Command{
	Use:   "assignments",
	Short: "Expand and plan permission set assignments",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

var (
	asgConfigPath      string
	asgRegion          string
	asgProfile         string
	asgInstanceArn     string
	asgIdentityStoreID string
)

// loadAssignmentConfig parses the policy document and wires the identity
// resolver and assignment engine against live clients.
func loadAssignmentConfig(ctx context.Context) (*assign.Config, *assign.Engine, error) {
	if asgConfigPath == "" {
		return nil, nil, ssoerr.New(ssoerr.KindInvalidSSOConfig, "a policy document is required; pass --config")
	}
	raw, err := os.ReadFile(asgConfigPath)
	if err != nil {
		return nil, nil, ssoerr.Wrap(ssoerr.KindInvalidSSOConfig, err, "reading policy document %s", asgConfigPath)
	}
	cfg, err := policyconfig.Load(raw)
	if err != nil {
		return nil, nil, err
	}

	awsCfg, err := awsclients.LoadConfig(ctx, asgRegion, asgProfile)
	if err != nil {
		return nil, nil, err
	}
	clients := awsclients.NewClients(awsCfg)

	instanceArn := cfg.Instance.InstanceArn
	if asgInstanceArn != "" {
		instanceArn = asgInstanceArn
	}
	identityStoreID := cfg.Instance.IdentityStoreID
	if asgIdentityStoreID != "" {
		identityStoreID = asgIdentityStoreID
	}
	ids := identity.NewIds(clients.SSOAdmin, instanceArn, identityStoreID)
	resolver := identity.NewResolver(clients.IdentityStore, clients.Organizations, clients.SSOAdmin, ids)

	if err := policyconfig.Validate(ctx, cfg, ids); err != nil {
		return nil, nil, err
	}

	return cfg, assign.NewEngine(clients.SSOAdmin, resolver, assign.Filters{}), nil
}

var assignmentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the expanded assignment tuples for a policy document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, engine, err := loadAssignmentConfig(ctx)
		if err != nil {
			return err
		}

		count := 0
		for item := range engine.Resolve(ctx, *cfg) {
			if item.Err != nil {
				return item.Err
			}
			a := item.Assignment
			psArn, _ := a.PermissionSet.Resolve(a.Instance.InstanceArn)
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%s\t%s\n",
				a.Principal.Type, a.Principal.ID, psArn, a.Target.Type, a.Target.ID)
			count++
		}
		message.Info("Expanded %d assignments", count)
		return nil
	},
}

var (
	asgTemplateOut             string
	asgTemplatePrefix          string
	asgMaxResourcesPerTemplate int
	asgMaxConcurrent           int
	asgNumChildStacks          int
	asgMaxAllocation           int
	asgDefaultSessionDuration  string
)

var assignmentsTemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "Render the expanded assignment set as a CloudFormation template hierarchy",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, engine, err := loadAssignmentConfig(ctx)
		if err != nil {
			return err
		}

		rc, err := assign.Collect(ctx, engine.Resolve(ctx, *cfg))
		if err != nil {
			return err
		}

		genCfg := planner.GenerationConfig{
			MaxResourcesPerTemplate:  asgMaxResourcesPerTemplate,
			MaxConcurrentAssignments: asgMaxConcurrent,
			DefaultSessionDuration:   asgDefaultSessionDuration,
			ResourcePrefix:           asgTemplatePrefix,
		}
		if asgNumChildStacks >= 0 {
			genCfg.NumChildStacks = &asgNumChildStacks
		}
		if asgMaxAllocation > 0 {
			genCfg.MaxAssignmentsAllocation = &asgMaxAllocation
		}

		plan, err := planner.Generate(rc, genCfg, cfg.Instance.InstanceArn, 0)
		if err != nil {
			return err
		}

		if err := writeTemplate(filepath.Join(asgTemplateOut, "parent.json"), plan.Parent); err != nil {
			return err
		}
		for i, child := range plan.Children {
			if err := writeTemplate(filepath.Join(asgTemplateOut, plan.ChildNames[i]+".json"), child); err != nil {
				return err
			}
		}
		message.Success("Wrote parent and %d child templates to %s (%d assignments)", len(plan.Children), asgTemplateOut, len(rc.Assignments))
		return nil
	},
}

func writeTemplate(path string, t *planner.Template) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if err := utils.WriteFileAtomic(path, data, 0644); err != nil {
		return ssoerr.Wrap(ssoerr.KindServiceError, err, "writing template %s", path)
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{assignmentsListCmd, assignmentsTemplateCmd} {
		c.Flags().StringVar(&asgConfigPath, "config", "", "policy document (YAML or JSON)")
		c.Flags().StringVar(&asgRegion, "region", "", "region of the SSO instance")
		c.Flags().StringVar(&asgProfile, "profile", "", "AWS shared-config profile for credentials")
		c.Flags().StringVar(&asgInstanceArn, "instance-arn", "", "SSO instance ARN override")
		c.Flags().StringVar(&asgIdentityStoreID, "identity-store-id", "", "identity store id override")
	}
	assignmentsTemplateCmd.Flags().StringVar(&asgTemplateOut, "out", ".", "directory to write templates into")
	assignmentsTemplateCmd.Flags().StringVar(&asgTemplatePrefix, "prefix", "", "logical resource name prefix")
	assignmentsTemplateCmd.Flags().IntVar(&asgMaxResourcesPerTemplate, "max-resources-per-template", 500, "per-template resource cap")
	assignmentsTemplateCmd.Flags().IntVar(&asgMaxConcurrent, "max-concurrent-assignments", 20, "sliding DependsOn window per stack")
	assignmentsTemplateCmd.Flags().IntVar(&asgNumChildStacks, "num-child-stacks", -1, "fixed child stack count; 0 forces inline, -1 computes")
	assignmentsTemplateCmd.Flags().IntVar(&asgMaxAllocation, "max-assignments-allocation", 0, "lower bound on child stack count, in assignments")
	assignmentsTemplateCmd.Flags().StringVar(&asgDefaultSessionDuration, "default-session-duration", "", "SessionDuration for permission sets missing one")
	assignmentsCmd.AddCommand(assignmentsListCmd)
	assignmentsCmd.AddCommand(assignmentsTemplateCmd)
	rootCmd.AddCommand(assignmentsCmd)
}
