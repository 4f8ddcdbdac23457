// Command macrohandler is the CloudFormation macro entry point for the
// assignment-group transform. It reads one macro invocation event as JSON on
// stdin, expands every SSOUtil::SSO::AssignmentGroup resource through the
// assignment resolver and template planner, and writes the transform
// response to stdout, making it suitable as a Lambda custom-runtime handler
// or a local test harness for the transform.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/praetorian-inc/ssoctl/internal/awsclients"
	"github.com/praetorian-inc/ssoctl/pkg/assign"
	"github.com/praetorian-inc/ssoctl/pkg/identity"
	"github.com/praetorian-inc/ssoctl/pkg/planner"
	"github.com/praetorian-inc/ssoctl/pkg/policyconfig"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var req planner.MacroRequest
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		return fmt.Errorf("decoding macro request: %w", err)
	}
	// Local test invocations often omit the request id; child-template keys
	// need one either way.
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	resp := handle(ctx, req)
	return json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(ctx context.Context, req planner.MacroRequest) planner.MacroResponse {
	failure := func(err error) planner.MacroResponse {
		return planner.MacroResponse{RequestID: req.RequestID, Status: "failure", ErrorMessage: err.Error()}
	}

	awsCfg, err := awsclients.LoadConfig(ctx, req.Region, "")
	if err != nil {
		return failure(err)
	}
	clients := awsclients.NewClients(awsCfg)
	ids := identity.NewIds(clients.SSOAdmin, "", "")
	resolver := identity.NewResolver(clients.IdentityStore, clients.Organizations, clients.SSOAdmin, ids)
	engine := assign.NewEngine(clients.SSOAdmin, resolver, assign.Filters{})

	genCfg := generationConfigFromMetadata(req.Fragment)

	// Expand every assignment group up front; Handle consumes the resolved
	// collections without identity or SSO-admin calls of its own (its only
	// service calls are the template-summary checks and object-store writes).
	collections := map[string]*assign.ResourceCollection{}
	if resources, ok := req.Fragment["Resources"].(map[string]interface{}); ok {
		for name, raw := range resources {
			resMap, ok := raw.(map[string]interface{})
			if !ok || resMap["Type"] != "SSOUtil::SSO::AssignmentGroup" {
				continue
			}
			props, _ := resMap["Properties"].(map[string]interface{})
			propsJSON, err := json.Marshal(props)
			if err != nil {
				return failure(fmt.Errorf("marshaling properties of %s: %w", name, err))
			}
			cfg, err := policyconfig.LoadResource(propsJSON)
			if err != nil {
				return failure(fmt.Errorf("loading %s: %w", name, err))
			}
			if err := policyconfig.Validate(ctx, cfg, ids); err != nil {
				return failure(fmt.Errorf("validating %s: %w", name, err))
			}
			rc, err := assign.Collect(ctx, engine.Resolve(ctx, *cfg))
			if err != nil {
				return failure(fmt.Errorf("expanding %s: %w", name, err))
			}
			collections[name] = rc
		}
	}

	instance, err := ids.Resolve(ctx)
	if err != nil {
		return failure(err)
	}

	handler := planner.NewMacroHandler(clients.S3, clients.CloudFormation, os.Getenv("SSOCTL_MACRO_BUCKET"), instance.InstanceArn)
	if prefix := os.Getenv("SSOCTL_MACRO_KEY_PREFIX"); prefix != "" {
		handler.KeyPrefix = prefix
	}
	return handler.Handle(ctx, req, collections, genCfg)
}

// generationConfigFromMetadata reads planner settings from the fragment's
// Metadata.SSO block, tolerating the float64 numbers JSON decoding produces.
func generationConfigFromMetadata(fragment map[string]interface{}) planner.GenerationConfig {
	cfg := planner.DefaultGenerationConfig()
	metadata, ok := fragment["Metadata"].(map[string]interface{})
	if !ok {
		return cfg
	}
	sso, ok := metadata["SSO"].(map[string]interface{})
	if !ok {
		return cfg
	}

	if v, ok := intFromAny(sso["MaxResourcesPerTemplate"]); ok {
		cfg.MaxResourcesPerTemplate = v
	}
	if v, ok := intFromAny(sso["MaxConcurrentAssignments"]); ok {
		cfg.MaxConcurrentAssignments = v
	}
	if v, ok := intFromAny(sso["NumChildStacks"]); ok {
		cfg.NumChildStacks = &v
	}
	if v, ok := intFromAny(sso["MaxAssignmentsAllocation"]); ok {
		cfg.MaxAssignmentsAllocation = &v
	}
	if s, ok := sso["DefaultSessionDuration"].(string); ok {
		cfg.DefaultSessionDuration = s
	}
	if s, ok := sso["ResourcePrefix"].(string); ok {
		cfg.ResourcePrefix = s
	}
	return cfg
}

func intFromAny(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
