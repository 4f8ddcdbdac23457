package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/praetorian-inc/ssoctl/internal/awsclients"
	"github.com/praetorian-inc/ssoctl/pkg/assign"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
)

const (
	transformName       = "SSOUtil::Macro"
	permissionSetType   = "SSOUtil::SSO::PermissionSet"
	assignmentGroupType = "SSOUtil::SSO::AssignmentGroup"
)

// MacroRequest mirrors the CloudFormation macro transform invocation shape:
// {requestId, fragment, templateParameterValues, accountId, region, ...}.
type MacroRequest struct {
	RequestID               string                 `json:"requestId"`
	Region                  string                 `json:"region"`
	AccountID               string                 `json:"accountId"`
	Fragment                map[string]interface{} `json:"fragment"`
	TemplateParameterValues map[string]interface{} `json:"templateParameterValues"`
}

// MacroResponse is the required transform response shape.
type MacroResponse struct {
	RequestID    string                 `json:"requestId"`
	Status       string                 `json:"status"`
	Fragment     map[string]interface{} `json:"fragment,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
}

// MacroHandler runs the template-transform entry point: it takes generation
// parameters from its caller, strips the fragment's Metadata.SSO block,
// converts SSOUtil::SSO::PermissionSet resources to AWS::SSO::PermissionSet,
// replaces every SSOUtil::SSO::AssignmentGroup with the planner's expansion
// of its pre-resolved assignment set, and writes child templates to an
// object store, summary-validating each against the CloudFormation service
// first when a client is supplied.
type MacroHandler struct {
	S3             awsclients.S3Client
	CFN            awsclients.CloudFormationClient
	Bucket         string
	KeyPrefix      string
	Now            func() time.Time
	InstanceArn    string
	ResourcePrefix string
}

// NewMacroHandler builds a MacroHandler with production defaults.
func NewMacroHandler(s3Client awsclients.S3Client, cfnClient awsclients.CloudFormationClient, bucket, instanceArn string) *MacroHandler {
	return &MacroHandler{S3: s3Client, CFN: cfnClient, Bucket: bucket, KeyPrefix: "ssoctl-macro", Now: time.Now, InstanceArn: instanceArn}
}

// Handle processes one macro invocation. resources supplies the already
// expanded assignment/permission-set set for every AssignmentGroup resource
// in the fragment, keyed by that resource's logical name; the caller is
// responsible for running pkg/assign and pkg/policyconfig against each
// AssignmentGroup's Properties before calling Handle, since both require
// live service calls this package does not itself make.
func (h *MacroHandler) Handle(ctx context.Context, req MacroRequest, resources map[string]*assign.ResourceCollection, cfg GenerationConfig) MacroResponse {
	fragment := req.Fragment
	if fragment == nil {
		return MacroResponse{RequestID: req.RequestID, Status: "failure", ErrorMessage: "fragment is empty"}
	}

	delete(fragment, "Transform")
	if metadata, ok := fragment["Metadata"].(map[string]interface{}); ok {
		delete(metadata, "SSO")
		if len(metadata) == 0 {
			delete(fragment, "Metadata")
		}
	}

	rawResources, _ := fragment["Resources"].(map[string]interface{})
	if rawResources == nil {
		rawResources = map[string]interface{}{}
	}
	existingCount := len(rawResources)

	for name, raw := range rawResources {
		resMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if resMap["Type"] == permissionSetType {
			resMap["Type"] = "AWS::SSO::PermissionSet"
			if props, ok := resMap["Properties"].(map[string]interface{}); ok {
				injectPermissionSetDefaults(props, h.InstanceArn, cfg.DefaultSessionDuration)
			}
			rawResources[name] = resMap
		}
	}

	for name, raw := range rawResources {
		resMap, ok := raw.(map[string]interface{})
		if !ok || resMap["Type"] != assignmentGroupType {
			continue
		}
		delete(rawResources, name)
		existingCount--

		rc, ok := resources[name]
		if !ok {
			return MacroResponse{RequestID: req.RequestID, Status: "failure", ErrorMessage: fmt.Sprintf("no resolved assignment set supplied for %s", name)}
		}

		plan, err := Generate(rc, cfg, h.InstanceArn, existingCount)
		if err != nil {
			return MacroResponse{RequestID: req.RequestID, Status: "failure", ErrorMessage: err.Error()}
		}

		for logicalName, res := range plan.Parent.Resources {
			b, _ := json.Marshal(res)
			var asMap map[string]interface{}
			_ = json.Unmarshal(b, &asMap)
			rawResources[logicalName] = asMap
			existingCount++
		}
		if plan.Parent.Parameters != nil {
			params, _ := fragment["Parameters"].(map[string]interface{})
			if params == nil {
				params = map[string]interface{}{}
			}
			for pname, p := range plan.Parent.Parameters {
				b, _ := json.Marshal(p)
				var asMap map[string]interface{}
				_ = json.Unmarshal(b, &asMap)
				params[pname] = asMap
			}
			fragment["Parameters"] = params
		}

		if err := h.writeChildTemplates(ctx, req.RequestID, plan); err != nil {
			return MacroResponse{RequestID: req.RequestID, Status: "failure", ErrorMessage: err.Error()}
		}
	}

	fragment["Resources"] = rawResources
	return MacroResponse{RequestID: req.RequestID, Status: "success", Fragment: fragment}
}

func injectPermissionSetDefaults(props map[string]interface{}, instanceArn, defaultSessionDuration string) {
	if _, ok := props["InstanceArn"]; !ok && instanceArn != "" {
		props["InstanceArn"] = instanceArn
	}
	if _, ok := props["SessionDuration"]; !ok && defaultSessionDuration != "" {
		props["SessionDuration"] = defaultSessionDuration
	}
	if inline, ok := props["InlinePolicy"]; ok {
		if _, isString := inline.(string); !isString {
			props["InlinePolicy"] = stringifyInlinePolicy(inline)
		}
	}
	if managed, ok := props["ManagedPolicies"].([]interface{}); ok {
		for i, m := range managed {
			if s, ok := m.(string); ok {
				managed[i] = normalizeManagedPolicy(s)
			}
		}
	}
}

// writeChildTemplates persists each child template under
// <bucket>/<prefix>/<UTC-minute>/<requestId>/<stack name>.json, so reruns
// of the transform in the same minute for the same request overwrite their
// own artifacts and nothing else.
func (h *MacroHandler) writeChildTemplates(ctx context.Context, requestID string, plan *Plan) error {
	if len(plan.Children) == 0 {
		return nil
	}
	now := h.Now
	if now == nil {
		now = time.Now
	}
	minuteStamp := now().UTC().Format("200601021504")

	for i, child := range plan.Children {
		body, err := json.Marshal(child)
		if err != nil {
			return ssoerr.Wrap(ssoerr.KindServiceError, err, "marshaling child template %d", i)
		}
		// A child template the service won't even summarize would fail the
		// nested-stack create later, after the parent has already mutated;
		// surface it now, while the transform can still report failure.
		if h.CFN != nil {
			if _, err := h.CFN.GetTemplateSummary(ctx, &cloudformation.GetTemplateSummaryInput{
				TemplateBody: aws.String(string(body)),
			}); err != nil {
				return ssoerr.Wrap(ssoerr.KindInvalidSSOConfig, err, "child template %s failed template-summary validation", plan.ChildNames[i])
			}
		}
		key := fmt.Sprintf("%s/%s/%s/%s.json", h.KeyPrefix, minuteStamp, requestID, plan.ChildNames[i])
		_, err = h.S3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(h.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return ssoerr.Wrap(ssoerr.KindServiceError, err, "writing child template %d to object store", i)
		}
	}
	return nil
}
