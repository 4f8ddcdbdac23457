package planner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/ssoctl/pkg/assign"
)

type fakeS3 struct {
	keys []string
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.keys = append(f.keys, aws.ToString(params.Key))
	return &s3.PutObjectOutput{}, nil
}

type fakeCFN struct {
	summaryCalls int
	err          error
}

func (f *fakeCFN) GetTemplateSummary(ctx context.Context, params *cloudformation.GetTemplateSummaryInput, optFns ...func(*cloudformation.Options)) (*cloudformation.GetTemplateSummaryOutput, error) {
	f.summaryCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &cloudformation.GetTemplateSummaryOutput{}, nil
}

func newMacroHandler(s3Client *fakeS3, cfnClient *fakeCFN) *MacroHandler {
	h := NewMacroHandler(s3Client, cfnClient, "templates-bucket", testInstance().InstanceArn)
	h.Now = func() time.Time { return time.Date(2024, 5, 1, 12, 34, 56, 0, time.UTC) }
	return h
}

func TestMacroHandler_RewritesPermissionSetsAndStripsMarkers(t *testing.T) {
	req := MacroRequest{
		RequestID: "req-123",
		Fragment: map[string]interface{}{
			"Transform": "SSOUtil::Macro",
			"Metadata":  map[string]interface{}{"SSO": map[string]interface{}{"MaxResourcesPerTemplate": float64(500)}},
			"Resources": map[string]interface{}{
				"Admins": map[string]interface{}{
					"Type": "SSOUtil::SSO::PermissionSet",
					"Properties": map[string]interface{}{
						"Name":            "Admins",
						"InlinePolicy":    map[string]interface{}{"Version": "2012-10-17"},
						"ManagedPolicies": []interface{}{"AdministratorAccess"},
					},
				},
			},
		},
	}

	h := newMacroHandler(&fakeS3{}, &fakeCFN{})
	resp := h.Handle(context.Background(), req, nil, DefaultGenerationConfig())

	require.Equal(t, "success", resp.Status)
	assert.Equal(t, "req-123", resp.RequestID)
	assert.NotContains(t, resp.Fragment, "Transform")
	assert.NotContains(t, resp.Fragment, "Metadata")

	resources := resp.Fragment["Resources"].(map[string]interface{})
	admins := resources["Admins"].(map[string]interface{})
	assert.Equal(t, "AWS::SSO::PermissionSet", admins["Type"])
	props := admins["Properties"].(map[string]interface{})
	assert.Equal(t, testInstance().InstanceArn, props["InstanceArn"])
	assert.IsType(t, "", props["InlinePolicy"], "structured inline policies are stringified")
	assert.Equal(t, "arn:aws:iam::aws:policy/AdministratorAccess", props["ManagedPolicies"].([]interface{})[0])
}

func TestMacroHandler_ExpandsAssignmentGroupAndWritesChildren(t *testing.T) {
	assignments := makeAssignments(600)
	rc := &assign.ResourceCollection{Assignments: assignments, NumResources: len(assignments)}

	req := MacroRequest{
		RequestID: "req-456",
		Fragment: map[string]interface{}{
			"Resources": map[string]interface{}{
				"TeamAccess": map[string]interface{}{
					"Type":       "SSOUtil::SSO::AssignmentGroup",
					"Properties": map[string]interface{}{},
				},
			},
		},
	}

	two := 2
	cfg := DefaultGenerationConfig()
	cfg.NumChildStacks = &two
	cfg.ResourcePrefix = "SSO"

	s3Client := &fakeS3{}
	cfnClient := &fakeCFN{}
	h := newMacroHandler(s3Client, cfnClient)
	resp := h.Handle(context.Background(), req, map[string]*assign.ResourceCollection{"TeamAccess": rc}, cfg)

	require.Equal(t, "success", resp.Status, resp.ErrorMessage)

	resources := resp.Fragment["Resources"].(map[string]interface{})
	assert.NotContains(t, resources, "TeamAccess", "the assignment group itself is replaced")
	stacks := 0
	for _, raw := range resources {
		if res, ok := raw.(map[string]interface{}); ok && res["Type"] == "AWS::CloudFormation::Stack" {
			stacks++
		}
	}
	assert.Equal(t, 2, stacks)

	// Child templates land under <prefix>/<UTC minute>/<request id>/, each
	// summary-validated before the write.
	require.Len(t, s3Client.keys, 2)
	for _, key := range s3Client.keys {
		assert.Contains(t, key, "ssoctl-macro/202405011234/req-456/")
	}
	assert.Equal(t, 2, cfnClient.summaryCalls)
}

func TestMacroHandler_ChildFailingSummaryValidationFails(t *testing.T) {
	assignments := makeAssignments(10)
	rc := &assign.ResourceCollection{Assignments: assignments, NumResources: len(assignments)}

	req := MacroRequest{
		RequestID: "req-457",
		Fragment: map[string]interface{}{
			"Resources": map[string]interface{}{
				"TeamAccess": map[string]interface{}{
					"Type":       "SSOUtil::SSO::AssignmentGroup",
					"Properties": map[string]interface{}{},
				},
			},
		},
	}

	one := 1
	cfg := DefaultGenerationConfig()
	cfg.NumChildStacks = &one

	s3Client := &fakeS3{}
	h := newMacroHandler(s3Client, &fakeCFN{err: fmt.Errorf("template format error")})
	resp := h.Handle(context.Background(), req, map[string]*assign.ResourceCollection{"TeamAccess": rc}, cfg)

	assert.Equal(t, "failure", resp.Status)
	assert.Contains(t, resp.ErrorMessage, "template-summary validation")
	assert.Empty(t, s3Client.keys, "nothing is written after validation fails")
}

func TestMacroHandler_MissingResolutionFails(t *testing.T) {
	req := MacroRequest{
		RequestID: "req-789",
		Fragment: map[string]interface{}{
			"Resources": map[string]interface{}{
				"TeamAccess": map[string]interface{}{
					"Type":       "SSOUtil::SSO::AssignmentGroup",
					"Properties": map[string]interface{}{},
				},
			},
		},
	}

	h := newMacroHandler(&fakeS3{}, &fakeCFN{})
	resp := h.Handle(context.Background(), req, nil, DefaultGenerationConfig())
	assert.Equal(t, "failure", resp.Status)
	assert.Contains(t, resp.ErrorMessage, "TeamAccess")
	assert.Equal(t, "req-789", resp.RequestID)
}
