package ssotypes

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
)

// PermissionSetMode discriminates how a PermissionSet value was supplied by
// the caller: a literal ARN, an ARN missing only the instance prefix, a bare
// id, a reference to a resource defined elsewhere in the template, or an
// inline resource definition that the template planner must also emit.
type PermissionSetMode string

const (
	PermissionSetArnLiteral     PermissionSetMode = "ARN_LITERAL"
	PermissionSetInstanceScoped PermissionSetMode = "INSTANCE_SCOPED_ID"
	PermissionSetBareID         PermissionSetMode = "BARE_ID"
	PermissionSetTemplateRef    PermissionSetMode = "TEMPLATE_REF"
	PermissionSetInlineResource PermissionSetMode = "INLINE_RESOURCE"
)

var fullPermissionSetArnPattern = regexp.MustCompile(`^arn:(aws|aws-us-gov|aws-cn):sso:::permissionSet/ssoins-[0-9a-f]{16}/ps-[0-9a-f]{16}$`)
var instanceScopedArnPattern = regexp.MustCompile(`^arn:(aws|aws-us-gov|aws-cn):sso:::permissionSet//ps-[0-9a-f]{16}$`)
var barePermissionSetIDPattern = regexp.MustCompile(`^ps-[0-9a-f]{16}$`)

// PermissionSetResource is the inline resource body carried by an
// INLINE_RESOURCE-mode PermissionSet; the planner emits it as an
// AWS::SSO::PermissionSet resource.
type PermissionSetResource struct {
	Name            string
	Description     string
	SessionDuration string
	ManagedPolicies []string
	InlinePolicy    interface{}
	RelayState      string
	Tags            map[string]string
}

// PermissionSet is the tagged-union value from the data model: exactly one
// of ARN, BareID, TemplateRef, or Inline is meaningful depending on Mode.
type PermissionSet struct {
	Mode        PermissionSetMode
	ARN         string
	BareID      string
	TemplateRef string
	Inline      *PermissionSetResource
}

// Resolve normalizes a PermissionSet to its full ARN given the active
// instance ARN, for every mode except TEMPLATE_REF and INLINE_RESOURCE,
// which resolve to a template expression instead of a literal ARN and are
// returned as an error asking the caller to use ResourceName.
func (p PermissionSet) Resolve(instanceArn string) (string, error) {
	switch p.Mode {
	case PermissionSetArnLiteral:
		return p.ARN, nil
	case PermissionSetInstanceScoped:
		instanceID, err := instanceIDFromArn(instanceArn)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("arn:%s:sso:::permissionSet/%s/%s", partitionFromArn(instanceArn), instanceID, bareIDFromInstanceScopedArn(p.ARN)), nil
	case PermissionSetBareID:
		instanceID, err := instanceIDFromArn(instanceArn)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("arn:%s:sso:::permissionSet/%s/%s", partitionFromArn(instanceArn), instanceID, p.BareID), nil
	default:
		return "", fmt.Errorf("permission set in mode %s has no literal ARN; use its resource name instead", p.Mode)
	}
}

// HashKey returns the stable string used inside an assignment fingerprint.
func (p PermissionSet) HashKey() string {
	switch p.Mode {
	case PermissionSetArnLiteral, PermissionSetInstanceScoped:
		return "permissionset#arn#" + p.ARN
	case PermissionSetBareID:
		return "permissionset#id#" + p.BareID
	case PermissionSetTemplateRef:
		return "permissionset#ref#" + p.TemplateRef
	case PermissionSetInlineResource:
		return "permissionset#inline#" + p.Inline.Name
	default:
		return "permissionset#unknown"
	}
}

// ResourceName returns the template resource name this permission set
// contributes when Mode is INLINE_RESOURCE: "<prefix>PermSet<name>". Other
// modes contribute zero resources, per the data-model invariant.
func (p PermissionSet) ResourceName(prefix string) (string, bool) {
	if p.Mode != PermissionSetInlineResource {
		return "", false
	}
	return prefix + "PermSet" + p.Inline.Name, true
}

// ParsePermissionSetSpec classifies a raw string specifier into the
// appropriate tagged mode. Template references are recognized by the
// caller before this is invoked (they arrive as a distinct type in a
// loosely typed config document), so this only distinguishes the three ARN
// shapes.
func ParsePermissionSetSpec(raw string) (PermissionSet, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case fullPermissionSetArnPattern.MatchString(raw):
		return PermissionSet{Mode: PermissionSetArnLiteral, ARN: raw}, nil
	case instanceScopedArnPattern.MatchString(raw):
		return PermissionSet{Mode: PermissionSetInstanceScoped, ARN: raw}, nil
	case barePermissionSetIDPattern.MatchString(raw):
		return PermissionSet{Mode: PermissionSetBareID, BareID: raw}, nil
	default:
		return PermissionSet{}, fmt.Errorf("%q is not a recognized permission set specifier", raw)
	}
}

func instanceIDFromArn(instanceArn string) (string, error) {
	const marker = "instance/"
	idx := strings.Index(instanceArn, marker)
	if idx < 0 {
		return "", fmt.Errorf("invalid instance arn %q", instanceArn)
	}
	return instanceArn[idx+len(marker):], nil
}

func partitionFromArn(s string) string {
	parsed, err := arn.Parse(s)
	if err != nil || parsed.Partition == "" {
		return "aws"
	}
	return parsed.Partition
}

func bareIDFromInstanceScopedArn(a string) string {
	idx := strings.LastIndex(a, "/")
	if idx < 0 {
		return a
	}
	return a[idx+1:]
}
