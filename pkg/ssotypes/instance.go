// Package ssotypes holds the value types shared by every ssoctl component:
// SSO instances, sessions, tokens, credentials, principals, permission sets,
// targets, and assignments.
package ssotypes

import (
	"fmt"
	"regexp"
)

var instanceArnPattern = regexp.MustCompile(`^arn:(aws|aws-us-gov|aws-cn):sso:::instance/ssoins-[0-9a-f]{16}$`)
var identityStoreIDPattern = regexp.MustCompile(`^d-[0-9a-f]{10}$`)

// InstanceRef identifies a single IAM Identity Center instance: the
// instance ARN, its paired identity store id, and the region it is deployed
// in.
type InstanceRef struct {
	InstanceArn     string
	IdentityStoreID string
	Region          string
}

// ValidateInstanceArn reports whether arn matches
// arn:<partition>:sso:::instance/ssoins-<16 hex>.
func ValidateInstanceArn(arn string) error {
	if !instanceArnPattern.MatchString(arn) {
		return fmt.Errorf("invalid instance arn %q", arn)
	}
	return nil
}

// ValidateIdentityStoreID reports whether id matches d-<10 hex>.
func ValidateIdentityStoreID(id string) error {
	if !identityStoreIDPattern.MatchString(id) {
		return fmt.Errorf("invalid identity store id %q", id)
	}
	return nil
}

// Validate checks both fields of the InstanceRef.
func (i InstanceRef) Validate() error {
	if err := ValidateInstanceArn(i.InstanceArn); err != nil {
		return err
	}
	if i.IdentityStoreID != "" {
		if err := ValidateIdentityStoreID(i.IdentityStoreID); err != nil {
			return err
		}
	}
	return nil
}
