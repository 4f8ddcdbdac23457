package consoleurl

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/praetorian-inc/ssoctl/internal/awsclients"
)

// FederationSession exchanges the ambient credentials for a federation
// token via sts:GetFederationToken and returns it as a signin Session, the
// launch path for callers who already hold long-lived credentials instead
// of SSO role credentials. IAM requires names of 2-32 characters.
func FederationSession(ctx context.Context, client awsclients.STSClient, name string, duration time.Duration) (Session, error) {
	if name == "" {
		name = "ssoctl"
	}
	input := &sts.GetFederationTokenInput{Name: aws.String(name)}
	if duration > 0 {
		input.DurationSeconds = aws.Int32(int32(duration / time.Second))
	}

	resp, err := client.GetFederationToken(ctx, input)
	if err != nil {
		return Session{}, fmt.Errorf("getting federation token: %w", err)
	}
	creds := resp.Credentials
	if creds == nil {
		return Session{}, fmt.Errorf("federation token response carried no credentials")
	}
	return Session{
		SessionID:    aws.ToString(creds.AccessKeyId),
		SessionKey:   aws.ToString(creds.SecretAccessKey),
		SessionToken: aws.ToString(creds.SessionToken),
	}, nil
}
