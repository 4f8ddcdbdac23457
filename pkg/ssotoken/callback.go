package ssotoken

import (
	"context"

	"github.com/pkg/browser"

	"github.com/praetorian-inc/ssoctl/internal/message"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
)

// InteractivePendingCallback prints the human-facing device-flow prompt and
// optionally opens a browser at the complete verification URL, the default
// on-pending-authorization implementation. openBrowser is false when
// AWS_SSO_DISABLE_BROWSER is truthy.
func InteractivePendingCallback(openBrowser bool) PendingAuthorizationCallback {
	return func(ctx context.Context, p PendingAuthorization) error {
		message.Info("Attempting to automatically open the SSO authorization page in your default browser.")
		message.Info("If the browser does not open, or you wish to use a different device, open the following URL:")
		message.Info("")
		message.Info("%s", p.VerificationURI)
		message.Info("")
		message.Info("Then enter the code: %s", p.UserCode)
		if openBrowser {
			_ = browser.OpenURL(p.VerificationURIComplete)
		}
		return nil
	}
}

// NonInteractivePendingCallback raises AuthenticationNeededError
// immediately, short-circuiting the poll, for contexts like the
// credential-process subcommand where no human is present to authorize.
func NonInteractivePendingCallback(ctx context.Context, p PendingAuthorization) error {
	return ssoerr.New(ssoerr.KindAuthenticationNeeded, "no valid cached SSO token and interactive login is disabled; run `ssoctl login` first")
}
