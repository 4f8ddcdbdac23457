package ssotoken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sso"
	"github.com/aws/aws-sdk-go-v2/service/ssooidc"
	"github.com/aws/aws-sdk-go-v2/service/ssooidc/types"
	"github.com/aws/smithy-go"

	"github.com/praetorian-inc/ssoctl/internal/awsclients"
	"github.com/praetorian-inc/ssoctl/pkg/ssoerr"
	"github.com/praetorian-inc/ssoctl/pkg/ssotypes"
)

// PendingAuthorization is delivered to the on-pending-authorization
// callback once a device-authorization request has started.
type PendingAuthorization struct {
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresAt               time.Time
}

// PendingAuthorizationCallback is invoked when the device flow needs the
// user to visit a verification URL. A non-interactive implementation
// should return AuthenticationNeededError immediately, short-circuiting
// the poll.
type PendingAuthorizationCallback func(ctx context.Context, p PendingAuthorization) error

// Engine runs the fetch_token state machine for one or more sessions. It
// holds no process-wide state: every call is parameterized by the Session
// it concerns, per the "no singletons" design note.
type Engine struct {
	OIDC         awsclients.OIDCClient
	TokenCache   TokenCache
	RegCache     RegistrationCache
	Now          func() time.Time
	Sleep        func(context.Context, time.Duration) error
	OnPending    PendingAuthorizationCallback
	ExpiryWindow time.Duration
	ClientTool   string // e.g. "ssoctl", used in the registered clientName
}

// NewEngine builds an Engine with production defaults: wall-clock time,
// real sleeping, and the default 15-minute expiry window.
func NewEngine(oidc awsclients.OIDCClient, tokenCache TokenCache, regCache RegistrationCache, onPending PendingAuthorizationCallback) *Engine {
	return &Engine{
		OIDC:         oidc,
		TokenCache:   tokenCache,
		RegCache:     regCache,
		Now:          time.Now,
		Sleep:        sleepCtx,
		OnPending:    onPending,
		ExpiryWindow: ssotypes.DefaultExpiryWindow,
		ClientTool:   "ssoctl",
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FetchToken runs START → READ_CACHE → {RETURN, REFRESH, REGISTER→AUTHORIZE}
// for session, returning a fresh AccessToken.
func (e *Engine) FetchToken(ctx context.Context, session ssotypes.Session) (ssotypes.AccessToken, error) {
	now := e.Now()

	cached, hit, err := e.TokenCache.Get(session)
	if err != nil {
		return ssotypes.AccessToken{}, ssoerr.Wrap(ssoerr.KindServiceError, err, "reading token cache")
	}

	if hit && !cached.Expired(now, e.ExpiryWindow) {
		return cached, nil
	}

	if hit && cached.Refreshable(now) {
		refreshed, err := e.refresh(ctx, session, cached)
		if err == nil {
			if err := e.TokenCache.Put(session, refreshed); err != nil {
				return ssotypes.AccessToken{}, ssoerr.Wrap(ssoerr.KindServiceError, err, "writing token cache")
			}
			return refreshed, nil
		}
		// fall through to the full device flow on any refresh error
	}

	reg, err := e.registration(ctx, session)
	if err != nil {
		return ssotypes.AccessToken{}, err
	}

	token, err := e.authorize(ctx, session, reg)
	if err != nil {
		return ssotypes.AccessToken{}, err
	}

	if err := e.TokenCache.Put(session, token); err != nil {
		return ssotypes.AccessToken{}, ssoerr.Wrap(ssoerr.KindServiceError, err, "writing token cache")
	}
	return token, nil
}

// registration returns a cached, unexpired client registration or performs
// and caches a new one.
func (e *Engine) registration(ctx context.Context, session ssotypes.Session) (ssotypes.ClientRegistration, error) {
	key := RegistrationKey{
		Tool:        e.ClientTool,
		StartURL:    session.StartURL,
		Region:      session.Region,
		Scopes:      session.RegistrationScopes,
		SessionName: session.Name,
	}

	if cached, ok, err := e.RegCache.Get(key); err == nil && ok && !cached.Expired(e.Now()) {
		return cached, nil
	}

	clientName := e.ClientTool
	if !session.IsInline() {
		clientName = fmt.Sprintf("%s-%s", e.ClientTool, session.Name)
	}

	input := &ssooidc.RegisterClientInput{
		ClientName: aws.String(clientName),
		ClientType: aws.String("public"),
	}
	if !session.IsInline() && len(session.RegistrationScopes) > 0 {
		input.Scopes = session.RegistrationScopes
	}

	resp, err := e.OIDC.RegisterClient(ctx, input)
	if err != nil {
		return ssotypes.ClientRegistration{}, ssoerr.Wrap(ssoerr.KindServiceError, err, "registering OIDC client")
	}

	reg := ssotypes.ClientRegistration{
		ClientID:     aws.ToString(resp.ClientId),
		ClientSecret: aws.ToString(resp.ClientSecret),
		ExpiresAt:    time.Unix(resp.ClientSecretExpiresAt, 0),
		ReceivedAt:   e.Now(),
		Scopes:       session.RegistrationScopes,
	}
	if err := e.RegCache.Put(key, reg); err != nil {
		return ssotypes.ClientRegistration{}, ssoerr.Wrap(ssoerr.KindServiceError, err, "writing registration cache")
	}
	return reg, nil
}

// authorize runs StartDeviceAuthorization, then CREATE_TOKEN's one
// pre-prompt attempt with the new device code, then, on AuthorizationPending
// or SlowDown, the pending-authorization callback followed by the poll loop.
func (e *Engine) authorize(ctx context.Context, session ssotypes.Session, reg ssotypes.ClientRegistration) (ssotypes.AccessToken, error) {
	device, err := e.OIDC.StartDeviceAuthorization(ctx, &ssooidc.StartDeviceAuthorizationInput{
		ClientId:     aws.String(reg.ClientID),
		ClientSecret: aws.String(reg.ClientSecret),
		StartUrl:     aws.String(session.StartURL),
	})
	if err != nil {
		return ssotypes.AccessToken{}, ssoerr.Wrap(ssoerr.KindServiceError, err, "starting device authorization")
	}

	createInput := &ssooidc.CreateTokenInput{
		ClientId:     aws.String(reg.ClientID),
		ClientSecret: aws.String(reg.ClientSecret),
		DeviceCode:   device.DeviceCode,
		GrantType:    aws.String("urn:ietf:params:oauth:grant-type:device_code"),
	}

	interval := time.Duration(device.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	// One pre-prompt attempt: a user may have already approved this device
	// code (e.g. a second concurrent login), in which case no prompt is needed.
	resp, err := e.OIDC.CreateToken(ctx, createInput)
	if err == nil {
		return e.tokenFromResponse(session, reg, resp), nil
	}
	switch classifyCreateTokenError(err) {
	case tokenPending:
	case tokenSlowDown:
		interval += 5 * time.Second
	case tokenExpired:
		return ssotypes.AccessToken{}, ssoerr.Wrap(ssoerr.KindPendingAuthExpired, err, "device authorization window elapsed")
	default:
		return ssotypes.AccessToken{}, ssoerr.Wrap(ssoerr.KindServiceError, err, "creating token")
	}

	expiresAt := e.Now().Add(time.Duration(device.ExpiresIn) * time.Second)
	if e.OnPending != nil {
		if err := e.OnPending(ctx, PendingAuthorization{
			UserCode:                aws.ToString(device.UserCode),
			VerificationURI:         aws.ToString(device.VerificationUri),
			VerificationURIComplete: aws.ToString(device.VerificationUriComplete),
			ExpiresAt:               expiresAt,
		}); err != nil {
			return ssotypes.AccessToken{}, err
		}
	}

	for {
		if err := e.Sleep(ctx, interval); err != nil {
			return ssotypes.AccessToken{}, err
		}

		resp, err := e.OIDC.CreateToken(ctx, createInput)
		if err == nil {
			return e.tokenFromResponse(session, reg, resp), nil
		}

		switch classifyCreateTokenError(err) {
		case tokenPending:
		case tokenSlowDown:
			interval += 5 * time.Second
		case tokenExpired:
			return ssotypes.AccessToken{}, ssoerr.Wrap(ssoerr.KindPendingAuthExpired, err, "device authorization window elapsed")
		default:
			return ssotypes.AccessToken{}, ssoerr.Wrap(ssoerr.KindServiceError, err, "creating token")
		}
	}
}

type createTokenOutcome int

const (
	tokenFatal createTokenOutcome = iota
	tokenPending
	tokenSlowDown
	tokenExpired
)

func classifyCreateTokenError(err error) createTokenOutcome {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return tokenFatal
	}
	switch apiErr.ErrorCode() {
	case (&types.AuthorizationPendingException{}).ErrorCode():
		return tokenPending
	case (&types.SlowDownException{}).ErrorCode():
		return tokenSlowDown
	case (&types.ExpiredTokenException{}).ErrorCode():
		return tokenExpired
	default:
		return tokenFatal
	}
}

func (e *Engine) refresh(ctx context.Context, session ssotypes.Session, cached ssotypes.AccessToken) (ssotypes.AccessToken, error) {
	reg := ssotypes.ClientRegistration{
		ClientID:     cached.ClientID,
		ClientSecret: cached.ClientSecret,
		ExpiresAt:    cached.RegistrationExpiresAt,
	}
	resp, err := e.OIDC.CreateToken(ctx, &ssooidc.CreateTokenInput{
		ClientId:     aws.String(reg.ClientID),
		ClientSecret: aws.String(reg.ClientSecret),
		GrantType:    aws.String("refresh_token"),
		RefreshToken: aws.String(cached.RefreshToken),
	})
	if err != nil {
		return ssotypes.AccessToken{}, err
	}
	return e.tokenFromResponse(session, reg, resp), nil
}

func (e *Engine) tokenFromResponse(session ssotypes.Session, reg ssotypes.ClientRegistration, resp *ssooidc.CreateTokenOutput) ssotypes.AccessToken {
	now := e.Now()
	return ssotypes.AccessToken{
		StartURL:              session.StartURL,
		Region:                session.Region,
		AccessToken:           aws.ToString(resp.AccessToken),
		ExpiresAt:             now.Add(time.Duration(resp.ExpiresIn) * time.Second),
		ReceivedAt:            now,
		ClientID:              reg.ClientID,
		ClientSecret:          reg.ClientSecret,
		RegistrationExpiresAt: reg.ExpiresAt,
		RefreshToken:          aws.ToString(resp.RefreshToken),
		Scopes:                session.RegistrationScopes,
	}
}

// Logout removes the cached token for session and, swallowing all errors,
// calls the SSO logout API with its access token.
func (e *Engine) Logout(ctx context.Context, ssoClient awsclients.SSOClient, session ssotypes.Session) {
	cached, ok, err := e.TokenCache.Get(session)
	_ = e.TokenCache.Delete(session)
	if err != nil || !ok {
		return
	}
	// Logout is best-effort: network failures, already-expired tokens, and
	// already-revoked sessions are all swallowed per the contract.
	_, _ = ssoClient.Logout(ctx, &sso.LogoutInput{AccessToken: aws.String(cached.AccessToken)})
}
