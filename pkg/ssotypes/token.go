package ssotypes

import "time"

// DefaultExpiryWindow is the default margin before ExpiresAt at which a
// token is treated as already expired: a token is considered expired when
// expiresAt - now is less than this window.
const DefaultExpiryWindow = 15 * time.Minute

// AccessToken is the cached access token record.
type AccessToken struct {
	StartURL              string
	Region                string
	AccessToken           string
	ExpiresAt             time.Time
	ReceivedAt            time.Time
	ClientID              string
	ClientSecret          string
	RegistrationExpiresAt time.Time
	RefreshToken          string
	Scopes                []string
}

// Expired reports whether the token is expired given window: expiresAt -
// now < window.
func (t AccessToken) Expired(now time.Time, window time.Duration) bool {
	return t.ExpiresAt.Sub(now) < window
}

// Refreshable reports whether the token carries a refresh token and the
// client registration backing it has not itself expired.
func (t AccessToken) Refreshable(now time.Time) bool {
	return t.RefreshToken != "" && now.Before(t.RegistrationExpiresAt)
}

// ClientRegistration is the (clientId, clientSecret) pair cached separately
// from the token it authorizes.
type ClientRegistration struct {
	ClientID     string
	ClientSecret string
	ExpiresAt    time.Time
	ReceivedAt   time.Time
	Scopes       []string
}

// Expired reports whether the registration has expired as of now.
func (r ClientRegistration) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
