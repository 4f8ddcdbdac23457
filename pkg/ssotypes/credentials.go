package ssotypes

import "time"

// RoleCredentials is the cached short-lived credential record, keyed by the
// hex SHA-1 of canonical-JSON {startUrl, roleName, accountId}.
type RoleCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// Fresh reports whether the cached record still has more than window left
// before Expiration.
func (c RoleCredentials) Fresh(now time.Time, window time.Duration) bool {
	return c.Expiration.Sub(now) > window
}
