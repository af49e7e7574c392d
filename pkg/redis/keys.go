package redis

import "strings"

const keyNamespace = "sf"

const (
	spaceIdempotency = "idempotency"
	spaceRateLimit   = "rate_limit"
	spaceSession     = "session"
	spaceLock        = "lock"
)

// IdempotencyKey namespaces a client-supplied key under its caller scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return key(spaceIdempotency, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return key(spaceRateLimit, scope)
}

// SessionKey holds one named piece of state for an anonymous session.
func (c *Client) SessionKey(sessionID, name string) string {
	return key(spaceSession, sessionID, name)
}

func (c *Client) LockKey(name string) string {
	return key(spaceLock, name)
}

// key joins the non-blank trimmed parts below the namespace.
func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
