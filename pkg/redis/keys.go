package redis

import "strings"

// Every key this service writes is gb:<kind>:<parts...>. Blank parts are
// dropped so a missing scope never yields "gb:kind::id".
const keyNamespace = "gb"

func buildKey(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(kind)
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			b.WriteByte(':')
			b.WriteString(p)
		}
	}
	return b.String()
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey("idempotency", scope, id)
}

func (c *Client) RateLimitKey(parts ...string) string {
	return buildKey("rate_limit", parts...)
}

func (c *Client) LockKey(name string) string {
	return buildKey("lock", name)
}

func (c *Client) ChannelName(name string) string {
	return buildKey("channel", name)
}
