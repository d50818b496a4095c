package auth

import "time"

// SetExpiry 直接改写缓存的过期时间
func (c *TokenCache) SetExpiry(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expiry = t
}

// Expiry 返回缓存的过期时间
func (c *TokenCache) Expiry() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiry
}
