// Package auth 提供 HTTP 接口的 API key 认证。
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKeyID gin 上下文中已认证 key 的标识
const ContextKeyID = "api_key_id"

// KeySet 静态 API key 集合
type KeySet struct {
	keys [][]byte
}

// NewKeySet 创建 key 集合, 忽略空白 key
func NewKeySet(keys []string) *KeySet {
	s := &KeySet{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			s.keys = append(s.keys, []byte(k))
		}
	}
	return s
}

// Enabled 是否配置了 key
func (s *KeySet) Enabled() bool {
	return len(s.keys) > 0
}

// Validate 常量时间比较, 遍历全部 key
func (s *KeySet) Validate(key string) bool {
	if key == "" {
		return false
	}
	candidate := []byte(key)
	found := 0
	for _, k := range s.keys {
		found |= subtle.ConstantTimeCompare(k, candidate)
	}
	return found == 1
}

// KeyID 返回 key 的短指纹, 用于日志与限流
func KeyID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}

// ExtractKey 从指定 header 或 Authorization: Bearer 中读取 key
func ExtractKey(c *gin.Context, header string) string {
	if key := c.GetHeader(header); key != "" {
		return key
	}
	authz := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(authz, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// Middleware 返回认证中间件
func (s *KeySet) Middleware(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ExtractKey(c, header)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "missing_api_key", "message": "API key required"},
			})
			return
		}
		if !s.Validate(key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "invalid_api_key", "message": "API key not recognised"},
			})
			return
		}
		c.Set(ContextKeyID, KeyID(key))
		c.Next()
	}
}

// GenerateAPIKey 生成新的 API Key
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "sk_" + hex.EncodeToString(bytes), nil
}
