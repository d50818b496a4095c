package safety

import (
	"regexp"
	"strings"
)

// SecretKind 硬编码凭据的类别
type SecretKind string

const (
	SecretPassword   SecretKind = "password"
	SecretAPIKey     SecretKind = "api_key"
	SecretPrivateKey SecretKind = "private_key"
	SecretBearer     SecretKind = "bearer_token"
	SecretBasicURL   SecretKind = "url_credentials"
)

// SecretPattern 一个凭据检测模式
type SecretPattern struct {
	Kind        SecretKind
	Description string
	Regex       *regexp.Regexp
	Validator   func(string) bool // 可选的额外验证
}

// SecretPatterns 内置的凭据检测模式
var SecretPatterns = []SecretPattern{
	{
		Kind:        SecretPrivateKey,
		Description: "PEM private key block",
		Regex:       regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |)PRIVATE KEY-----`),
	},
	// ABAP 字面量用单引号或反引号
	{
		Kind:        SecretPassword,
		Description: "hard-coded password literal",
		Regex:       regexp.MustCompile("(?i)\\b(?:password|passwd|pwd|kennwort)\\b\\s*(?:=|\\bTYPE\\b[^.]*\\bVALUE\\b)\\s*['`]([^'`]{4,})['`]"),
		Validator:   notPlaceholder,
	},
	{
		Kind:        SecretAPIKey,
		Description: "API key or client secret literal",
		Regex:       regexp.MustCompile("(?i)\\b(?:api[_-]?key|client[_-]?secret|secret[_-]?key)\\b\\s*(?:=|\\bVALUE\\b)\\s*['`]([A-Za-z0-9_\\-]{16,})['`]"),
		Validator:   notPlaceholder,
	},
	{
		Kind:        SecretBearer,
		Description: "bearer token literal",
		Regex:       regexp.MustCompile(`(?i)bearer\s+([A-Za-z0-9\-._~+/]{20,}=*)`),
	},
	{
		Kind:        SecretBasicURL,
		Description: "credentials embedded in URL",
		Regex:       regexp.MustCompile(`(?i)https?://[^/\s:@'` + "`" + `]+:([^/\s@'` + "`" + `]+)@`),
		Validator:   notPlaceholder,
	},
}

// SecretMatch 一处命中
type SecretMatch struct {
	Kind SecretKind
	Line int
}

// DetectSecrets 扫描源码中的硬编码凭据, 注释行 (以 * 开头) 跳过
func DetectSecrets(source string) []SecretMatch {
	var matches []SecretMatch
	for i, line := range strings.Split(source, "\n") {
		if strings.HasPrefix(line, "*") {
			continue
		}
		for _, p := range SecretPatterns {
			m := p.Regex.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			value := m[0]
			if len(m) > 1 {
				value = m[1]
			}
			if p.Validator != nil && !p.Validator(value) {
				continue
			}
			matches = append(matches, SecretMatch{Kind: p.Kind, Line: i + 1})
		}
	}
	return matches
}

func notPlaceholder(v string) bool {
	lower := strings.ToLower(v)
	for _, p := range []string{"xxx", "***", "<", "changeme", "dummy", "placeholder"} {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}
