package tools

import "context"

// RemoteOperations 远端开发系统的操作门面
type RemoteOperations interface {
	Read(ctx context.Context, objectName, objectType string) (*SourceResult, error)
	Write(ctx context.Context, objectName, source, objectType, pkg string) (*WriteResult, error)
	List(ctx context.Context, pkg string) (*ObjectList, error)
	Search(ctx context.Context, query, objectType string) (*SearchResult, error)
	DDIC(ctx context.Context, objectName string) (*DDICResult, error)
	Activate(ctx context.Context, objectName, objectType string) (*ActivationResult, error)
	Tests(ctx context.Context, objectName string, withCoverage bool) (*TestRunResult, error)
	Syntax(ctx context.Context, objectName, objectType string) (*SyntaxResult, error)
}

// ObjectInfo 仓库对象
type ObjectInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Package     string `json:"package,omitempty"`
}

// Diagnostic 检查/激活消息
type Diagnostic struct {
	Severity string `json:"severity"`
	Text     string `json:"text"`
	Line     int    `json:"line,omitempty"`
}

// SourceResult read 结果
type SourceResult struct {
	ObjectName string `json:"object_name"`
	ObjectType string `json:"object_type"`
	Source     string `json:"source"`
}

// WriteResult write 结果
type WriteResult struct {
	ObjectName string `json:"object_name"`
	ObjectType string `json:"object_type"`
	Package    string `json:"package,omitempty"`
	Transport  string `json:"transport,omitempty"`
	Created    bool   `json:"created"`
	Message    string `json:"message,omitempty"`
}

// ObjectList list 结果
type ObjectList struct {
	Package string       `json:"package"`
	Objects []ObjectInfo `json:"objects"`
}

// SearchResult search 结果
type SearchResult struct {
	Query   string       `json:"query"`
	Results []ObjectInfo `json:"results"`
}

// DDICField 字典字段
type DDICField struct {
	Name        string `json:"name"`
	DataElement string `json:"data_element,omitempty"`
	Type        string `json:"type,omitempty"`
	Length      int    `json:"length,omitempty"`
	Key         bool   `json:"key,omitempty"`
	Description string `json:"description,omitempty"`
}

// DDICResult ddic 结果
type DDICResult struct {
	ObjectName  string      `json:"object_name"`
	Kind        string      `json:"kind"`
	Description string      `json:"description,omitempty"`
	Fields      []DDICField `json:"fields,omitempty"`
}

// ActivationResult activate 结果
type ActivationResult struct {
	ObjectName string       `json:"object_name"`
	Success    bool         `json:"success"`
	Messages   []Diagnostic `json:"messages,omitempty"`
}

// TestCase 单个测试方法结果
type TestCase struct {
	Class   string `json:"class"`
	Method  string `json:"method"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// TestRunResult tests 结果
type TestRunResult struct {
	ObjectName string     `json:"object_name"`
	Passed     int        `json:"passed"`
	Failed     int        `json:"failed"`
	Cases      []TestCase `json:"cases,omitempty"`

	// Coverage 语句覆盖率百分比, 未请求时为 nil
	Coverage *float64 `json:"coverage,omitempty"`
}

// SyntaxResult syntax 结果
type SyntaxResult struct {
	ObjectName string       `json:"object_name"`
	Valid      bool         `json:"valid"`
	Messages   []Diagnostic `json:"messages,omitempty"`
}

type transportKey struct{}

// ContextWithTransport 携带本次写操作的传输请求号
func ContextWithTransport(ctx context.Context, transport string) context.Context {
	if transport == "" {
		return ctx
	}
	return context.WithValue(ctx, transportKey{}, transport)
}

// TransportFromContext 读取传输请求号
func TransportFromContext(ctx context.Context) string {
	v, _ := ctx.Value(transportKey{}).(string)
	return v
}
