package adt

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/wordflowlab/abapagents/pkg/tools"
)

// Read 读取对象源码
func (c *Client) Read(ctx context.Context, objectName, objectType string) (*tools.SourceResult, error) {
	var out tools.SourceResult
	if err := c.call(ctx, http.MethodGet, objectPath(objectType, objectName, "source"), nil, nil, &out); err != nil {
		return nil, err
	}
	if out.ObjectName == "" {
		out.ObjectName = strings.ToUpper(objectName)
	}
	if out.ObjectType == "" {
		out.ObjectType = strings.ToUpper(objectType)
	}
	return &out, nil
}

// Write 写入对象源码, 传输请求优先取自 ctx, 其次取自配置
func (c *Client) Write(ctx context.Context, objectName, source, objectType, pkg string) (*tools.WriteResult, error) {
	transport := tools.TransportFromContext(ctx)
	if transport == "" {
		transport = c.cfg.Transport
	}
	in := map[string]interface{}{
		"source":    source,
		"package":   pkg,
		"transport": transport,
	}

	var out tools.WriteResult
	if err := c.call(ctx, http.MethodPut, objectPath(objectType, objectName, "source"), nil, in, &out); err != nil {
		return nil, err
	}
	if out.ObjectName == "" {
		out.ObjectName = strings.ToUpper(objectName)
	}
	if out.Transport == "" {
		out.Transport = transport
	}
	c.logger.Info(ctx, "source written", map[string]interface{}{
		"object":    out.ObjectName,
		"package":   pkg,
		"transport": out.Transport,
	})
	return &out, nil
}

// List 列出包内对象
func (c *Client) List(ctx context.Context, pkg string) (*tools.ObjectList, error) {
	out := tools.ObjectList{Package: strings.ToUpper(pkg)}
	path := "/packages/" + url.PathEscape(strings.ToUpper(pkg)) + "/objects"
	if err := c.call(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search 按名称模式搜索仓库
func (c *Client) Search(ctx context.Context, query, objectType string) (*tools.SearchResult, error) {
	q := url.Values{"query": {query}}
	if objectType != "" {
		q.Set("type", strings.ToUpper(objectType))
	}
	out := tools.SearchResult{Query: query}
	if err := c.call(ctx, http.MethodGet, "/search", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DDIC 读取数据字典定义
func (c *Client) DDIC(ctx context.Context, objectName string) (*tools.DDICResult, error) {
	out := tools.DDICResult{ObjectName: strings.ToUpper(objectName)}
	if err := c.call(ctx, http.MethodGet, "/ddic/"+url.PathEscape(strings.ToUpper(objectName)), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Activate 激活对象
func (c *Client) Activate(ctx context.Context, objectName, objectType string) (*tools.ActivationResult, error) {
	out := tools.ActivationResult{ObjectName: strings.ToUpper(objectName)}
	if err := c.call(ctx, http.MethodPost, objectPath(objectType, objectName, "activate"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Tests 运行 ABAP Unit
func (c *Client) Tests(ctx context.Context, objectName string, withCoverage bool) (*tools.TestRunResult, error) {
	out := tools.TestRunResult{ObjectName: strings.ToUpper(objectName)}
	in := map[string]interface{}{"with_coverage": withCoverage}
	if err := c.call(ctx, http.MethodPost, objectPath("", objectName, "unit-tests"), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Syntax 语法检查
func (c *Client) Syntax(ctx context.Context, objectName, objectType string) (*tools.SyntaxResult, error) {
	out := tools.SyntaxResult{ObjectName: strings.ToUpper(objectName)}
	if err := c.call(ctx, http.MethodPost, objectPath(objectType, objectName, "syntax-check"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
