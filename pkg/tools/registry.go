package tools

import (
	"github.com/wordflowlab/abapagents/pkg/provider"
)

// 工具名称
const (
	ReadSource       = "read_abap_source"
	WriteSource      = "write_abap_source"
	ListObjects      = "list_objects"
	SearchRepository = "search_repository"
	DataDictionary   = "get_data_dictionary"
	ActivateObject   = "activate_object"
	RunUnitTests     = "run_unit_tests"
	RunSyntaxCheck   = "run_syntax_check"
)

// ObjectTypes 允许的对象类型代码
var ObjectTypes = []string{"CLAS", "INTF", "FUGR", "PROG", "TABL", "DTEL"}

// Descriptor 工具描述
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}

	// Mutating 会修改远端系统，执行前需经过安全闸门
	Mutating bool
}

// Schema 转换为提供商使用的工具定义
func (d Descriptor) Schema() provider.ToolSchema {
	return provider.ToolSchema{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
}

// Required 返回必填字段
func (d Descriptor) Required() []string {
	req, _ := d.InputSchema["required"].([]string)
	return req
}

func stringProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func objectTypeProp() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Object type code",
		"enum":        ObjectTypes,
	}
}

func schema(props map[string]interface{}, required ...string) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

var registry = []Descriptor{
	{
		Name:        ReadSource,
		Description: "Read the source code of an ABAP repository object.",
		InputSchema: schema(map[string]interface{}{
			"object_name": stringProp("Name of the object, e.g. ZCL_VENDOR_RATING"),
			"object_type": objectTypeProp(),
		}, "object_name"),
	},
	{
		Name:        WriteSource,
		Description: "Create or overwrite the source code of an ABAP object. Subject to safety policy.",
		InputSchema: schema(map[string]interface{}{
			"object_name": stringProp("Name of the object"),
			"source":      stringProp("Complete ABAP source code"),
			"object_type": objectTypeProp(),
			"package":     stringProp("Target package, e.g. $TMP or ZVENDOR"),
			"transport":   stringProp("Transport request number for non-local packages"),
		}, "object_name", "source"),
		Mutating: true,
	},
	{
		Name:        ListObjects,
		Description: "List the repository objects contained in a package.",
		InputSchema: schema(map[string]interface{}{
			"package": stringProp("Package name"),
		}, "package"),
	},
	{
		Name:        SearchRepository,
		Description: "Search the repository for objects whose name matches a pattern.",
		InputSchema: schema(map[string]interface{}{
			"query":       stringProp("Search pattern, wildcards allowed (e.g. ZCL_VENDOR*)"),
			"object_type": objectTypeProp(),
		}, "query"),
	},
	{
		Name:        DataDictionary,
		Description: "Read a data dictionary definition (table, structure or data element).",
		InputSchema: schema(map[string]interface{}{
			"object_name": stringProp("Dictionary object name, e.g. LFA1"),
		}, "object_name"),
	},
	{
		Name:        ActivateObject,
		Description: "Activate an ABAP object so that the latest inactive version becomes active.",
		InputSchema: schema(map[string]interface{}{
			"object_name": stringProp("Name of the object"),
			"object_type": objectTypeProp(),
		}, "object_name"),
		Mutating: true,
	},
	{
		Name:        RunUnitTests,
		Description: "Run ABAP Unit tests for an object and report results.",
		InputSchema: schema(map[string]interface{}{
			"object_name":   stringProp("Name of the object under test"),
			"with_coverage": map[string]interface{}{"type": "boolean", "description": "Collect statement coverage"},
		}, "object_name"),
	},
	{
		Name:        RunSyntaxCheck,
		Description: "Run the ABAP syntax check for an object.",
		InputSchema: schema(map[string]interface{}{
			"object_name": stringProp("Name of the object"),
			"object_type": objectTypeProp(),
		}, "object_name"),
	},
}

var byName = func() map[string]Descriptor {
	m := make(map[string]Descriptor, len(registry))
	for _, d := range registry {
		m[d.Name] = d
	}
	return m
}()

// Registry 返回全部工具描述
func Registry() []Descriptor {
	out := make([]Descriptor, len(registry))
	copy(out, registry)
	return out
}

// Lookup 按名称查找工具
func Lookup(name string) (Descriptor, bool) {
	d, ok := byName[name]
	return d, ok
}

// ForRole 返回 names 与注册表的交集, 保持 names 的顺序
func ForRole(names []string) []Descriptor {
	out := make([]Descriptor, 0, len(names))
	for _, n := range names {
		if d, ok := byName[n]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Schemas 转换为提供商工具定义
func Schemas(descs []Descriptor) []provider.ToolSchema {
	out := make([]provider.ToolSchema, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.Schema())
	}
	return out
}

// IsMutating 判断工具是否会修改远端系统
func IsMutating(name string) bool {
	d, ok := byName[name]
	return ok && d.Mutating
}
