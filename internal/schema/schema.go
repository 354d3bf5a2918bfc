package schema

import (
	"time"
)

// FieldType Schema 字段类型
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array" // 元素类型见 FieldSpec.Items，缺省 string
	TypeObject  FieldType = "object"
)

// FieldSpec 单个字段的结构描述（供 LLM function-calling 与参数校验共用）
type FieldSpec struct {
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	MinLength   int       `json:"min_length,omitempty"`
	MaxLength   int       `json:"max_length,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty"`
	Items       FieldType `json:"items,omitempty"` // Type=array 时的元素类型；空按 string 处理
}

// Schema 工具入参或出参的结构描述：字段名 → FieldSpec
type Schema struct {
	Fields map[string]FieldSpec `json:"fields"`
}

// ToolDescriptor 工具描述：注册后不可变
type ToolDescriptor struct {
	Name               string        `json:"name"`
	Description        string        `json:"description"`
	Parameters         Schema        `json:"parameters"`
	Results            Schema        `json:"results"`
	RequiredPermission string        `json:"required_permission"`
	Idempotent         bool          `json:"idempotent"`      // 幂等工具才允许自动重试
	TimeoutOverride    time.Duration `json:"-"`               // 0 表示使用全局默认
	Regulated          bool          `json:"regulated"`       // 触达受监管健康数据，审计记录打标
}

// CatalogEntry 工具目录条目：暴露给 Call Planner 与直连调用方的公开形态
// （只含 name/description/参数与结果形状，不含内部实现信息）
type CatalogEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
	Results     Schema `json:"results"`
}

// Catalog 将 descriptor 列表投影为目录条目
func Catalog(descriptors []ToolDescriptor) []CatalogEntry {
	entries := make([]CatalogEntry, 0, len(descriptors))
	for _, d := range descriptors {
		entries = append(entries, CatalogEntry{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
			Results:     d.Results,
		})
	}
	return entries
}
