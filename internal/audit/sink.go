package audit

import (
	"context"
	"time"
)

// Filter 审计查询条件；零值字段不参与过滤
type Filter struct {
	SubjectID     string
	Tool          string
	CorrelationID string
	From          time.Time
	To            time.Time
	Regulated     *bool
	Limit         int
	Offset        int
}

// Sink 审计落盘契约。Append 同步写入并维护哈希链：
// 返回错误意味着这次调用不能对外报告成功。
type Sink interface {
	// Append 写入一条记录；实现负责填充 PrevHash 与 Hash
	Append(ctx context.Context, r *Record) error
	// Query 按条件查询，按写入顺序返回
	Query(ctx context.Context, f Filter) ([]Record, error)
	// Close 释放存储资源
	Close(ctx context.Context) error
}
