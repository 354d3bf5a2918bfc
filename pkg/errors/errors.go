// Package errors 提供网关统一错误模型，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// Kind 错误大类：caller / adapter / planning / infrastructure
type Kind string

const (
	// KindCaller 调用方错误：未知工具、参数不合法、无权限；永不重试
	KindCaller Kind = "caller"
	// KindAdapter 后端适配器错误：不可达、原生失败、结果不符合约
	KindAdapter Kind = "adapter"
	// KindPlanning 规划错误：模型输出不可解析或引用不存在的工具
	KindPlanning Kind = "planning"
	// KindInfrastructure 基础设施错误：审计写入失败等，对单次请求致命
	KindInfrastructure Kind = "infrastructure"
)

// 常用哨兵错误（机器可读 code 见 Error.Code）
var (
	ErrUnknownTool           = errors.New("unknown tool")
	ErrDuplicateTool         = errors.New("duplicate tool")
	ErrToolOwnershipConflict = errors.New("tool ownership conflict")
	ErrValidationFailed      = errors.New("validation failed")
	ErrAdapterUnavailable    = errors.New("adapter unavailable")
	ErrAdapterInit           = errors.New("adapter init failed")
	ErrContractViolation     = errors.New("result contract violation")
	ErrPlanning              = errors.New("planning failed")
	ErrAuditWrite            = errors.New("audit write failed")
)

// Error 结构化错误：kind + code + 人类可读消息；对外不暴露后端堆栈
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

// New 创建结构化错误
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap 包装底层错误为结构化错误；cause 通过 Unwrap 暴露给 errors.Is/As
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

// Error 实现 error
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

// Unwrap 暴露 cause
func (e *Error) Unwrap() error { return e.cause }

// Detail 对外可见的错误描述（不含 cause 的内部细节）
func (e *Error) Detail() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// KindOf 提取错误大类；非结构化错误归为 infrastructure
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInfrastructure
}

// CodeOf 提取机器可读 code；无则返回空串
func CodeOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}
