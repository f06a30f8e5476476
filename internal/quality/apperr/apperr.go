// Package apperr 定义质量模块的业务错误类型
package apperr

import (
	"errors"
	"fmt"
)

// 错误类别
const (
	KindValidation   = "validation"
	KindInvalidState = "invalid-state"
	KindForbidden    = "forbidden"
	KindConflict     = "conflict"
	KindNotFound     = "not-found"
	KindIntegration  = "integration"
)

// Error 业务错误，携带类别与可选的字段级错误信息
type Error struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s %v", e.Kind, e.Message, e.Fields)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New 创建业务错误
func New(kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Validation 参数校验错误，fields为字段→提示信息
func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// InvalidState 当前状态不允许该操作
func InvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// Forbidden 无权限
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// Conflict 唯一性冲突
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// NotFound 引用对象不存在
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Integration 外部系统或存储暂时性失败
func Integration(message string, err error) *Error {
	if err != nil {
		return &Error{Kind: KindIntegration, Message: fmt.Sprintf("%s: %v", message, err)}
	}
	return &Error{Kind: KindIntegration, Message: message}
}

// Kind 返回错误类别；非业务错误返回空串
func Kind(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is 判断错误是否属于指定类别
func Is(err error, kind string) bool {
	return Kind(err) == kind
}
