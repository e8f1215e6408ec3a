// Package errors 提供统一错误辅助与业务错误分类，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误（可按需扩展错误码）
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")
	// ErrNotYetComplete 任务未到终态时请求结果
	ErrNotYetComplete = errors.New("task not yet complete")
	// ErrTaskTerminal 任务已处于终态，不允许再变更
	ErrTaskTerminal = errors.New("task already terminal")
	// ErrForbidden 请求者不是记录属主
	ErrForbidden = errors.New("forbidden")
	// ErrTimeout 轮询或等待超出上限
	ErrTimeout = errors.New("timeout")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
