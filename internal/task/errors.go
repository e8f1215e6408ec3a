package task

import "errors"

var (
	// ErrDuplicatePrompt promptID 已存在
	ErrDuplicatePrompt = errors.New("duplicate prompt id")
	// ErrTaskNotFound 记录不存在
	ErrTaskNotFound = errors.New("task not found")
)
