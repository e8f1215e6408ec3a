// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import "fmt"

// ValidationError 请求形状不合法，按原样返回给调用方
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// NewValidation 创建 ValidationError
func NewValidation(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

// InsufficientCreditsError 余额不足；Required/Available 随错误返回给调用方
type InsufficientCreditsError struct {
	UserID    string
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: user %s requires %d, has %d", e.UserID, e.Required, e.Available)
}

// ConfigurationError 部署配置缺陷（workflow/template/form schema 缺失或损坏）。
// 非瞬时故障，禁止重试；对外仅返回通用消息，细节只进日志。
type ConfigurationError struct {
	Component string
	Msg       string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Component, e.Msg)
}

// NewConfiguration 创建 ConfigurationError
func NewConfiguration(component, msg string) *ConfigurationError {
	return &ConfigurationError{Component: component, Msg: msg}
}

// PlatformUnreachableError 网络层失败（含超时）；调用方可重新提交，已扣费时触发退款
type PlatformUnreachableError struct {
	Platform string
	Op       string
	Err      error
}

func (e *PlatformUnreachableError) Error() string {
	return fmt.Sprintf("platform %s unreachable on %s: %v", e.Platform, e.Op, e.Err)
}

func (e *PlatformUnreachableError) Unwrap() error { return e.Err }

// PlatformRejectedError 远端业务拒绝；RemoteMessage 保留远端原始错误文本，不做改写
type PlatformRejectedError struct {
	Platform      string
	Op            string
	StatusCode    int
	RemoteMessage string
}

func (e *PlatformRejectedError) Error() string {
	if e.RemoteMessage != "" {
		return fmt.Sprintf("platform %s rejected %s (status %d): %s", e.Platform, e.Op, e.StatusCode, e.RemoteMessage)
	}
	return fmt.Sprintf("platform %s rejected %s (status %d)", e.Platform, e.Op, e.StatusCode)
}

// LedgerInconsistencyError 扣费后补偿失败，余额与事实不一致。
// 必须以最高级别记录并带齐人工对账所需上下文（用户、金额、原始交易），绝不吞掉。
type LedgerInconsistencyError struct {
	UserID        string
	Amount        int64
	ConsumptionID string
	Err           error
}

func (e *LedgerInconsistencyError) Error() string {
	return fmt.Sprintf("ledger inconsistency: user %s under-credited %d (consumption %s): %v",
		e.UserID, e.Amount, e.ConsumptionID, e.Err)
}

func (e *LedgerInconsistencyError) Unwrap() error { return e.Err }
