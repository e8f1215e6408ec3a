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

package platform

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	pkgerr "aigc-platform/pkg/errors"
	"aigc-platform/pkg/metrics"
)

// Unreachable 包装网络层失败并计数
func Unreachable(platform, op string, err error) error {
	metrics.PlatformCallErrors.WithLabelValues(platform, op, "unreachable").Inc()
	return &pkgerr.PlatformUnreachableError{Platform: platform, Op: op, Err: err}
}

// Rejected 包装远端非成功响应并计数，尽量从响应体里抠出远端错误文本
func Rejected(platform, op string, statusCode int, body []byte) error {
	metrics.PlatformCallErrors.WithLabelValues(platform, op, "rejected").Inc()
	return &pkgerr.PlatformRejectedError{
		Platform:      platform,
		Op:            op,
		StatusCode:    statusCode,
		RemoteMessage: remoteMessage(body),
	}
}

// remoteMessage 从常见的错误响应形态里提取人可读消息。
// 提取不到就原样返回截断后的响应体，绝不丢弃远端说了什么。
func remoteMessage(body []byte) string {
	var wrapped struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		switch {
		case wrapped.Error.Message != "":
			return wrapped.Error.Message
		case wrapped.Message != "":
			return wrapped.Message
		case wrapped.Detail != "":
			return wrapped.Detail
		}
	}
	// error 字段是裸字符串的情况
	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Error != "" {
		return flat.Error
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		cut := 512
		// 回退到 rune 边界,避免截出半个多字节字符
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}
