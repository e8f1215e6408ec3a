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

package middleware

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// userIDKey RequestContext 里存放调用方身份的键
const userIDKey = "userID"

// Middleware 中间件管理器
type Middleware struct{}

// NewMiddleware 创建新的中间件管理器
func NewMiddleware() *Middleware {
	return &Middleware{}
}

// CORS CORS 中间件
func (m *Middleware) CORS() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-User-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if string(c.Method()) == "OPTIONS" {
			c.AbortWithStatus(consts.StatusNoContent)
			return
		}
		c.Next(ctx)
	}
}

// Identity 从 X-User-ID 头提取调用方身份。
// 身份鉴别在上游网关完成,这里只透传;缺头的请求一律拒绝。
func (m *Middleware) Identity() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		userID := strings.TrimSpace(string(c.GetHeader("X-User-ID")))
		if userID == "" {
			c.JSON(consts.StatusUnauthorized, map[string]string{
				"error": "X-User-ID header is required",
			})
			c.Abort()
			return
		}
		c.Set(userIDKey, userID)
		c.Next(ctx)
	}
}

// UserID 取 Identity 中间件放入的调用方身份；没经过中间件返回空串
func UserID(c *app.RequestContext) string {
	v, ok := c.Get(userIDKey)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
