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

package http

import (
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"aigc-platform/internal/credit"
	"aigc-platform/internal/task"
	pkgerr "aigc-platform/pkg/errors"
)

// writeError 把领域错误映射为 HTTP 状态码。
// 配置类错误不把内部细节漏给调用方,远端拒绝原样透传远端说法。
func writeError(ctx *app.RequestContext, err error) {
	var (
		validation   *pkgerr.ValidationError
		insufficient *pkgerr.InsufficientCreditsError
		rejected     *pkgerr.PlatformRejectedError
		unreachable  *pkgerr.PlatformUnreachableError
		misconfig    *pkgerr.ConfigurationError
	)

	switch {
	case errors.As(err, &validation):
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": validation.Error(),
			"field": validation.Field,
		})
	case errors.As(err, &insufficient):
		ctx.JSON(consts.StatusBadRequest, map[string]interface{}{
			"error":     "insufficient credits",
			"required":  insufficient.Required,
			"available": insufficient.Available,
		})
	case errors.Is(err, task.ErrDuplicatePrompt):
		ctx.JSON(consts.StatusConflict, map[string]string{"error": "duplicate task"})
	case errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, pkgerr.ErrNotFound),
		errors.Is(err, credit.ErrUserNotFound):
		ctx.JSON(consts.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, pkgerr.ErrForbidden):
		ctx.JSON(consts.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, pkgerr.ErrNotYetComplete):
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "task not yet complete"})
	case errors.Is(err, pkgerr.ErrTaskTerminal):
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, pkgerr.ErrInvalidArg):
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &rejected):
		ctx.JSON(consts.StatusBadGateway, map[string]interface{}{
			"error":      "platform rejected request",
			"platform":   rejected.Platform,
			"statusCode": rejected.StatusCode,
			"message":    rejected.RemoteMessage,
		})
	case errors.As(err, &unreachable):
		ctx.JSON(consts.StatusBadGateway, map[string]string{
			"error":    "platform unreachable",
			"platform": unreachable.Platform,
		})
	case errors.As(err, &misconfig):
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "application misconfigured",
		})
	default:
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
