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
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"aigc-platform/internal/api/http/middleware"
	"aigc-platform/internal/credit"
)

// CreditBalance 查询当前用户余额
// GET /api/credits/balance
func (h *Handler) CreditBalance(c context.Context, ctx *app.RequestContext) {
	userID := middleware.UserID(ctx)
	balance, err := h.gw.Balance(c, userID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"userId":  userID,
		"balance": balance,
	})
}

// CreditTransactions 分页读取当前用户的积分流水
// GET /api/credits/transactions?page=1&limit=20
func (h *Handler) CreditTransactions(c context.Context, ctx *app.RequestContext) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	txns, err := h.gw.Transactions(c, middleware.UserID(ctx), page, limit)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"transactions": txns,
		"page":         page,
		"limit":        limit,
	})
}

// grantRequest 运营入账请求体
type grantRequest struct {
	UserID            string `json:"userId"`
	Amount            int64  `json:"amount"`
	Type              string `json:"type"` // topup | grant | adjustment
	Description       string `json:"description"`
	PromotionActivity string `json:"promotionActivity"`
}

// CreditGrant 运营入账（充值/赠送/调整）
// POST /api/credits/grant
func (h *Handler) CreditGrant(c context.Context, ctx *app.RequestContext) {
	var req grantRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.UserID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "userId is required"})
		return
	}

	txn, err := h.gw.Grant(c, req.UserID, req.Amount, credit.TxnType(req.Type), req.Description, req.PromotionActivity)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, txn)
}
