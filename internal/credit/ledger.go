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

// Package credit 持有用户余额与不可变交易流水。
// 余额只经本包的原子扣减/入账变更；流水只追加，同一用户按时间排列构成
// balanceBefore/balanceAfter 链。
package credit

import (
	"context"
	"time"
)

// TxnType 流水业务类型
type TxnType string

const (
	TxnConsumption TxnType = "consumption"
	TxnTopup       TxnType = "topup"
	TxnRefund      TxnType = "refund"
	TxnGrant       TxnType = "grant"
	TxnAdjustment  TxnType = "adjustment"
)

// Transaction 一条余额变动流水；创建后不改不删
type Transaction struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Type          TxnType   `json:"type"`
	ApplicationID string    `json:"applicationId,omitempty"`
	// CreditsChanged 带符号的变动额；BalanceAfter = BalanceBefore + CreditsChanged
	CreditsChanged int64  `json:"creditsChanged"`
	BalanceBefore  int64  `json:"balanceBefore"`
	BalanceAfter   int64  `json:"balanceAfter"`
	Description    string `json:"description,omitempty"`
	// ReferenceID 自由关联：consumption 关联任务，refund 关联原 consumption 的 id
	ReferenceID       string    `json:"referenceId,omitempty"`
	PromotionActivity string    `json:"promotionActivity,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Entry 写流水时的业务上下文
type Entry struct {
	Type              TxnType
	ApplicationID     string
	Description       string
	ReferenceID       string
	PromotionActivity string
}

// Ledger 余额账本。Debit 为 guard 式原子扣减：balance >= amount 才生效，
// 否则返回 InsufficientCreditsError 且不产生任何流水。
type Ledger interface {
	// Balance 查询当前余额；用户不存在返回 ErrUserNotFound
	Balance(ctx context.Context, userID string) (int64, error)
	// Debit 原子扣减 amount 并追加 consumption 流水。amount == 0 也追加零额流水，
	// 保证每次执行都有审计记录。BalanceBefore/After 取自扣减本身的前后值，不另行回读。
	Debit(ctx context.Context, userID string, amount int64, e Entry) (*Transaction, error)
	// Credit 入账 amount（退款/充值/赠送/调整）并追加对应流水
	Credit(ctx context.Context, userID string, amount int64, e Entry) (*Transaction, error)
	// ListTransactions 按创建时间倒序分页读取某用户的流水
	ListTransactions(ctx context.Context, userID string, page, limit int) ([]*Transaction, error)
	// ListUnrefundedConsumptions 返回 createdAt 早于 before、金额大于零、
	// 且没有任何 refund 流水引用其 id 的 consumption 流水（对账扫描用）
	ListUnrefundedConsumptions(ctx context.Context, before time.Time) ([]*Transaction, error)
}

// Refund 对一笔 consumption 做补偿入账；流水经 ReferenceID 指回原 consumption
func Refund(ctx context.Context, l Ledger, consumption *Transaction, description string) (*Transaction, error) {
	return l.Credit(ctx, consumption.UserID, -consumption.CreditsChanged, Entry{
		Type:          TxnRefund,
		ApplicationID: consumption.ApplicationID,
		Description:   description,
		ReferenceID:   consumption.ID,
	})
}
