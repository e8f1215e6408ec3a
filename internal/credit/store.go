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

package credit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerr "aigc-platform/pkg/errors"
)

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("user not found")

// ErrAlreadyRefunded 同一笔消费只允许退款一次，重复退款返回此错误。
var ErrAlreadyRefunded = errors.New("consumption already refunded")

// LedgerMem 内存实现：互斥锁保证扣减原子性，供测试与单机部署
type LedgerMem struct {
	mu       sync.Mutex
	balances map[string]int64
	txns     []*Transaction
}

// NewLedgerMem 创建内存账本
func NewLedgerMem() *LedgerMem {
	return &LedgerMem{balances: make(map[string]int64)}
}

// SetBalance 初始化用户余额（测试与引导数据用；不产生流水）
func (l *LedgerMem) SetBalance(userID string, balance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = balance
}

func (l *LedgerMem) Balance(ctx context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return bal, nil
}

func newTxnID() string {
	return "txn-" + uuid.New().String()
}

func (l *LedgerMem) append(userID string, delta int64, before, after int64, e Entry) *Transaction {
	txn := &Transaction{
		ID:                newTxnID(),
		UserID:            userID,
		Type:              e.Type,
		ApplicationID:     e.ApplicationID,
		CreditsChanged:    delta,
		BalanceBefore:     before,
		BalanceAfter:      after,
		Description:       e.Description,
		ReferenceID:       e.ReferenceID,
		PromotionActivity: e.PromotionActivity,
		CreatedAt:         time.Now(),
	}
	l.txns = append(l.txns, txn)
	cp := *txn
	return &cp
}

func (l *LedgerMem) Debit(ctx context.Context, userID string, amount int64, e Entry) (*Transaction, error) {
	if amount < 0 {
		return nil, pkgerr.Wrap(pkgerr.ErrInvalidArg, "debit amount must be >= 0")
	}
	if e.Type == "" {
		e.Type = TxnConsumption
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	before, ok := l.balances[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	if before < amount {
		return nil, &pkgerr.InsufficientCreditsError{UserID: userID, Required: amount, Available: before}
	}
	after := before - amount
	l.balances[userID] = after
	return l.append(userID, -amount, before, after, e), nil
}

func (l *LedgerMem) Credit(ctx context.Context, userID string, amount int64, e Entry) (*Transaction, error) {
	if amount < 0 {
		return nil, pkgerr.Wrap(pkgerr.ErrInvalidArg, "credit amount must be >= 0")
	}
	if e.Type == "" {
		return nil, pkgerr.Wrap(pkgerr.ErrInvalidArg, "credit entry type required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.Type == TxnRefund && e.ReferenceID != "" {
		for _, txn := range l.txns {
			if txn.Type == TxnRefund && txn.ReferenceID == e.ReferenceID {
				return nil, ErrAlreadyRefunded
			}
		}
	}
	before, ok := l.balances[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	after := before + amount
	l.balances[userID] = after
	return l.append(userID, amount, before, after, e), nil
}

func (l *LedgerMem) ListTransactions(ctx context.Context, userID string, page, limit int) ([]*Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var matched []*Transaction
	for _, txn := range l.txns {
		if txn.UserID == userID {
			matched = append(matched, txn)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return nil, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]*Transaction, 0, end-start)
	for _, txn := range matched[start:end] {
		cp := *txn
		out = append(out, &cp)
	}
	return out, nil
}

func (l *LedgerMem) ListUnrefundedConsumptions(ctx context.Context, before time.Time) ([]*Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	refunded := make(map[string]bool)
	for _, txn := range l.txns {
		if txn.Type == TxnRefund && txn.ReferenceID != "" {
			refunded[txn.ReferenceID] = true
		}
	}
	var out []*Transaction
	for _, txn := range l.txns {
		if txn.Type != TxnConsumption || txn.CreditsChanged >= 0 {
			continue
		}
		if !txn.CreatedAt.Before(before) || refunded[txn.ID] {
			continue
		}
		cp := *txn
		out = append(out, &cp)
	}
	return out, nil
}
