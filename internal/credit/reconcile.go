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
	"time"

	"aigc-platform/internal/task"
	pkgerr "aigc-platform/pkg/errors"
	"aigc-platform/pkg/log"
)

// TaskLookup 对账所需的最小任务查询面
type TaskLookup interface {
	GetByCreditTxn(ctx context.Context, txnID string) (*task.TaskExecution, error)
}

// Reconciler 扣费与退款之间没有跨步原子性：进程在扣费后、退款前崩溃会留下
// 少记的用户。Reconciler 周期扫描无退款的 consumption 流水补上缺失的补偿，
// 并把补不上的以 LedgerInconsistency 级别暴露出来。
type Reconciler struct {
	ledger Ledger
	tasks  TaskLookup
	logger *log.Logger

	// MinAge 流水至少存在此时长才参与对账，避免与进行中的提交竞争
	MinAge time.Duration
	// Interval Run 的扫描周期
	Interval time.Duration
}

// NewReconciler 创建对账器；minAge/interval 非正时取默认 5m/1m
func NewReconciler(ledger Ledger, tasks TaskLookup, logger *log.Logger, minAge, interval time.Duration) *Reconciler {
	if minAge <= 0 {
		minAge = 5 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{ledger: ledger, tasks: tasks, logger: logger, MinAge: minAge, Interval: interval}
}

// SweepOnce 扫描一轮，返回补发的退款数。
// 需要补偿的两种情形：
//  1. consumption 无对应任务记录 —— 扣费后、任务落库前崩溃；
//  2. 任务已 failed 但没有退款 —— 观察到失败后、退款前崩溃。
func (r *Reconciler) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.MinAge)
	pending, err := r.ledger.ListUnrefundedConsumptions(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	var refunded int
	for _, c := range pending {
		t, err := r.tasks.GetByCreditTxn(ctx, c.ID)
		if err != nil {
			r.logger.Error("reconcile: task lookup failed", "txn_id", c.ID, "error", err)
			continue
		}
		var reason string
		switch {
		case t == nil:
			reason = "reconcile: consumption without task record"
		case t.Status == task.StatusFailed:
			reason = "reconcile: failed task without refund"
		default:
			// 任务仍在途或已正常结束，不补偿
			continue
		}
		if _, err := Refund(ctx, r.ledger, c, reason); err != nil {
			if errors.Is(err, ErrAlreadyRefunded) {
				// 扫描窗口与在线退款赛跑,对方赢了就跳过
				continue
			}
			inc := &pkgerr.LedgerInconsistencyError{
				UserID:        c.UserID,
				Amount:        -c.CreditsChanged,
				ConsumptionID: c.ID,
				Err:           err,
			}
			r.logger.Error("reconcile: refund failed, manual reconciliation required",
				"user_id", c.UserID, "txn_id", c.ID, "amount", -c.CreditsChanged, "error", inc)
			continue
		}
		r.logger.Info("reconcile: compensating refund issued",
			"user_id", c.UserID, "txn_id", c.ID, "amount", -c.CreditsChanged, "reason", reason)
		refunded++
	}
	return refunded, nil
}

// Run 按 Interval 循环扫描直到 ctx 取消
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.SweepOnce(ctx); err != nil {
				r.logger.Error("reconcile sweep failed", "error", err)
			}
		}
	}
}
