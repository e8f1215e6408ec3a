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
	"testing"
	"time"

	"aigc-platform/internal/task"
	"aigc-platform/pkg/log"
)

// taskLookupStub 以 creditTxnID 为键的只读任务表
type taskLookupStub map[string]*task.TaskExecution

func (s taskLookupStub) GetByCreditTxn(ctx context.Context, txnID string) (*task.TaskExecution, error) {
	return s[txnID], nil
}

func newTestReconciler(t *testing.T, l Ledger, tasks TaskLookup) *Reconciler {
	t.Helper()
	logger, err := log.NewLogger(nil)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	r := NewReconciler(l, tasks, logger, time.Minute, time.Minute)
	// 测试里流水都是刚写入的,把窗口倒过来让它们立即参与对账
	r.MinAge = -time.Minute
	return r
}

func TestReconciler_RefundsOrphanConsumption(t *testing.T) {
	ctx := context.Background()
	l := NewLedgerMem()
	l.SetBalance("u1", 100)
	orphan, _ := l.Debit(ctx, "u1", 30, Entry{Type: TxnConsumption, ApplicationID: "app1"})

	r := newTestReconciler(t, l, taskLookupStub{})
	n, err := r.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("refunded = %d, want 1", n)
	}
	balance, _ := l.Balance(ctx, "u1")
	if balance != 100 {
		t.Errorf("balance = %d, want 100", balance)
	}

	// 二轮扫描不重复补偿
	n, _ = r.SweepOnce(ctx)
	if n != 0 {
		t.Errorf("second sweep refunded = %d, want 0", n)
	}
	_ = orphan
}

func TestReconciler_RefundsFailedTask(t *testing.T) {
	ctx := context.Background()
	l := NewLedgerMem()
	l.SetBalance("u1", 100)

	failedTxn, _ := l.Debit(ctx, "u1", 30, Entry{Type: TxnConsumption})
	runningTxn, _ := l.Debit(ctx, "u1", 30, Entry{Type: TxnConsumption})

	tasks := taskLookupStub{
		failedTxn.ID:  {PromptID: "p-failed", UserID: "u1", Status: task.StatusFailed, CreditTxnID: failedTxn.ID},
		runningTxn.ID: {PromptID: "p-running", UserID: "u1", Status: task.StatusRunning, CreditTxnID: runningTxn.ID},
	}

	r := newTestReconciler(t, l, tasks)
	n, err := r.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	// 只补 failed 的那笔,在途的不动
	if n != 1 {
		t.Fatalf("refunded = %d, want 1", n)
	}
	balance, _ := l.Balance(ctx, "u1")
	if balance != 70 {
		t.Errorf("balance = %d, want 70", balance)
	}
}

func TestReconciler_MinAgeWindow(t *testing.T) {
	ctx := context.Background()
	l := NewLedgerMem()
	l.SetBalance("u1", 100)
	_, _ = l.Debit(ctx, "u1", 30, Entry{Type: TxnConsumption})

	logger, _ := log.NewLogger(nil)
	r := NewReconciler(l, taskLookupStub{}, logger, time.Hour, time.Minute)
	n, err := r.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	// 流水太新,不在对账窗口内
	if n != 0 {
		t.Errorf("refunded = %d, want 0", n)
	}
}
