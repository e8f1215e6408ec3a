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
	"sync"
	"testing"
	"time"

	pkgerr "aigc-platform/pkg/errors"
)

func TestLedgerMem_DebitChain(t *testing.T) {
	ctx := context.Background()
	l := NewLedgerMem()
	l.SetBalance("u1", 100)

	// 100 余额,单价 30:三次成功,第四次拒绝
	for i := 0; i < 3; i++ {
		txn, err := l.Debit(ctx, "u1", 30, Entry{Type: TxnConsumption, ApplicationID: "app1"})
		if err != nil {
			t.Fatalf("Debit %d: %v", i, err)
		}
		if txn.BalanceAfter != txn.BalanceBefore-30 {
			t.Errorf("txn %d: before %d after %d", i, txn.BalanceBefore, txn.BalanceAfter)
		}
	}
	balance, _ := l.Balance(ctx, "u1")
	if balance != 10 {
		t.Fatalf("balance after 3 debits = %d, want 10", balance)
	}

	_, err := l.Debit(ctx, "u1", 30, Entry{Type: TxnConsumption})
	var insufficient *pkgerr.InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("4th debit = %v, want InsufficientCreditsError", err)
	}
	if insufficient.Required != 30 || insufficient.Available != 10 {
		t.Errorf("error detail: required %d available %d", insufficient.Required, insufficient.Available)
	}
	// 拒绝的扣减不产生流水,余额不动
	balance, _ = l.Balance(ctx, "u1")
	if balance != 10 {
		t.Errorf("balance after rejected debit = %d, want 10", balance)
	}
	txns, _ := l.ListTransactions(ctx, "u1", 1, 50)
	if len(txns) != 3 {
		t.Errorf("txn count = %d, want 3", len(txns))
	}
}

func TestLedgerMem_ZeroCostStillRecords(t *testing.T) {
	ctx := context.Background()
	l := NewLedgerMem()
	l.SetBalance("u1", 10)

	txn, err := l.Debit(ctx, "u1", 0, Entry{Type: TxnConsumption, ApplicationID: "free-app"})
	if err != nil {
		t.Fatalf("zero debit: %v", err)
	}
	if txn.CreditsChanged != 0 || txn.BalanceBefore != 10 || txn.BalanceAfter != 10 {
		t.Errorf("zero txn: %+v", txn)
	}
	txns, _ := l.ListTransactions(ctx, "u1", 1, 10)
	if len(txns) != 1 {
		t.Errorf("txn count = %d, want 1", len(txns))
	}
}

func TestLedgerMem_RefundReferencesConsumption(t *testing.T) {
	ctx := context.Background()
	l := NewLedgerMem()
	l.SetBalance("u1", 50)

	consumption, err := l.Debit(ctx, "u1", 30, Entry{Type: TxnConsumption, ApplicationID: "app1"})
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	refund, err := Refund(ctx, l, consumption, "task failed")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refund.Type != TxnRefund || refund.CreditsChanged != 30 || refund.ReferenceID != consumption.ID {
		t.Errorf("refund txn: %+v", refund)
	}
	balance, _ := l.Balance(ctx, "u1")
	if balance != 50 {
		t.Errorf("balance after refund = %d, want 50", balance)
	}
}

func TestLedgerMem_RefundIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := NewLedgerMem()
	l.SetBalance("u1", 50)

	consumption, err := l.Debit(ctx, "u1", 30, Entry{Type: TxnConsumption, ApplicationID: "app1"})
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if _, err := Refund(ctx, l, consumption, "task failed"); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if _, err := Refund(ctx, l, consumption, "task failed"); !errors.Is(err, ErrAlreadyRefunded) {
		t.Fatalf("second Refund = %v, want ErrAlreadyRefunded", err)
	}
	balance, _ := l.Balance(ctx, "u1")
	if balance != 50 {
		t.Errorf("balance after duplicate refund attempt = %d, want 50", balance)
	}
	txns, _ := l.ListTransactions(ctx, "u1", 1, 10)
	var refunds int
	for _, txn := range txns {
		if txn.Type == TxnRefund {
			refunds++
		}
	}
	if refunds != 1 {
		t.Errorf("refund count = %d, want 1", refunds)
	}
}

func TestLedgerMem_BalanceInvariant(t *testing.T) {
	ctx := context.Background()
	l := NewLedgerMem()
	l.SetBalance("u1", 1000)

	// 并发扣减后流水链自洽:sum(变动) == 终余额 - 初余额
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Debit(ctx, "u1", 7, Entry{Type: TxnConsumption})
		}()
	}
	wg.Wait()

	balance, _ := l.Balance(ctx, "u1")
	txns, _ := l.ListTransactions(ctx, "u1", 1, 100)
	var sum int64
	for _, txn := range txns {
		if txn.BalanceAfter != txn.BalanceBefore+txn.CreditsChanged {
			t.Errorf("txn %s violates invariant: %+v", txn.ID, txn)
		}
		sum += txn.CreditsChanged
	}
	if 1000+sum != balance {
		t.Errorf("ledger does not reconcile: 1000 + %d != %d", sum, balance)
	}
}

func TestLedgerMem_UnknownUser(t *testing.T) {
	ctx := context.Background()
	l := NewLedgerMem()
	if _, err := l.Balance(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Balance ghost = %v, want ErrUserNotFound", err)
	}
	if _, err := l.Debit(ctx, "ghost", 5, Entry{Type: TxnConsumption}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Debit ghost = %v, want ErrUserNotFound", err)
	}
}

func TestLedgerMem_ListUnrefundedConsumptions(t *testing.T) {
	ctx := context.Background()
	l := NewLedgerMem()
	l.SetBalance("u1", 100)

	refunded, _ := l.Debit(ctx, "u1", 10, Entry{Type: TxnConsumption})
	orphan, _ := l.Debit(ctx, "u1", 20, Entry{Type: TxnConsumption})
	_, _ = Refund(ctx, l, refunded, "task failed")
	_, _ = l.Credit(ctx, "u1", 50, Entry{Type: TxnTopup})

	list, err := l.ListUnrefundedConsumptions(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ListUnrefundedConsumptions: %v", err)
	}
	if len(list) != 1 || list[0].ID != orphan.ID {
		t.Fatalf("unrefunded = %+v, want only %s", list, orphan.ID)
	}

	// cutoff 之前没有流水
	list, _ = l.ListUnrefundedConsumptions(ctx, time.Now().Add(-time.Hour))
	if len(list) != 0 {
		t.Errorf("unrefunded before cutoff = %d, want 0", len(list))
	}
}
