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
	"os"
	"testing"
	"time"

	pkgerr "aigc-platform/pkg/errors"
)

func testCreditDSN(t *testing.T) string {
	dsn := os.Getenv("TEST_CREDITSTORE_DSN")
	if dsn == "" {
		t.Skip("TEST_CREDITSTORE_DSN not set, skipping Postgres ledger tests")
	}
	return dsn
}

func newTestLedgerPg(t *testing.T, ctx context.Context) (*LedgerPg, func()) {
	l, err := NewLedgerPg(ctx, testCreditDSN(t))
	if err != nil {
		t.Fatalf("NewLedgerPg: %v", err)
	}
	_, _ = l.pool.Exec(ctx, `DELETE FROM credit_transactions`)
	_, _ = l.pool.Exec(ctx, `DELETE FROM users`)
	_, _ = l.pool.Exec(ctx, `INSERT INTO users (id, credits_balance) VALUES ('pg-u1', 100)`)
	return l, func() { l.Close() }
}

func TestLedgerPg_DebitAndRefund(t *testing.T) {
	ctx := context.Background()
	l, cleanup := newTestLedgerPg(t, ctx)
	defer cleanup()

	txn, err := l.Debit(ctx, "pg-u1", 30, Entry{Type: TxnConsumption, ApplicationID: "app1"})
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if txn.BalanceBefore != 100 || txn.BalanceAfter != 70 || txn.CreditsChanged != -30 {
		t.Fatalf("debit txn: %+v", txn)
	}

	refund, err := Refund(ctx, l, txn, "task failed")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refund.ReferenceID != txn.ID || refund.BalanceAfter != 100 {
		t.Errorf("refund txn: %+v", refund)
	}
	if _, err := Refund(ctx, l, txn, "task failed"); !errors.Is(err, ErrAlreadyRefunded) {
		t.Fatalf("second Refund = %v, want ErrAlreadyRefunded", err)
	}
	balance, _ := l.Balance(ctx, "pg-u1")
	if balance != 100 {
		t.Errorf("balance after duplicate refund attempt = %d, want 100", balance)
	}

	unrefunded, err := l.ListUnrefundedConsumptions(ctx, txn.CreatedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListUnrefundedConsumptions: %v", err)
	}
	if len(unrefunded) != 0 {
		t.Errorf("unrefunded = %d, want 0", len(unrefunded))
	}
}

func TestLedgerPg_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l, cleanup := newTestLedgerPg(t, ctx)
	defer cleanup()

	_, err := l.Debit(ctx, "pg-u1", 101, Entry{Type: TxnConsumption})
	var insufficient *pkgerr.InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Debit over balance = %v, want InsufficientCreditsError", err)
	}
	balance, _ := l.Balance(ctx, "pg-u1")
	if balance != 100 {
		t.Errorf("balance after rejected debit = %d, want 100", balance)
	}
	txns, _ := l.ListTransactions(ctx, "pg-u1", 1, 10)
	if len(txns) != 0 {
		t.Errorf("rejected debit wrote %d txns, want 0", len(txns))
	}
}
