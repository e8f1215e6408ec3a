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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgerr "aigc-platform/pkg/errors"
)

// LedgerPg Postgres 实现。
// 表结构：
//   users(id text pk, credits_balance bigint not null check (credits_balance >= 0))
//   credit_transactions(id text pk, user_id text, type text, application_id text,
//     credits_changed bigint, balance_before bigint, balance_after bigint,
//     description text, reference_id text, promotion_activity text,
//     created_at timestamptz)
// 扣减用带 guard 的 UPDATE ... RETURNING；同一事务内写流水，扣减与流水不分离。
type LedgerPg struct {
	pool *pgxpool.Pool
}

// NewLedgerPg 创建基于 PostgreSQL 的账本
func NewLedgerPg(ctx context.Context, dsn string) (*LedgerPg, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &LedgerPg{pool: pool}, nil
}

// Close 关闭连接池
func (l *LedgerPg) Close() {
	l.pool.Close()
}

func (l *LedgerPg) Balance(ctx context.Context, userID string) (int64, error) {
	var bal int64
	err := l.pool.QueryRow(ctx,
		`SELECT credits_balance FROM users WHERE id = $1`, userID).Scan(&bal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return bal, nil
}

func (l *LedgerPg) insertTxn(ctx context.Context, tx pgx.Tx, txn *Transaction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO credit_transactions
		 (id, user_id, type, application_id, credits_changed, balance_before, balance_after,
		  description, reference_id, promotion_activity, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		txn.ID, txn.UserID, string(txn.Type), nullStr(txn.ApplicationID),
		txn.CreditsChanged, txn.BalanceBefore, txn.BalanceAfter,
		nullStr(txn.Description), nullStr(txn.ReferenceID), nullStr(txn.PromotionActivity),
		txn.CreatedAt)
	return err
}

func (l *LedgerPg) Debit(ctx context.Context, userID string, amount int64, e Entry) (*Transaction, error) {
	if amount < 0 {
		return nil, pkgerr.Wrap(pkgerr.ErrInvalidArg, "debit amount must be >= 0")
	}
	if e.Type == "" {
		e.Type = TxnConsumption
	}
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// guard 式原子扣减；RETURNING 给出扣减后的余额，before 由 after+amount 推出，
	// 不回读，避免并发扣减间的漂移
	var after int64
	err = tx.QueryRow(ctx,
		`UPDATE users SET credits_balance = credits_balance - $2
		 WHERE id = $1 AND credits_balance >= $2
		 RETURNING credits_balance`,
		userID, amount).Scan(&after)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// guard 未命中：仅为报错文案回读实际余额，不参与判定
			available, balErr := l.Balance(ctx, userID)
			if balErr != nil {
				return nil, balErr
			}
			return nil, &pkgerr.InsufficientCreditsError{UserID: userID, Required: amount, Available: available}
		}
		return nil, err
	}

	txn := &Transaction{
		ID:                newTxnID(),
		UserID:            userID,
		Type:              e.Type,
		ApplicationID:     e.ApplicationID,
		CreditsChanged:    -amount,
		BalanceBefore:     after + amount,
		BalanceAfter:      after,
		Description:       e.Description,
		ReferenceID:       e.ReferenceID,
		PromotionActivity: e.PromotionActivity,
		CreatedAt:         time.Now(),
	}
	if err := l.insertTxn(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return txn, nil
}

func (l *LedgerPg) Credit(ctx context.Context, userID string, amount int64, e Entry) (*Transaction, error) {
	if amount < 0 {
		return nil, pkgerr.Wrap(pkgerr.ErrInvalidArg, "credit amount must be >= 0")
	}
	if e.Type == "" {
		return nil, pkgerr.Wrap(pkgerr.ErrInvalidArg, "credit entry type required")
	}
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if e.Type == TxnRefund && e.ReferenceID != "" {
		var exists bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM credit_transactions
			 WHERE type = $1 AND reference_id = $2)`,
			string(TxnRefund), e.ReferenceID).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrAlreadyRefunded
		}
	}

	var after int64
	err = tx.QueryRow(ctx,
		`UPDATE users SET credits_balance = credits_balance + $2
		 WHERE id = $1 RETURNING credits_balance`,
		userID, amount).Scan(&after)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	txn := &Transaction{
		ID:                newTxnID(),
		UserID:            userID,
		Type:              e.Type,
		ApplicationID:     e.ApplicationID,
		CreditsChanged:    amount,
		BalanceBefore:     after - amount,
		BalanceAfter:      after,
		Description:       e.Description,
		ReferenceID:       e.ReferenceID,
		PromotionActivity: e.PromotionActivity,
		CreatedAt:         time.Now(),
	}
	if err := l.insertTxn(ctx, tx, txn); err != nil {
		// 退款的唯一索引兜住并发穿过 EXISTS 检查的情况
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyRefunded
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return txn, nil
}

const txnColumns = `id, user_id, type, application_id, credits_changed, balance_before, balance_after,
	description, reference_id, promotion_activity, created_at`

func scanTxn(row pgx.Row) (*Transaction, error) {
	var txn Transaction
	var typ string
	var appID, description, referenceID, promotion *string
	err := row.Scan(&txn.ID, &txn.UserID, &typ, &appID,
		&txn.CreditsChanged, &txn.BalanceBefore, &txn.BalanceAfter,
		&description, &referenceID, &promotion, &txn.CreatedAt)
	if err != nil {
		return nil, err
	}
	txn.Type = TxnType(typ)
	if appID != nil {
		txn.ApplicationID = *appID
	}
	if description != nil {
		txn.Description = *description
	}
	if referenceID != nil {
		txn.ReferenceID = *referenceID
	}
	if promotion != nil {
		txn.PromotionActivity = *promotion
	}
	return &txn, nil
}

func (l *LedgerPg) ListTransactions(ctx context.Context, userID string, page, limit int) ([]*Transaction, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.pool.Query(ctx,
		`SELECT `+txnColumns+` FROM credit_transactions
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Transaction
	for rows.Next() {
		txn, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func (l *LedgerPg) ListUnrefundedConsumptions(ctx context.Context, before time.Time) ([]*Transaction, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+txnColumns+` FROM credit_transactions c
		 WHERE c.type = 'consumption' AND c.credits_changed < 0 AND c.created_at < $1
		   AND NOT EXISTS (
		     SELECT 1 FROM credit_transactions r
		     WHERE r.type = 'refund' AND r.reference_id = c.id)`,
		before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Transaction
	for rows.Next() {
		txn, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
