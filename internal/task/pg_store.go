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

package task

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aigc-platform/internal/application"
)

// StorePg Postgres 实现：task_executions 表。
// 表结构：
//   task_executions(prompt_id text pk, platform_task_id text, application_id text,
//     user_id text, platform_type text, api_config jsonb, status text,
//     queue_info jsonb, progress jsonb, workflow_info jsonb,
//     submitted_at timestamptz, started_at timestamptz, completed_at timestamptz,
//     input_data jsonb, output_data jsonb, error_info jsonb, raw_responses jsonb,
//     credits_consumed bigint, credit_txn_id text, retry_info jsonb)
// 索引：user_id + submitted_at desc；credit_txn_id
type StorePg struct {
	pool *pgxpool.Pool
}

// NewStorePg 创建基于 PostgreSQL 的任务存储
func NewStorePg(ctx context.Context, dsn string) (*StorePg, error) {
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
	return &StorePg{pool: pool}, nil
}

// Close 关闭连接池
func (s *StorePg) Close() {
	s.pool.Close()
}

func marshalJSON(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *StorePg) Create(ctx context.Context, t *TaskExecution) error {
	apiConfig, err := marshalJSON(t.APIConfig)
	if err != nil {
		return err
	}
	cols, err := telemetryJSON(t)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO task_executions
		 (prompt_id, platform_task_id, application_id, application_name, user_id, platform_type, api_config, status,
		  queue_info, progress, workflow_info, submitted_at, started_at, completed_at,
		  input_data, output_data, error_info, raw_responses, credits_consumed, credit_txn_id, retry_info)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		t.PromptID, nullStr(t.PlatformTaskID), t.ApplicationID, t.ApplicationName, t.UserID, string(t.PlatformType),
		apiConfig, string(t.Status),
		cols.queueInfo, cols.progress, cols.workflowInfo,
		t.Timing.SubmittedAt, t.Timing.StartedAt, t.Timing.CompletedAt,
		cols.inputData, cols.outputData, cols.errorInfo, cols.rawResponses,
		t.CreditsConsumed, nullStr(t.CreditTxnID), cols.retryInfo)
	return err
}

// telemetryCols 可空 JSONB 列的序列化结果
type telemetryCols struct {
	queueInfo, progress, workflowInfo          interface{}
	inputData, outputData, errorInfo           interface{}
	rawResponses, retryInfo                    interface{}
}

func telemetryJSON(t *TaskExecution) (*telemetryCols, error) {
	var c telemetryCols
	var err error
	set := func(dst *interface{}, v interface{}, empty bool) {
		if err != nil || empty {
			return
		}
		*dst, err = marshalJSON(v)
	}
	set(&c.queueInfo, t.QueueInfo, t.QueueInfo == nil)
	set(&c.progress, t.Progress, t.Progress == nil)
	set(&c.workflowInfo, t.WorkflowInfo, t.WorkflowInfo == nil)
	set(&c.inputData, t.InputData, t.InputData == nil)
	set(&c.outputData, t.OutputData, t.OutputData == nil)
	set(&c.errorInfo, t.ErrorInfo, t.ErrorInfo == nil)
	set(&c.rawResponses, t.RawResponses, t.RawResponses == nil)
	set(&c.retryInfo, t.RetryInfo, false)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const taskColumns = `prompt_id, platform_task_id, application_id, application_name, user_id, platform_type, api_config, status,
	queue_info, progress, workflow_info, submitted_at, started_at, completed_at,
	input_data, output_data, error_info, raw_responses, credits_consumed, credit_txn_id, retry_info`

func scanTask(row pgx.Row) (*TaskExecution, error) {
	var t TaskExecution
	var platformTaskID, creditTxnID *string
	var platformType, status string
	var apiConfig, queueInfo, progress, workflowInfo []byte
	var inputData, outputData, errorInfo, rawResponses, retryInfo []byte
	var submittedAt time.Time
	var startedAt, completedAt *time.Time
	err := row.Scan(&t.PromptID, &platformTaskID, &t.ApplicationID, &t.ApplicationName, &t.UserID, &platformType,
		&apiConfig, &status, &queueInfo, &progress, &workflowInfo,
		&submittedAt, &startedAt, &completedAt,
		&inputData, &outputData, &errorInfo, &rawResponses,
		&t.CreditsConsumed, &creditTxnID, &retryInfo)
	if err != nil {
		return nil, err
	}
	if platformTaskID != nil {
		t.PlatformTaskID = *platformTaskID
	}
	if creditTxnID != nil {
		t.CreditTxnID = *creditTxnID
	}
	t.PlatformType = application.PlatformType(platformType)
	t.Status = Status(status)
	t.Timing = Timing{SubmittedAt: submittedAt, StartedAt: startedAt, CompletedAt: completedAt}
	for _, pair := range []struct {
		data []byte
		dst  interface{}
	}{
		{apiConfig, &t.APIConfig},
		{queueInfo, &t.QueueInfo},
		{progress, &t.Progress},
		{workflowInfo, &t.WorkflowInfo},
		{inputData, &t.InputData},
		{outputData, &t.OutputData},
		{errorInfo, &t.ErrorInfo},
		{rawResponses, &t.RawResponses},
		{retryInfo, &t.RetryInfo},
	} {
		if len(pair.data) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.data, pair.dst); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (s *StorePg) Get(ctx context.Context, promptID string) (*TaskExecution, error) {
	t, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM task_executions WHERE prompt_id = $1`, promptID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (s *StorePg) GetByCreditTxn(ctx context.Context, txnID string) (*TaskExecution, error) {
	if txnID == "" {
		return nil, nil
	}
	t, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM task_executions WHERE credit_txn_id = $1`, txnID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (s *StorePg) Update(ctx context.Context, t *TaskExecution) error {
	apiConfig, err := marshalJSON(t.APIConfig)
	if err != nil {
		return err
	}
	cols, err := telemetryJSON(t)
	if err != nil {
		return err
	}
	cmd, err := s.pool.Exec(ctx,
		`UPDATE task_executions SET platform_task_id = $2, api_config = $3, status = $4,
		   queue_info = $5, progress = $6, workflow_info = $7,
		   started_at = $8, completed_at = $9,
		   output_data = $10, error_info = $11, raw_responses = $12,
		   credits_consumed = $13, credit_txn_id = $14, retry_info = $15
		 WHERE prompt_id = $1`,
		t.PromptID, nullStr(t.PlatformTaskID), apiConfig, string(t.Status),
		cols.queueInfo, cols.progress, cols.workflowInfo,
		t.Timing.StartedAt, t.Timing.CompletedAt,
		cols.outputData, cols.errorInfo, cols.rawResponses,
		t.CreditsConsumed, nullStr(t.CreditTxnID), cols.retryInfo)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *StorePg) ListByUser(ctx context.Context, userID string, f Filter) ([]*TaskExecution, int, error) {
	where := `WHERE user_id = $1`
	args := []interface{}{userID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where += ` AND status = $2`
	}
	if f.PlatformType != "" {
		args = append(args, string(f.PlatformType))
		switch len(args) {
		case 2:
			where += ` AND platform_type = $2`
		case 3:
			where += ` AND platform_type = $3`
		}
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM task_executions `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, limit := normalizePage(f.Page, f.Limit)
	query := `SELECT ` + taskColumns + ` FROM task_executions ` + where +
		` ORDER BY submitted_at DESC LIMIT ` + strconv.Itoa(limit) + ` OFFSET ` + strconv.Itoa((page-1)*limit)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []*TaskExecution
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, t)
	}
	return list, total, rows.Err()
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

