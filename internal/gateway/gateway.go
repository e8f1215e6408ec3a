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

// Package gateway 任务网关：在平台适配器、任务存储和积分账本之上
// 编排一次执行的完整生命周期，是 HTTP 层之下唯一的入口。
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aigc-platform/internal/application"
	"aigc-platform/internal/credit"
	"aigc-platform/internal/platform"
	"aigc-platform/internal/storage/cache"
	"aigc-platform/internal/task"
	pkgerr "aigc-platform/pkg/errors"
	"aigc-platform/pkg/log"
	"aigc-platform/pkg/metrics"
	"aigc-platform/pkg/tracing"
)

// Options 网关行为参数
type Options struct {
	// StatusCacheTTL 非终态状态快照的缓存时长；<=0 关闭缓存
	StatusCacheTTL time.Duration
	// PollInterval / PollMaxAttempts WatchTask 的轮询预算
	PollInterval    time.Duration
	PollMaxAttempts int
}

// Gateway 任务网关
type Gateway struct {
	apps      application.Store
	tasks     task.Store
	ledger    credit.Ledger
	platforms *platform.Registry
	cache     cache.Store // 可为 nil
	logger    *log.Logger
	opts      Options
}

// New 组装网关；cache 传 nil 则不缓存状态快照
func New(apps application.Store, tasks task.Store, ledger credit.Ledger, platforms *platform.Registry, c cache.Store, logger *log.Logger, opts Options) *Gateway {
	return &Gateway{
		apps:      apps,
		tasks:     tasks,
		ledger:    ledger,
		platforms: platforms,
		cache:     c,
		logger:    logger.With("component", "gateway"),
		opts:      opts,
	}
}

func statusCacheKey(promptID string) string {
	return "task:status:" + promptID
}

// Submit 提交一次执行：校验应用、原子扣费、平台提交、落任务记录。
// 平台提交失败立即补偿退款；退款也失败时记录账目不一致,由对账扫描兜底。
func (g *Gateway) Submit(ctx context.Context, userID, appID string, inputs map[string]interface{}) (*task.TaskExecution, error) {
	if userID == "" {
		return nil, pkgerr.NewValidation("userId", "required")
	}
	app, err := g.apps.Get(ctx, appID)
	if err != nil {
		return nil, pkgerr.Wrap(err, "load application")
	}
	if app == nil {
		return nil, pkgerr.Wrapf(pkgerr.ErrNotFound, "application %s", appID)
	}
	if !app.Active {
		return nil, pkgerr.NewValidation("applicationId", "application is not active")
	}
	// 平台适配器先解析:配置错误不该走到扣费
	svc, err := g.platforms.Resolve(app.PlatformType)
	if err != nil {
		return nil, err
	}

	// 先扣费后提交;提交失败走补偿退款
	debitCtx, debitSpan := tracing.StartLedgerSpan(ctx, "debit", userID)
	txn, err := g.ledger.Debit(debitCtx, userID, app.Cost, credit.Entry{
		Type:          credit.TxnConsumption,
		ApplicationID: app.ID,
		Description:   "execute " + app.Name,
	})
	debitSpan.End()
	if err != nil {
		return nil, err
	}
	metrics.CreditDebitTotal.WithLabelValues(app.ID).Add(float64(app.Cost))

	submitCtx, submitSpan := tracing.StartPlatformSpan(ctx, string(app.PlatformType), "submit")
	res, err := svc.Submit(submitCtx, platform.SubmitRequest{App: app, Inputs: inputs})
	submitSpan.End()
	if err != nil {
		g.refundTxn(ctx, txn, "platform submit failed")
		return nil, err
	}

	now := time.Now()
	t := &task.TaskExecution{
		PromptID:        res.PromptID,
		PlatformTaskID:  res.PlatformTaskID,
		ApplicationID:   app.ID,
		ApplicationName: app.Name,
		UserID:          userID,
		PlatformType:    app.PlatformType,
		APIConfig:       app.APIConfig,
		Status:          task.StatusPending,
		WorkflowInfo:    res.Workflow,
		Timing:          task.Timing{SubmittedAt: now},
		InputData:       inputs,
		CreditsConsumed: app.Cost,
		CreditTxnID:     txn.ID,
		RetryInfo:       task.RetryInfo{Max: g.opts.PollMaxAttempts},
	}
	t.AppendRaw("submit", res.Raw, now)

	// 请求/响应式平台提交即出结果,直接推到终态
	if res.State == task.StatusCompleted {
		_ = t.MarkRunning(now)
		_ = t.MarkCompleted(res.Output, now)
	}

	if err := g.tasks.Create(ctx, t); err != nil {
		// 远端可能已在执行,但没有记录就没法对账:退款并如实报错
		g.refundTxn(ctx, txn, "task record create failed")
		return nil, pkgerr.Wrap(err, "create task record")
	}

	metrics.TaskSubmitTotal.WithLabelValues(string(app.PlatformType)).Inc()
	if t.Terminal() {
		g.observeTerminal(t)
	}
	g.logger.Info("task submitted",
		"promptId", t.PromptID, "userId", userID, "applicationId", app.ID, "cost", app.Cost)
	return t, nil
}

// refundTxn 对一笔 consumption 做补偿退款；失败只升级告警不再重试,
// 留给对账扫描。
func (g *Gateway) refundTxn(ctx context.Context, txn *credit.Transaction, reason string) {
	if txn == nil || txn.CreditsChanged >= 0 {
		return
	}
	refundCtx, span := tracing.StartLedgerSpan(ctx, "refund", txn.UserID)
	defer span.End()
	if _, err := credit.Refund(refundCtx, g.ledger, txn, reason); err != nil {
		if errors.Is(err, credit.ErrAlreadyRefunded) {
			return
		}
		metrics.RefundFailTotal.Inc()
		g.logger.Error("refund failed, ledger inconsistent", "error", &pkgerr.LedgerInconsistencyError{
			UserID:        txn.UserID,
			Amount:        -txn.CreditsChanged,
			ConsumptionID: txn.ID,
			Err:           err,
		})
		return
	}
	metrics.CreditRefundTotal.WithLabelValues(txn.ApplicationID).Add(float64(-txn.CreditsChanged))
}

// refundTask 按任务记录退款(没有原始流水对象时走这条路)
func (g *Gateway) refundTask(ctx context.Context, t *task.TaskExecution, reason string) {
	if t.CreditsConsumed <= 0 || t.CreditTxnID == "" {
		return
	}
	refundCtx, span := tracing.StartLedgerSpan(ctx, "refund", t.UserID)
	defer span.End()
	_, err := g.ledger.Credit(refundCtx, t.UserID, t.CreditsConsumed, credit.Entry{
		Type:          credit.TxnRefund,
		ApplicationID: t.ApplicationID,
		Description:   reason,
		ReferenceID:   t.CreditTxnID,
	})
	if err != nil {
		if errors.Is(err, credit.ErrAlreadyRefunded) {
			return
		}
		metrics.RefundFailTotal.Inc()
		g.logger.Error("refund failed, ledger inconsistent", "error", &pkgerr.LedgerInconsistencyError{
			UserID:        t.UserID,
			Amount:        t.CreditsConsumed,
			ConsumptionID: t.CreditTxnID,
			Err:           err,
		})
		return
	}
	metrics.CreditRefundTotal.WithLabelValues(t.ApplicationID).Add(float64(t.CreditsConsumed))
}

// load 取记录并做属主校验
func (g *Gateway) load(ctx context.Context, userID, promptID string) (*task.TaskExecution, error) {
	t, err := g.tasks.Get(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, task.ErrTaskNotFound
	}
	if t.UserID != userID {
		return nil, pkgerr.ErrForbidden
	}
	return t, nil
}

// Status 查询任务状态。终态记录直接返回本地缓存,绝不再打远端；
// 非终态先看短 TTL 缓存,未命中才查平台并把归一结果合并回记录。
func (g *Gateway) Status(ctx context.Context, userID, promptID string) (*task.TaskExecution, error) {
	t, err := g.load(ctx, userID, promptID)
	if err != nil {
		return nil, err
	}
	if t.Terminal() {
		return t, nil
	}

	if g.cache != nil && g.opts.StatusCacheTTL > 0 {
		var cached task.TaskExecution
		if err := g.cache.Get(ctx, statusCacheKey(promptID), &cached); err == nil {
			return &cached, nil
		}
	}

	svc, err := g.platforms.Resolve(t.PlatformType)
	if err != nil {
		return nil, err
	}
	statusCtx, span := tracing.StartPlatformSpan(ctx, string(t.PlatformType), "status")
	snap, err := svc.GetStatus(statusCtx, promptID, t.APIConfig)
	span.End()
	if err != nil {
		return nil, err
	}
	if err := g.applySnapshot(ctx, t, svc, snap); err != nil {
		return nil, err
	}

	if err := g.tasks.Update(ctx, t); err != nil {
		return nil, pkgerr.Wrap(err, "persist status")
	}
	// 先落终态再补偿;账本侧退款幂等,并发轮询只会成功一次,
	// 退款失败由对账扫描兜底
	if t.Status == task.StatusFailed {
		g.refundTask(ctx, t, "task failed")
	}
	if !t.Terminal() && g.cache != nil && g.opts.StatusCacheTTL > 0 {
		_ = g.cache.Set(ctx, statusCacheKey(promptID), t, g.opts.StatusCacheTTL)
	}
	return t, nil
}

// applySnapshot 把归一化快照合并进记录并推进状态机。
// 远端失败触发补偿退款；unknown 不推进状态,只更新遥测。
func (g *Gateway) applySnapshot(ctx context.Context, t *task.TaskExecution, svc platform.Service, snap *platform.StatusSnapshot) error {
	now := time.Now()
	t.AppendRaw("status", snap.Raw, now)
	if snap.Queue != nil {
		t.QueueInfo = snap.Queue
	}
	if snap.Progress != nil {
		t.Progress = snap.Progress
	}
	if snap.Workflow != nil {
		if t.WorkflowInfo == nil {
			t.WorkflowInfo = snap.Workflow
		} else if snap.Workflow.ExecutedNodes > 0 {
			t.WorkflowInfo.ExecutedNodes = snap.Workflow.ExecutedNodes
		}
	}

	switch snap.State {
	case task.StatusRunning:
		if err := t.MarkRunning(now); err != nil {
			return err
		}
	case task.StatusCompleted:
		out, raw, err := svc.GetResult(ctx, t.PromptID, t.APIConfig)
		if err != nil {
			return pkgerr.Wrap(err, "fetch result for completed task")
		}
		t.AppendRaw("result", raw, now)
		if t.Status == task.StatusPending {
			_ = t.MarkRunning(now)
		}
		if err := t.MarkCompleted(out, now); err != nil {
			return err
		}
	case task.StatusFailed:
		if err := t.MarkFailed(snap.Error, now); err != nil {
			return err
		}
	}

	if t.Terminal() {
		g.observeTerminal(t)
		if g.cache != nil {
			_ = g.cache.Delete(ctx, statusCacheKey(t.PromptID))
		}
	}
	return nil
}

func (g *Gateway) observeTerminal(t *task.TaskExecution) {
	metrics.TaskTerminalTotal.WithLabelValues(string(t.Status)).Inc()
	if t.Timing.CompletedAt != nil {
		metrics.TaskDuration.WithLabelValues(string(t.PlatformType)).
			Observe(t.Timing.CompletedAt.Sub(t.Timing.SubmittedAt).Seconds())
	}
}

// Result 取归一化结果；只有 completed 的任务有结果。
// 结果第一次取回后落到记录里,之后直接回缓存值。
func (g *Gateway) Result(ctx context.Context, userID, promptID string) (*task.Output, error) {
	t, err := g.load(ctx, userID, promptID)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case task.StatusCompleted:
	case task.StatusFailed, task.StatusCancelled:
		return nil, pkgerr.Wrapf(pkgerr.ErrInvalidArg, "task %s is %s, no result", promptID, t.Status)
	default:
		return nil, pkgerr.ErrNotYetComplete
	}
	if t.OutputData != nil {
		return t.OutputData, nil
	}

	svc, err := g.platforms.Resolve(t.PlatformType)
	if err != nil {
		return nil, err
	}
	out, raw, err := svc.GetResult(ctx, promptID, t.APIConfig)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	t.AppendRaw("result", raw, now)
	t.OutputData = out
	if err := g.tasks.Update(ctx, t); err != nil {
		return nil, pkgerr.Wrap(err, "persist result")
	}
	return out, nil
}

// Cancel 取消任务：远端尽力而为,本地必然落 cancelled。
// 从未开始执行的任务取消时退还消耗。
func (g *Gateway) Cancel(ctx context.Context, userID, promptID string) (*task.TaskExecution, error) {
	t, err := g.load(ctx, userID, promptID)
	if err != nil {
		return nil, err
	}
	if t.Terminal() {
		return nil, pkgerr.Wrapf(pkgerr.ErrTaskTerminal, "task %s is %s", promptID, t.Status)
	}

	if svc, err := g.platforms.Resolve(t.PlatformType); err == nil {
		if err := svc.Cancel(ctx, promptID, t.APIConfig); err != nil {
			g.logger.Warn("remote cancel failed, marking local anyway",
				"promptId", promptID, "error", err)
		}
	}

	neverRan := t.Timing.StartedAt == nil
	now := time.Now()
	if err := t.MarkCancelled(now); err != nil {
		return nil, err
	}
	if err := g.tasks.Update(ctx, t); err != nil {
		return nil, pkgerr.Wrap(err, "persist cancel")
	}
	if neverRan {
		g.refundTask(ctx, t, "cancelled before execution")
	}
	g.observeTerminal(t)
	if g.cache != nil {
		_ = g.cache.Delete(ctx, statusCacheKey(promptID))
	}
	g.logger.Info("task cancelled", "promptId", promptID, "refunded", neverRan)
	return t, nil
}

// List 分页读取某用户的任务
func (g *Gateway) List(ctx context.Context, userID string, f task.Filter) ([]*task.TaskExecution, int, error) {
	if userID == "" {
		return nil, 0, pkgerr.NewValidation("userId", "required")
	}
	return g.tasks.ListByUser(ctx, userID, f)
}

// Balance 查询用户余额
func (g *Gateway) Balance(ctx context.Context, userID string) (int64, error) {
	return g.ledger.Balance(ctx, userID)
}

// Transactions 分页读取用户积分流水
func (g *Gateway) Transactions(ctx context.Context, userID string, page, limit int) ([]*credit.Transaction, error) {
	return g.ledger.ListTransactions(ctx, userID, page, limit)
}

// Grant 入账（充值/赠送/调整）,运营通道
func (g *Gateway) Grant(ctx context.Context, userID string, amount int64, typ credit.TxnType, description, promotion string) (*credit.Transaction, error) {
	switch typ {
	case credit.TxnTopup, credit.TxnGrant, credit.TxnAdjustment:
	default:
		return nil, pkgerr.NewValidation("type", fmt.Sprintf("type %s cannot be granted", typ))
	}
	return g.ledger.Credit(ctx, userID, amount, credit.Entry{
		Type:              typ,
		Description:       description,
		PromotionActivity: promotion,
	})
}
