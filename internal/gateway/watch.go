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

package gateway

import (
	"context"
	"time"

	"aigc-platform/internal/task"
	"aigc-platform/pkg/tracing"
)

// WatchTask 后台跟进一个任务直到终态或预算耗尽,每个快照发一次。
// 返回的通道在终态、预算耗尽或 ctx 取消时关闭；慢消费者会丢中间快照,
// 最新快照不丢。
func (g *Gateway) WatchTask(ctx context.Context, userID, promptID string) <-chan *task.TaskExecution {
	ch := make(chan *task.TaskExecution, 1)

	interval := g.opts.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxAttempts := g.opts.PollMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 60
	}

	go func() {
		defer close(ch)
		ctx, span := tracing.StartTaskSpan(ctx, promptID)
		defer span.End()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for attempt := 0; attempt < maxAttempts; attempt++ {
			t, err := g.Status(ctx, userID, promptID)
			if err != nil {
				g.logger.Warn("watch poll failed", "promptId", promptID, "error", err)
			} else {
				// 腾掉旧快照,保证最新的能放进去
				select {
				case ch <- t:
				default:
					select {
					case <-ch:
					default:
					}
					ch <- t
				}
				if t.Terminal() {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}

		// 预算耗尽:置为失败并退款,和平台侧报错走同一条收尾路径
		g.failExhausted(ctx, userID, promptID, ch)
	}()
	return ch
}

// failExhausted 轮询预算耗尽后把仍未终态的任务置为 failed
func (g *Gateway) failExhausted(ctx context.Context, userID, promptID string, ch chan *task.TaskExecution) {
	t, err := g.load(ctx, userID, promptID)
	if err != nil || t.Terminal() {
		return
	}
	now := time.Now()
	if err := t.MarkFailed(&task.ErrorInfo{Message: "status polling budget exhausted", Code: "poll_exhausted"}, now); err != nil {
		return
	}
	t.RetryInfo.Count = t.RetryInfo.Max
	t.RetryInfo.LastRetryAt = &now
	if err := g.tasks.Update(ctx, t); err != nil {
		g.logger.Error("persist exhausted task failed", "promptId", promptID, "error", err)
		return
	}
	g.refundTask(ctx, t, "task failed: polling budget exhausted")
	g.observeTerminal(t)
	select {
	case ch <- t:
	default:
	}
}
