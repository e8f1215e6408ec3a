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

package platform

import (
	"context"
	"time"

	"aigc-platform/internal/application"
	pkgerr "aigc-platform/pkg/errors"
)

// PollOptions 轮询参数
type PollOptions struct {
	// MaxAttempts 最大查询次数，<=0 用缺省 60
	MaxAttempts int
	// Interval 两次查询间隔，<=0 用缺省 2s
	Interval time.Duration
	// OnProgress 每拿到一个快照回调一次，可为 nil
	OnProgress func(*StatusSnapshot)
}

// PollUntilComplete 反复查状态直到终态或次数用尽。
// 只用 GetStatus 一个原语，单次查询失败算一次尝试而不是放弃，
// 次数用尽返回最后一个快照和 ErrTimeout。
func PollUntilComplete(ctx context.Context, svc Service, promptID string, api application.APIConfig, opts PollOptions) (*StatusSnapshot, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 60
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var last *StatusSnapshot
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return last, ctx.Err()
			case <-time.After(interval):
			}
		}

		snap, err := svc.GetStatus(ctx, promptID, api)
		if err != nil {
			// 瞬时不可达不终止轮询,留给下一轮
			continue
		}
		last = snap
		if opts.OnProgress != nil {
			opts.OnProgress(snap)
		}
		if snap.State.Terminal() {
			return snap, nil
		}
	}
	return last, pkgerr.Wrapf(pkgerr.ErrTimeout, "task %s not terminal after %d polls", promptID, maxAttempts)
}
