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

package comfyui

import (
	"encoding/json"

	"aigc-platform/internal/platform"
	"aigc-platform/internal/task"
)

// historyStatus /history 响应里单条记录的状态块
type historyStatus struct {
	StatusStr string `json:"status_str"`
	Completed bool   `json:"completed"`
	Messages  []json.RawMessage `json:"messages,omitempty"`
}

// historyEntry /history/{id} 响应里单条记录
type historyEntry struct {
	Status  historyStatus              `json:"status"`
	Outputs map[string]json.RawMessage `json:"outputs"`
}

// queueState /queue 响应；队列项是异构数组，第二个元素是 prompt_id
type queueState struct {
	Running [][]json.RawMessage `json:"queue_running"`
	Pending [][]json.RawMessage `json:"queue_pending"`
}

// promptAt 取队列项里的 prompt_id；结构不符返回空串
func promptAt(item []json.RawMessage) string {
	if len(item) < 2 {
		return ""
	}
	var id string
	if err := json.Unmarshal(item[1], &id); err != nil {
		return ""
	}
	return id
}

// snapshotFromHistory 历史记录归一化：completed → completed，
// status_str=error → failed，其余词表归 unknown 而不是报错
func snapshotFromHistory(entry historyEntry, raw json.RawMessage) *platform.StatusSnapshot {
	snap := &platform.StatusSnapshot{Raw: raw}
	switch {
	case entry.Status.Completed:
		snap.State = task.StatusCompleted
	case entry.Status.StatusStr == "error":
		snap.State = task.StatusFailed
		snap.Error = &task.ErrorInfo{Message: historyError(entry)}
	default:
		snap.State = task.StatusUnknown
	}
	if n := len(entry.Outputs); n > 0 {
		snap.Workflow = &task.WorkflowInfo{ExecutedNodes: n}
	}
	return snap
}

// historyError 从状态消息里抠失败文本；抠不到给个兜底
func historyError(entry historyEntry) string {
	for _, msg := range entry.Status.Messages {
		// messages 是 [event, payload] 对
		var pair []json.RawMessage
		if err := json.Unmarshal(msg, &pair); err != nil || len(pair) < 2 {
			continue
		}
		var event string
		if err := json.Unmarshal(pair[0], &event); err != nil || event != "execution_error" {
			continue
		}
		var payload struct {
			NodeID    string `json:"node_id"`
			Exception string `json:"exception_message"`
		}
		if err := json.Unmarshal(pair[1], &payload); err == nil && payload.Exception != "" {
			return payload.Exception
		}
	}
	return "workflow execution failed"
}

// snapshotFromQueue 队列归一化：在 running 列表 → running，
// 在 pending 列表 → pending 并带上队列位置，都不在 → unknown
func snapshotFromQueue(promptID string, q queueState, raw json.RawMessage) *platform.StatusSnapshot {
	snap := &platform.StatusSnapshot{
		State: task.StatusUnknown,
		Raw:   raw,
		Queue: &task.QueueInfo{Running: len(q.Running), Pending: len(q.Pending)},
	}
	for _, item := range q.Running {
		if promptAt(item) == promptID {
			snap.State = task.StatusRunning
			return snap
		}
	}
	for i, item := range q.Pending {
		if promptAt(item) == promptID {
			snap.State = task.StatusPending
			snap.Queue.Position = i + 1
			return snap
		}
	}
	return snap
}
