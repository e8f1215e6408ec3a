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
	"errors"
	"testing"
	"time"

	pkgerr "aigc-platform/pkg/errors"
)

func newPendingTask() *TaskExecution {
	return &TaskExecution{
		PromptID: "p1",
		UserID:   "u1",
		Status:   StatusPending,
		Timing:   Timing{SubmittedAt: time.Now()},
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusCancelled, true},
		{StatusRunning, StatusPending, false},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusRunning, false},
		{StatusCancelled, StatusFailed, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestLifecycleTiming(t *testing.T) {
	te := newPendingTask()
	start := time.Now()
	if err := te.MarkRunning(start); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if te.Timing.StartedAt == nil || !te.Timing.StartedAt.Equal(start) {
		t.Fatalf("StartedAt = %v, want %v", te.Timing.StartedAt, start)
	}

	// StartedAt 只设置一次
	if err := te.MarkRunning(start.Add(time.Second)); err != nil {
		t.Fatalf("MarkRunning idempotent: %v", err)
	}
	if !te.Timing.StartedAt.Equal(start) {
		t.Errorf("StartedAt overwritten: %v", te.Timing.StartedAt)
	}

	end := start.Add(3 * time.Second)
	if err := te.MarkCompleted(&Output{Kind: OutputText, Text: "ok"}, end); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if te.Timing.CompletedAt == nil || !te.Timing.CompletedAt.Equal(end) {
		t.Fatalf("CompletedAt = %v, want %v", te.Timing.CompletedAt, end)
	}
	if got := te.ExecutionTime(end.Add(time.Hour)); got != 3*time.Second {
		t.Errorf("ExecutionTime = %v, want 3s", got)
	}
}

func TestTerminalIsFinal(t *testing.T) {
	te := newPendingTask()
	_ = te.MarkRunning(time.Now())
	_ = te.MarkCompleted(nil, time.Now())

	if err := te.MarkFailed(&ErrorInfo{Message: "boom"}, time.Now()); !errors.Is(err, pkgerr.ErrTaskTerminal) {
		t.Errorf("MarkFailed after terminal = %v, want ErrTaskTerminal", err)
	}
	if err := te.MarkCancelled(time.Now()); !errors.Is(err, pkgerr.ErrTaskTerminal) {
		t.Errorf("MarkCancelled after terminal = %v, want ErrTaskTerminal", err)
	}
	if te.Status != StatusCompleted {
		t.Errorf("status changed after terminal: %s", te.Status)
	}
}

func TestPendingCannotComplete(t *testing.T) {
	te := newPendingTask()
	if err := te.MarkCompleted(nil, time.Now()); !errors.Is(err, pkgerr.ErrInvalidArg) {
		t.Errorf("MarkCompleted from pending = %v, want ErrInvalidArg", err)
	}
}

func TestExecutionTimeDerived(t *testing.T) {
	te := newPendingTask()
	if got := te.ExecutionTime(time.Now()); got != 0 {
		t.Errorf("ExecutionTime before start = %v, want 0", got)
	}
	start := time.Now()
	_ = te.MarkRunning(start)
	if got := te.ExecutionTime(start.Add(5 * time.Second)); got != 5*time.Second {
		t.Errorf("ExecutionTime while running = %v, want 5s", got)
	}
}

func TestAppendRawCopies(t *testing.T) {
	te := newPendingTask()
	buf := []byte(`{"a":1}`)
	te.AppendRaw("submit", buf, time.Now())
	buf[2] = 'x'
	if string(te.RawResponses[0].Data) != `{"a":1}` {
		t.Errorf("AppendRaw did not copy: %s", te.RawResponses[0].Data)
	}
	te.AppendRaw("status", nil, time.Now())
	if len(te.RawResponses) != 1 {
		t.Errorf("empty payload appended, len = %d", len(te.RawResponses))
	}
}
