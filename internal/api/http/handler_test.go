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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"aigc-platform/internal/api/http/middleware"
	"aigc-platform/internal/application"
	"aigc-platform/internal/credit"
	"aigc-platform/internal/gateway"
	"aigc-platform/internal/platform"
	"aigc-platform/internal/task"
	pkgerr "aigc-platform/pkg/errors"
	"aigc-platform/pkg/log"
)

// stubService 固定回包的平台适配器
type stubService struct {
	submitResult *platform.SubmitResult
	submitErr    error
	statusSnap   *platform.StatusSnapshot
	resultOut    *task.Output
}

func (s *stubService) PlatformType() application.PlatformType { return application.PlatformComfyUI }

func (s *stubService) Submit(ctx context.Context, req platform.SubmitRequest) (*platform.SubmitResult, error) {
	return s.submitResult, s.submitErr
}

func (s *stubService) GetStatus(ctx context.Context, promptID string, api application.APIConfig) (*platform.StatusSnapshot, error) {
	return s.statusSnap, nil
}

func (s *stubService) GetResult(ctx context.Context, promptID string, api application.APIConfig) (*task.Output, json.RawMessage, error) {
	return s.resultOut, json.RawMessage(`{}`), nil
}

func (s *stubService) Cancel(ctx context.Context, promptID string, api application.APIConfig) error {
	return nil
}

func buildServerForTest(t *testing.T, svc *stubService) (*server.Hertz, *credit.LedgerMem) {
	t.Helper()
	logger, err := log.NewLogger(nil)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	apps := application.NewStoreMem()
	apps.Put(&application.Application{
		ID:           "app1",
		Name:         "文生图",
		PlatformType: application.PlatformComfyUI,
		Active:       true,
		Cost:         30,
	})
	ledger := credit.NewLedgerMem()
	ledger.SetBalance("u1", 100)
	gw := gateway.New(apps, task.NewStoreMem(), ledger, platform.NewRegistry(svc), nil, logger, gateway.Options{})
	r := NewRouter(NewHandler(gw, logger), middleware.NewMiddleware())
	return r.Build(":0"), ledger
}

func newStub() *stubService {
	return &stubService{
		submitResult: &platform.SubmitResult{
			PromptID: "p1",
			Raw:      json.RawMessage(`{"prompt_id":"p1"}`),
		},
	}
}

func asUser(user string) ut.Header {
	return ut.Header{Key: "X-User-ID", Value: user}
}

func TestHealthCheck(t *testing.T) {
	s, _ := buildServerForTest(t, newStub())
	w := ut.PerformRequest(s.Engine, "GET", "/api/health", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Errorf("HealthCheck status: got %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("ok")) {
		t.Errorf("HealthCheck body: %s", resp.Body())
	}
}

func TestIdentityRequired(t *testing.T) {
	s, _ := buildServerForTest(t, newStub())
	body := []byte(`{"applicationId":"app1"}`)
	w := ut.PerformRequest(s.Engine, "POST", "/api/tasks", &ut.Body{Body: bytes.NewReader(body), Len: len(body)})
	if got := w.Result().StatusCode(); got != 401 {
		t.Errorf("POST /api/tasks without identity: status = %d, want 401", got)
	}
	w = ut.PerformRequest(s.Engine, "GET", "/api/credits/balance", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 401 {
		t.Errorf("GET /api/credits/balance without identity: status = %d, want 401", got)
	}
}

func TestSubmitTask_RoundTrip(t *testing.T) {
	s, ledger := buildServerForTest(t, newStub())

	body := []byte(`{"applicationId":"app1","inputs":{"prompt":"a cat"}}`)
	w := ut.PerformRequest(s.Engine, "POST", "/api/tasks", &ut.Body{Body: bytes.NewReader(body), Len: len(body)}, asUser("u1"))
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("SubmitTask status = %d, body %s", resp.StatusCode(), resp.Body())
	}
	var te struct {
		PromptID string `json:"promptId"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body(), &te); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if te.PromptID != "p1" || te.Status != string(task.StatusPending) {
		t.Errorf("task = %+v", te)
	}
	if balance, _ := ledger.Balance(context.Background(), "u1"); balance != 70 {
		t.Errorf("balance = %d, want 70", balance)
	}

	// 状态查询
	w = ut.PerformRequest(s.Engine, "GET", "/api/tasks/status?promptId=p1", &ut.Body{Body: bytes.NewReader(nil), Len: 0}, asUser("u1"))
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("TaskStatus status = %d, body %s", got, w.Result().Body())
	}

	// 他人不可见
	w = ut.PerformRequest(s.Engine, "GET", "/api/tasks/status?promptId=p1", &ut.Body{Body: bytes.NewReader(nil), Len: 0}, asUser("u2"))
	if got := w.Result().StatusCode(); got != 403 {
		t.Errorf("foreign TaskStatus status = %d, want 403", got)
	}
}

func TestSubmitTask_MissingApplicationID(t *testing.T) {
	s, _ := buildServerForTest(t, newStub())
	body := []byte(`{"inputs":{}}`)
	w := ut.PerformRequest(s.Engine, "POST", "/api/tasks", &ut.Body{Body: bytes.NewReader(body), Len: len(body)}, asUser("u1"))
	resp := w.Result()
	if resp.StatusCode() != 400 {
		t.Errorf("status = %d, want 400", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("applicationId")) {
		t.Errorf("body: %s", resp.Body())
	}
}

func TestSubmitTask_InsufficientCredits(t *testing.T) {
	stub := newStub()
	s, ledger := buildServerForTest(t, stub)
	ledger.SetBalance("u1", 5)

	body := []byte(`{"applicationId":"app1"}`)
	w := ut.PerformRequest(s.Engine, "POST", "/api/tasks", &ut.Body{Body: bytes.NewReader(body), Len: len(body)}, asUser("u1"))
	resp := w.Result()
	if resp.StatusCode() != 400 {
		t.Fatalf("status = %d, want 400", resp.StatusCode())
	}
	var shape struct {
		Required  int64 `json:"required"`
		Available int64 `json:"available"`
	}
	if err := json.Unmarshal(resp.Body(), &shape); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if shape.Required != 30 || shape.Available != 5 {
		t.Errorf("error shape = %+v", shape)
	}
}

func TestSubmitTask_PlatformRejected(t *testing.T) {
	stub := newStub()
	stub.submitErr = &pkgerr.PlatformRejectedError{Platform: "comfyui", Op: "submit", StatusCode: 500, RemoteMessage: "node type missing"}
	s, _ := buildServerForTest(t, stub)

	body := []byte(`{"applicationId":"app1"}`)
	w := ut.PerformRequest(s.Engine, "POST", "/api/tasks", &ut.Body{Body: bytes.NewReader(body), Len: len(body)}, asUser("u1"))
	resp := w.Result()
	if resp.StatusCode() != 502 {
		t.Fatalf("status = %d, want 502", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("node type missing")) {
		t.Errorf("body: %s", resp.Body())
	}
}

func TestTaskResult_NotYetComplete(t *testing.T) {
	s, _ := buildServerForTest(t, newStub())
	body := []byte(`{"applicationId":"app1"}`)
	ut.PerformRequest(s.Engine, "POST", "/api/tasks", &ut.Body{Body: bytes.NewReader(body), Len: len(body)}, asUser("u1"))

	w := ut.PerformRequest(s.Engine, "GET", "/api/tasks/result?promptId=p1", &ut.Body{Body: bytes.NewReader(nil), Len: 0}, asUser("u1"))
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("result before completion: status = %d, want 400", got)
	}
}

func TestTaskResult_Completed(t *testing.T) {
	stub := newStub()
	stub.statusSnap = &platform.StatusSnapshot{State: task.StatusCompleted}
	stub.resultOut = &task.Output{Kind: task.OutputText, Text: "done"}
	s, _ := buildServerForTest(t, stub)

	body := []byte(`{"applicationId":"app1"}`)
	ut.PerformRequest(s.Engine, "POST", "/api/tasks", &ut.Body{Body: bytes.NewReader(body), Len: len(body)}, asUser("u1"))
	ut.PerformRequest(s.Engine, "GET", "/api/tasks/status?promptId=p1", &ut.Body{Body: bytes.NewReader(nil), Len: 0}, asUser("u1"))

	w := ut.PerformRequest(s.Engine, "GET", "/api/tasks/result?promptId=p1", &ut.Body{Body: bytes.NewReader(nil), Len: 0}, asUser("u1"))
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("status = %d, body %s", resp.StatusCode(), resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte("done")) {
		t.Errorf("body: %s", resp.Body())
	}
}

func TestCancelTask(t *testing.T) {
	s, ledger := buildServerForTest(t, newStub())
	body := []byte(`{"applicationId":"app1"}`)
	ut.PerformRequest(s.Engine, "POST", "/api/tasks", &ut.Body{Body: bytes.NewReader(body), Len: len(body)}, asUser("u1"))

	w := ut.PerformRequest(s.Engine, "DELETE", "/api/tasks/p1", &ut.Body{Body: bytes.NewReader(nil), Len: 0}, asUser("u1"))
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("cancel status = %d, body %s", resp.StatusCode(), resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(string(task.StatusCancelled))) {
		t.Errorf("body: %s", resp.Body())
	}
	if balance, _ := ledger.Balance(context.Background(), "u1"); balance != 100 {
		t.Errorf("balance = %d, want 100", balance)
	}

	// 终态再取消
	w = ut.PerformRequest(s.Engine, "DELETE", "/api/tasks/p1", &ut.Body{Body: bytes.NewReader(nil), Len: 0}, asUser("u1"))
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("cancel terminal status = %d, want 400", got)
	}
}

func TestTaskStatus_NotFound(t *testing.T) {
	s, _ := buildServerForTest(t, newStub())
	w := ut.PerformRequest(s.Engine, "GET", "/api/tasks/status?promptId=ghost", &ut.Body{Body: bytes.NewReader(nil), Len: 0}, asUser("u1"))
	if got := w.Result().StatusCode(); got != 404 {
		t.Errorf("status = %d, want 404", got)
	}
}

func TestCreditEndpoints(t *testing.T) {
	s, _ := buildServerForTest(t, newStub())

	w := ut.PerformRequest(s.Engine, "GET", "/api/credits/balance", &ut.Body{Body: bytes.NewReader(nil), Len: 0}, asUser("u1"))
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("balance status = %d, body %s", resp.StatusCode(), resp.Body())
	}
	var bal struct {
		UserID  string `json:"userId"`
		Balance int64  `json:"balance"`
	}
	if err := json.Unmarshal(resp.Body(), &bal); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if bal.UserID != "u1" || bal.Balance != 100 {
		t.Errorf("balance view = %+v", bal)
	}

	body := []byte(`{"userId":"u1","amount":50,"type":"grant","description":"新手礼包"}`)
	w = ut.PerformRequest(s.Engine, "POST", "/api/credits/grant", &ut.Body{Body: bytes.NewReader(body), Len: len(body)}, asUser("admin"))
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("grant status = %d, body %s", got, w.Result().Body())
	}

	w = ut.PerformRequest(s.Engine, "GET", "/api/credits/balance", &ut.Body{Body: bytes.NewReader(nil), Len: 0}, asUser("u1"))
	_ = json.Unmarshal(w.Result().Body(), &bal)
	if bal.Balance != 150 {
		t.Errorf("balance after grant = %d, want 150", bal.Balance)
	}

	// 消费类型不允许走发放接口
	body = []byte(`{"userId":"u1","amount":10,"type":"consumption"}`)
	w = ut.PerformRequest(s.Engine, "POST", "/api/credits/grant", &ut.Body{Body: bytes.NewReader(body), Len: len(body)}, asUser("admin"))
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("grant consumption status = %d, want 400", got)
	}
}
