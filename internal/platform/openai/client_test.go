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

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aigc-platform/internal/application"
	"aigc-platform/internal/platform"
	"aigc-platform/internal/task"
	pkgerr "aigc-platform/pkg/errors"
	"aigc-platform/pkg/secrets"
)

func newTestService() *Service {
	return NewService(platform.DefaultClientConfig(), secrets.NewMemoryStoreWith(map[string]string{
		"openai-key": "sk-test",
	}))
}

func testApp(url string) *application.Application {
	return &application.Application{
		ID:           "chat1",
		Name:         "对话助手",
		PlatformType: application.PlatformOpenAI,
		Active:       true,
		APIConfig: application.APIConfig{
			APIUrl: url,
			APIKey: "ref:openai-key",
			Model:  "gpt-4o-mini",
		},
	}
}

func TestSubmit_SynchronousCompletion(t *testing.T) {
	var got struct {
		Model    string              `json:"model"`
		Messages []map[string]string `json:"messages"`
	}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-9","choices":[{"message":{"role":"assistant","content":"你好"}}]}`))
	}))
	defer srv.Close()

	svc := newTestService()
	res, err := svc.Submit(context.Background(), platform.SubmitRequest{
		App: testApp(srv.URL + "/"),
		Inputs: map[string]interface{}{
			"prompt":      "打个招呼",
			"system":      "你是个助手",
			"temperature": 0.2,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0]["role"])
	assert.Equal(t, "打个招呼", got.Messages[1]["content"])

	assert.Equal(t, "chatcmpl-9", res.PlatformTaskID)
	assert.NotEmpty(t, res.PromptID)
	assert.NotEqual(t, res.PlatformTaskID, res.PromptID)
	assert.Equal(t, task.StatusCompleted, res.State)
	require.NotNil(t, res.Output)
	assert.Equal(t, task.OutputText, res.Output.Kind)
	assert.Equal(t, "你好", res.Output.Text)
}

func TestSubmit_PromptRequired(t *testing.T) {
	svc := newTestService()
	_, err := svc.Submit(context.Background(), platform.SubmitRequest{
		App:    testApp("http://unused"),
		Inputs: map[string]interface{}{},
	})
	var validation *pkgerr.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "prompt", validation.Field)
}

func TestSubmit_PromptDefaultFromField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"c1","choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	app := testApp(srv.URL)
	app.FormSchema = []application.FormField{
		{Name: "prompt", Type: application.FieldText, Default: "默认提示词"},
	}
	svc := newTestService()
	res, err := svc.Submit(context.Background(), platform.SubmitRequest{App: app, Inputs: nil})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output.Text)
}

func TestSubmit_ModelNotConfigured(t *testing.T) {
	app := testApp("http://unused")
	app.APIConfig.Model = ""
	svc := newTestService()
	_, err := svc.Submit(context.Background(), platform.SubmitRequest{
		App:    app,
		Inputs: map[string]interface{}{"prompt": "x"},
	})
	var confErr *pkgerr.ConfigurationError
	require.ErrorAs(t, err, &confErr)
}

func TestSubmit_RemoteRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	svc := newTestService()
	_, err := svc.Submit(context.Background(), platform.SubmitRequest{
		App:    testApp(srv.URL),
		Inputs: map[string]interface{}{"prompt": "x"},
	})
	var rejected *pkgerr.PlatformRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusTooManyRequests, rejected.StatusCode)
	assert.Contains(t, rejected.RemoteMessage, "Rate limit reached")
}

func TestSubmit_EmptyChoicesRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"c2","choices":[]}`))
	}))
	defer srv.Close()

	svc := newTestService()
	_, err := svc.Submit(context.Background(), platform.SubmitRequest{
		App:    testApp(srv.URL),
		Inputs: map[string]interface{}{"prompt": "x"},
	})
	var rejected *pkgerr.PlatformRejectedError
	require.ErrorAs(t, err, &rejected)
}

func TestNoRemoteLifecycle(t *testing.T) {
	svc := newTestService()
	api := application.APIConfig{APIUrl: "http://unused"}

	snap, err := svc.GetStatus(context.Background(), "task-x", api)
	require.NoError(t, err)
	assert.Equal(t, task.StatusUnknown, snap.State)

	_, _, err = svc.GetResult(context.Background(), "task-x", api)
	assert.True(t, errors.Is(err, pkgerr.ErrNotYetComplete))

	assert.NoError(t, svc.Cancel(context.Background(), "task-x", api))
}
