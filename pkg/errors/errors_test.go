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

package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestWrap(t *testing.T) {
	if Wrap(nil, "msg") != nil {
		t.Error("Wrap(nil, msg) should return nil")
	}
	err := errors.New("base")
	wrapped := Wrap(err, "context")
	if wrapped == nil {
		t.Fatal("Wrap(err, msg) should not return nil")
	}
	if !errors.Is(wrapped, err) {
		t.Error("wrapped error should unwrap to base")
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "format %s", "x") != nil {
		t.Error("Wrapf(nil, ...) should return nil")
	}
	err := errors.New("base")
	wrapped := Wrapf(err, "id=%s", "a")
	if wrapped == nil {
		t.Fatal("Wrapf(err, ...) should not return nil")
	}
	if !errors.Is(wrapped, err) {
		t.Error("wrapped error should unwrap to base")
	}
}

func TestSentinels(t *testing.T) {
	if !errors.Is(ErrNotFound, ErrNotFound) {
		t.Error("ErrNotFound should be Is ErrNotFound")
	}
	if !errors.Is(ErrInvalidArg, ErrInvalidArg) {
		t.Error("ErrInvalidArg should be Is ErrInvalidArg")
	}
}

func TestValidationError(t *testing.T) {
	var err error = NewValidation("prompt", "required field missing")
	var v *ValidationError
	if !errors.As(err, &v) {
		t.Fatal("errors.As should match *ValidationError")
	}
	if v.Field != "prompt" {
		t.Errorf("Field: got %q", v.Field)
	}
}

func TestInsufficientCreditsError(t *testing.T) {
	err := &InsufficientCreditsError{UserID: "u1", Required: 30, Available: 10}
	msg := err.Error()
	for _, want := range []string{"u1", "30", "10"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestPlatformErrorsCarryContext(t *testing.T) {
	rejected := &PlatformRejectedError{Platform: "comfyui", Op: "submit", StatusCode: 500, RemoteMessage: "bad node"}
	if !strings.Contains(rejected.Error(), "bad node") {
		t.Errorf("rejected message: %q", rejected.Error())
	}
	base := errors.New("dial refused")
	unreachable := &PlatformUnreachableError{Platform: "comfyui", Op: "status", Err: base}
	if !errors.Is(unreachable, base) {
		t.Error("unreachable should unwrap to cause")
	}
}

func TestLedgerInconsistencyError(t *testing.T) {
	base := errors.New("connection reset")
	err := &LedgerInconsistencyError{UserID: "u1", Amount: 30, ConsumptionID: "txn-1", Err: base}
	if !errors.Is(err, base) {
		t.Error("should unwrap to cause")
	}
	if !strings.Contains(err.Error(), "txn-1") {
		t.Errorf("message %q missing consumption id", err.Error())
	}
}
