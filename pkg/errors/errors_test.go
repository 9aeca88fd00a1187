package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestCodeKind(t *testing.T) {
	tests := []struct {
		code     Code
		expected Kind
	}{
		{CodeMissingActivity, KindInput},
		{CodeInvalidParameter, KindParameter},
		{CodeInapplicableParameter, KindParameter},
		{CodeNotWorkflowNet, KindModel},
		{CodeNotEasySound, KindSoundness},
		{CodeSearchTimeout, KindSearch},
		{CodeEmptyAggregation, KindNumeric},
		{CodeUnknown, KindUnknown},
	}

	for _, tt := range tests {
		if got := tt.code.Kind(); got != tt.expected {
			t.Errorf("Code(%s).Kind() = %q, want %q", tt.code, got, tt.expected)
		}
	}
}

func TestWrapAndIsCode(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(cause, CodeUnreachableFinal, "alignment failed").WithContext("trace", 3)

	if !IsCode(err, CodeUnreachableFinal) {
		t.Error("Expected IsCode to match wrapped code")
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if GetCode(wrapped) != CodeUnreachableFinal {
		t.Errorf("GetCode() = %s, want %s", GetCode(wrapped), CodeUnreachableFinal)
	}
	if !strings.Contains(err.Error(), "trace=3") {
		t.Errorf("Error() = %q, want context rendered", err.Error())
	}
	if Wrap(nil, CodeUnknown, "x") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{nil, 0},
		{New(CodeMissingTimestamp, "x"), 2},
		{New(CodeNotWorkflowNet, "x"), 3},
		{New(CodeSearchTimeout, "x"), 4},
		{New(CodeEmptyAggregation, "x"), 5},
		{fmt.Errorf("plain"), 1},
	}

	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.expected {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.expected)
		}
	}
}

func TestMultiError(t *testing.T) {
	var m MultiError
	if m.Combined() != nil {
		t.Error("Expected nil for empty MultiError")
	}
	m.Add(nil)
	m.Add(New(CodeInvalidFormat, "a"))
	if m.Combined() == nil || !m.HasErrors() {
		t.Error("Expected single error")
	}
	m.Add(New(CodeInvalidFormat, "b"))
	if !strings.Contains(m.Combined().Error(), "2 errors occurred") {
		t.Errorf("Combined() = %q", m.Combined().Error())
	}
}
