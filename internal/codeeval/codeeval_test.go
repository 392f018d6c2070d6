package codeeval

import (
	"context"
	"testing"
)

func TestPrevalidateAllowsLiteralUseOfBlockedWord(t *testing.T) {
	if err := Prevalidate(`result = "process"`); err != nil {
		t.Fatalf("expected quoted identifier to be accepted, got %v", err)
	}
}

func TestPrevalidateRejectsBareBlockedGlobal(t *testing.T) {
	if err := Prevalidate(`result = process.env`); err == nil {
		t.Fatal("expected bare blocked global to be rejected")
	}
}

func TestPrevalidateRejectsDangerousPattern(t *testing.T) {
	if err := Prevalidate(`result = require("child_process")`); err == nil {
		t.Fatal("expected dangerous pattern to be rejected")
	}
}

func TestRunReturnsResult(t *testing.T) {
	ev := New()
	v, err := ev.Run(context.Background(), SiteHook, `result = 1 + 1`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != int64(2) {
		t.Fatalf("got %v (%T), want 2", v, v)
	}
}

func TestRunRejectsDangerousCode(t *testing.T) {
	ev := New()
	_, err := ev.Run(context.Background(), SiteHook, `result = require("child_process")`, nil)
	var rejected *CodeRejected
	if err == nil {
		t.Fatal("expected rejection")
	}
	_ = rejected
}
