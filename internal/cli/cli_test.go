package cli

import (
	"testing"
	"time"
)

func TestParseInputs(t *testing.T) {
	inputs, err := parseInputs([]string{"name=world", "url=https://example.com/a=b"})
	if err != nil {
		t.Fatalf("parseInputs: %v", err)
	}
	if inputs["name"] != "world" {
		t.Fatalf("name = %v", inputs["name"])
	}
	// Значение может содержать '=', разрезаем только по первому
	if inputs["url"] != "https://example.com/a=b" {
		t.Fatalf("url = %v", inputs["url"])
	}
}

func TestParseInputs_Invalid(t *testing.T) {
	if _, err := parseInputs([]string{"no-equals-sign"}); err == nil {
		t.Fatal("expected error for malformed pair")
	}
}

func TestParseInputs_Empty(t *testing.T) {
	inputs, err := parseInputs(nil)
	if err != nil {
		t.Fatalf("parseInputs: %v", err)
	}
	if inputs != nil {
		t.Fatalf("inputs = %v, want nil", inputs)
	}
}

func TestScheduleExprColumn(t *testing.T) {
	if got := scheduleExprColumn("0 9 * * *", 0); got != "0 9 * * *" {
		t.Fatalf("cron column = %q", got)
	}
	if got := scheduleExprColumn("", 300); got != "every 300s" {
		t.Fatalf("interval column = %q", got)
	}
}

func TestFmtTimePtr(t *testing.T) {
	if got := fmtTimePtr(nil); got != "" {
		t.Fatalf("nil time = %q", got)
	}
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := fmtTimePtr(&ts); got != "2024-03-01T12:00:00Z" {
		t.Fatalf("time = %q", got)
	}
}
