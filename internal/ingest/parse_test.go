package ingest_test

import (
	"strings"
	"testing"

	"github.com/zenzeng/endgameos/internal/ingest"
)

func TestParse_PlainText(t *testing.T) {
	got, err := ingest.Parse("notes.txt", []byte("hello world"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("expected verbatim text, got %q", got)
	}
}

func TestParse_ChatGPTExport(t *testing.T) {
	export := `[{"title":"Launch Plan","mapping":{"n1":{"message":{"author":{"role":"user"},` +
		`"content":{"parts":["I want to launch my startup"]}}}}}]`

	got, err := ingest.Parse("export.json", []byte(export))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(got, "Launch Plan") {
		t.Fatalf("expected conversation title in output, got %q", got)
	}
	if !strings.Contains(got, "[user]: I want to launch my startup") {
		t.Fatalf("expected rendered message in output, got %q", got)
	}
}

func TestParse_UnknownJSONCollapsesToStringifiedForm(t *testing.T) {
	got, err := ingest.Parse("data.json", []byte(`{"foo":"bar","count":3}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(got, "bar") || !strings.Contains(got, "3") {
		t.Fatalf("expected stringified JSON content, got %q", got)
	}
}

func TestParse_InvalidJSONErrors(t *testing.T) {
	_, err := ingest.Parse("broken.json", []byte("{not json"))
	if err == nil {
		t.Fatal("expected error for invalid json")
	}
}
