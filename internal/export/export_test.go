package export

import (
	"os"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

var generated = time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)

func sampleTranscript() Transcript {
	return Transcript{
		Session:     types.Session{ID: "s1", Title: "Uber for Cats", Mode: types.ModeInvestor},
		Persona:     "Gemini VC",
		GeneratedAt: generated,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "My pitch"},
			{Role: types.RoleModel, Content: "Pass."},
		},
	}
}

func TestMarkdownLayout(t *testing.T) {
	md := sampleTranscript().Markdown()
	want := "# Uber for Cats\n\n" +
		"**Generated:** May 1, 2024 at 2:30 PM\n\n" +
		"---\n\n" +
		"## 💬 User\n\nMy pitch\n\n" +
		"---\n\n" +
		"## 🤖 Gemini VC\n\nPass.\n\n" +
		"\n---\n\n*Exported from Gemini Foundry - AI Co-Founder*"
	if md != want {
		t.Fatalf("unexpected markdown:\n%s", md)
	}
}

func TestMarkdownDefaultTitle(t *testing.T) {
	tr := Transcript{GeneratedAt: generated}
	if md := tr.Markdown(); !strings.HasPrefix(md, "# Gemini Foundry Analysis\n") {
		t.Fatalf("expected default title, got %q", md)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	data, err := sampleTranscript().YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid yaml: %v", err)
	}
	msgs, ok := parsed["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %v", parsed["messages"])
	}
	first := msgs[0].(map[string]any)
	if first["role"] != "user" || first["content"] != "My pitch" {
		t.Fatalf("unexpected first message %v", first)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path, err := sampleTranscript().WriteFile(dir, FormatMarkdown)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !strings.HasSuffix(path, "uber-for-cats_2024-05-01.md") {
		t.Fatalf("unexpected path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "## 🤖 Gemini VC") {
		t.Fatalf("file missing persona section")
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatMarkdown, "md": FormatMarkdown, "YAML": FormatYAML, "yml": FormatYAML}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Fatalf("expected pdf to be rejected")
	}
}

func TestAnalysisMarkdown(t *testing.T) {
	a := &types.MVPBlueprint{CoreFeatures: []string{"login"}, EstimatedCost: "$5k"}
	md, err := AnalysisMarkdown(a, generated)
	if err != nil {
		t.Fatalf("AnalysisMarkdown: %v", err)
	}
	if !strings.HasPrefix(md, "# 🔧 MVP Blueprint\n") {
		t.Fatalf("unexpected title in %q", md)
	}
	if !strings.Contains(md, "estimatedCost: $5k") || !strings.Contains(md, "coreFeatures:") {
		t.Fatalf("expected wire-named yaml keys:\n%s", md)
	}
}
