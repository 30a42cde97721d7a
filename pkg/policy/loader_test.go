package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const maxStagePolicy = `# Caps the size of a manual stage crew
package crewdesk.local.stage_size

import rego.v1

deny contains msg if {
	count(input.override.stage) > 4
	msg := "more than four stage crew on one event"
}
`

func writePolicyFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "stage-size.rego")
	writePolicyFile(t, policyFile, maxStagePolicy)

	loaded, err := loader.loadFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(loaded))
	}

	policy := loaded[0]
	if policy.Name != "stage-size" {
		t.Errorf("Expected name 'stage-size', got '%s'", policy.Name)
	}
	if policy.Description != "Caps the size of a manual stage crew" {
		t.Errorf("Unexpected description '%s'", policy.Description)
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("Expected default severity warning, got %s", policy.Severity)
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
}

func TestLoadFile_RegoHeader(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "no-hired-at-jbt.rego")
	writePolicyFile(t, policyFile, `# Keeps hired crew off the JBT stage
# severity: Error
# tags: stage, hired
# enabled: false
package crewdesk.local.jbt

import rego.v1

deny contains msg if {
	false
	msg := ""
}
`)

	loaded, err := loader.loadFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	policy := loaded[0]
	if policy.Description != "Keeps hired crew off the JBT stage" {
		t.Errorf("Unexpected description '%s'", policy.Description)
	}
	if policy.Severity != SeverityError {
		t.Errorf("Expected severity error, got %s", policy.Severity)
	}
	if len(policy.Tags) != 2 || policy.Tags[0] != "stage" || policy.Tags[1] != "hired" {
		t.Errorf("Unexpected tags %v", policy.Tags)
	}
	if policy.Enabled {
		t.Error("Expected header to disable the policy")
	}
}

func TestLoadFile_RegoBadSeverity(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "bad.rego")
	writePolicyFile(t, policyFile, "# severity: fatal\npackage bad\n")

	if _, err := loader.loadFile(context.Background(), policyFile); err == nil {
		t.Error("Expected error for an unknown severity")
	}
}

func TestLoadFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "stage-size.json")
	policy := Policy{
		Name:        "stage-size",
		Description: "Caps the size of a manual stage crew",
		Rego:        maxStagePolicy,
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"stage"},
	}

	data, err := json.Marshal(policy)
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	writePolicyFile(t, policyFile, string(data))

	loaded, err := loader.loadFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if loaded[0].Name != policy.Name {
		t.Errorf("Expected name '%s', got '%s'", policy.Name, loaded[0].Name)
	}
	if loaded[0].Severity != policy.Severity {
		t.Errorf("Expected severity '%s', got '%s'", policy.Severity, loaded[0].Severity)
	}
	if loaded[0].CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be defaulted")
	}
}

func TestLoadFile_JSONWithoutEnabled(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "draft.json")
	writePolicyFile(t, policyFile, `{"name":"draft","rego":"package draft"}`)

	loaded, err := loader.loadFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if loaded[0].Enabled {
		t.Error("A JSON policy without enabled should load disabled")
	}
	if loaded[0].Severity != SeverityWarning {
		t.Errorf("Expected default severity warning, got %s", loaded[0].Severity)
	}
}

func TestLoadPath_Recursive(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "venues")
	if err := os.Mkdir(subDir, 0o755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}

	writePolicyFile(t, filepath.Join(tmpDir, "a.rego"), "package a\nimport rego.v1\ndeny contains msg if { false; msg := \"\" }")
	writePolicyFile(t, filepath.Join(subDir, "b.rego"), "package b\nimport rego.v1\ndeny contains msg if { false; msg := \"\" }")
	writePolicyFile(t, filepath.Join(tmpDir, "README.md"), "# not a policy")

	loaded, err := loader.loadPath(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}

	if len(loaded) != 2 {
		t.Fatalf("Expected 2 policies (including subdirectory), got %d", len(loaded))
	}
	if loaded[0].Name != "a" || loaded[1].Name != "b" {
		t.Errorf("Expected lexical order a, b; got %s, %s", loaded[0].Name, loaded[1].Name)
	}
}

func TestLoadPath_BadFile(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	tmpDir := t.TempDir()
	writePolicyFile(t, filepath.Join(tmpDir, "broken.json"), "invalid json")

	if _, err := loader.loadPath(context.Background(), tmpDir); err == nil {
		t.Error("Expected error for an unreadable policy file")
	}
}

func TestLoadFromPaths_Bundle(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	tmpDir := t.TempDir()
	bundleFile := filepath.Join(tmpDir, "house"+bundleSuffix)

	bundle := PolicyBundle{
		Name:    "house-rules",
		Version: "1.0.0",
		Policies: []Policy{
			{Name: "stage-size", Rego: maxStagePolicy, Enabled: true},
			{Name: "noop", Rego: "package noop\nimport rego.v1\ndeny contains msg if { false; msg := \"\" }", Severity: SeverityError, Enabled: true},
		},
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("Failed to marshal bundle: %v", err)
	}
	writePolicyFile(t, bundleFile, string(data))

	single := filepath.Join(tmpDir, "single.rego")
	writePolicyFile(t, single, maxStagePolicy)

	loaded, err := loader.LoadFromPaths(context.Background(), []string{bundleFile, single})
	if err != nil {
		t.Fatalf("Failed to load paths: %v", err)
	}

	if len(loaded) != 3 {
		t.Fatalf("Expected 3 policies, got %d", len(loaded))
	}
	if loaded[0].Severity != SeverityWarning {
		t.Errorf("Expected bundle policy severity to default to warning, got %s", loaded[0].Severity)
	}
	if loaded[1].Severity != SeverityError {
		t.Errorf("Expected explicit severity to be kept, got %s", loaded[1].Severity)
	}
}

func TestLoadBundle_UnnamedPolicy(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	bundleFile := filepath.Join(t.TempDir(), "bad"+bundleSuffix)
	writePolicyFile(t, bundleFile, `{"name":"bad","policies":[{"rego":"package x"}]}`)

	if _, err := loader.LoadBundle(context.Background(), bundleFile); err == nil {
		t.Error("Expected error for a policy without a name")
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
		fields   int
	}{
		{
			name: "single line comment",
			content: `# Flags long residencies
package test`,
			expected: "Flags long residencies",
		},
		{
			name: "multi line comments",
			content: `# Flags long residencies
# at the main hall
package test`,
			expected: "Flags long residencies at the main hall",
		},
		{
			name:     "no comments",
			content:  "package test",
			expected: "",
		},
		{
			name: "comments with empty lines",
			content: `# First line
#
# Second line
package test`,
			expected: "First line Second line",
		},
		{
			name: "header fields are not description",
			content: `# Warns on long shifts
# severity: info
# note: colons in prose stay
package test`,
			expected: "Warns on long shifts note: colons in prose stay",
			fields:   1,
		},
		{
			name: "comments after package are ignored",
			content: `package test
# severity: error`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := parseHeader(tt.content)
			if h.description != tt.expected {
				t.Errorf("Expected description '%s', got '%s'", tt.expected, h.description)
			}
			if len(h.fields) != tt.fields {
				t.Errorf("Expected %d header fields, got %v", tt.fields, h.fields)
			}
		})
	}
}

func TestLoadFile_UnsupportedType(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "test.txt")
	writePolicyFile(t, policyFile, "not a policy")

	if _, err := loader.loadFile(context.Background(), policyFile); err == nil {
		t.Error("Expected error for unsupported file type")
	}
}

func TestLoadPath_NonExistent(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	if _, err := loader.loadPath(context.Background(), "/nonexistent/path"); err == nil {
		t.Error("Expected error for non-existent path")
	}
}
