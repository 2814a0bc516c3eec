package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("base path = %q", cfg.Server.BasePath)
	}
	if cfg.Generator.Anchor.MinMultiple > cfg.Generator.Anchor.MaxMultiple {
		t.Fatal("anchor multiples inverted")
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if cfg.Generator.Model == "" {
		t.Fatal("template missing model")
	}
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"not yaml":            "{{{",
		"missing addr":        "generator:\n  model: m\n  timeout_seconds: 10\n",
		"inverted anchor":     strings.Replace(GenerateDefault(), "min_multiple: 5", "min_multiple: 50", 1),
		"zero timeout":        strings.Replace(GenerateDefault(), "timeout_seconds: 180", "timeout_seconds: 0", 1),
		"zero max task chars": strings.Replace(GenerateDefault(), "max_task_chars: 2000", "max_task_chars: 0", 1),
	}
	for name, raw := range cases {
		if _, err := FromYAML([]byte(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Server.Addr == "" {
		t.Fatal("expected default config")
	}

	custom := strings.Replace(GenerateDefault(), "model: gpt-5-nano", "model: custom-model", 1)
	if err := os.WriteFile(filepath.Join(dir, "offload.yml"), []byte(custom), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional with file: %v", err)
	}
	if cfg.Generator.Model != "custom-model" {
		t.Fatalf("model = %q", cfg.Generator.Model)
	}
}
