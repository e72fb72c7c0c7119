// internal/appconfig/appconfig_test.go
package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoad covers a partial file that relies on defaults, invalid JSON, an
// invalid search configuration and a missing file.
func TestLoad(t *testing.T) {
	dir := t.TempDir()

	valid := writeConfig(t, dir, "valid.json", `{
        "chatModel": "gpt-test",
        "k": 3,
        "fetchK": 12
    }`)
	cfg, err := Load(valid)
	if err != nil {
		t.Fatalf("Load() with valid config failed: %v", err)
	}
	if cfg.ChatModel != "gpt-test" {
		t.Fatalf("expected chat model override, got %q", cfg.ChatModel)
	}
	if cfg.TopK != 3 || cfg.FetchK != 12 {
		t.Fatalf("expected k=3 fetchK=12, got k=%d fetchK=%d", cfg.TopK, cfg.FetchK)
	}
	if cfg.EmbeddingModel != "text-embedding-3-small" {
		t.Fatalf("expected default embedding model, got %q", cfg.EmbeddingModel)
	}
	if cfg.LambdaMult != 0.8 {
		t.Fatalf("expected default lambda 0.8, got %v", cfg.LambdaMult)
	}
	if cfg.MemoryWindow != 6 {
		t.Fatalf("expected default memory window 6, got %d", cfg.MemoryWindow)
	}
	if cfg.RequestTimeout() != 120*time.Second {
		t.Fatalf("expected default request timeout of 120s, got %v", cfg.RequestTimeout())
	}
	if cfg.ConfigPath != valid {
		t.Fatalf("expected ConfigPath %q, got %q", valid, cfg.ConfigPath)
	}

	invalidJSON := writeConfig(t, dir, "invalid.json", `{ "k": [`)
	if _, err := Load(invalidJSON); err == nil {
		t.Fatal("Load() with invalid JSON should have failed")
	}

	badSearch := writeConfig(t, dir, "bad.json", `{ "k": 8, "fetchK": 4 }`)
	if _, err := Load(badSearch); err == nil || !strings.Contains(err.Error(), "fetchK") {
		t.Fatalf("Load() with fetchK < k should fail, got %v", err)
	}

	if _, err := Load(filepath.Join(dir, "nonexistent.json")); err == nil {
		t.Fatal("Load() with nonexistent file should have failed")
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", "provider: ollama\nbaseURL: http://localhost:11434\nsearchType: similarity\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load yaml: %v", err)
	}
	if cfg.Provider != ProviderOllama || cfg.SearchType != SearchSimilarity {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadDefaultPathAndLegacyFallback(t *testing.T) {
	tempDir := t.TempDir()
	oldCwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(tempDir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })

	if _, err := Load(""); err == nil {
		t.Fatal("expected error when neither default nor legacy config exists")
	}

	writeConfig(t, tempDir, legacyConfigPath, `{"serverAddr": ":9999"}`)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("legacy Load: %v", err)
	}
	if cfg.ServerAddr != ":9999" || cfg.ConfigPath != legacyConfigPath {
		t.Fatalf("expected legacy config, got %+v", cfg)
	}

	writeConfig(t, tempDir, DefaultConfigPath, `{"serverAddr": ":7777"}`)
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("default Load: %v", err)
	}
	if cfg.ServerAddr != ":7777" {
		t.Fatalf("expected default path to win, got %q", cfg.ServerAddr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "fetchK below k", mutate: func(c *Config) { c.FetchK = 2 }, wantErr: "fetchK"},
		{name: "lambda above one", mutate: func(c *Config) { c.LambdaMult = 1.5 }, wantErr: "lambdaMult"},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "bard" }, wantErr: "provider"},
		{name: "unknown search", mutate: func(c *Config) { c.SearchType = "bm25" }, wantErr: "searchType"},
		{name: "overlap too big", mutate: func(c *Config) { c.ChunkOverlap = c.ChunkSize }, wantErr: "chunkOverlap"},
		{name: "empty db path", mutate: func(c *Config) { c.DBPath = " " }, wantErr: "dbPath"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadEnvReadsAPIKey(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("OPENAI_API_KEY=sk-test\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv(APIKeyEnv, "")
	_ = os.Unsetenv(APIKeyEnv)

	cfg := Default()
	if err := LoadEnv(&cfg, filepath.Join(dir, "missing.env"), envFile); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if cfg.APIKey != "sk-test" {
		t.Fatalf("expected api key from .env, got %q", cfg.APIKey)
	}
}

func TestShowConfigHidesAPIKey(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "sk-secret"
	var buf bytes.Buffer
	ShowConfig(&buf, "config/config.json", &cfg)
	out := buf.String()
	if strings.Contains(out, "sk-secret") {
		t.Fatalf("api key leaked: %s", out)
	}
	if !strings.Contains(out, "Config file: config/config.json") || !strings.Contains(out, "k=5 fetchK=10") {
		t.Fatalf("unexpected output: %s", out)
	}

	data, err := MarshalJSON(cfg)
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Fatalf("api key leaked in json: %s", data)
	}
	ydata, err := MarshalYAML(cfg)
	if err != nil {
		t.Fatalf("MarshalYAML: %v", err)
	}
	if !strings.Contains(string(ydata), "chatModel: gpt-4o-mini-2024-07-18") {
		t.Fatalf("unexpected yaml: %s", ydata)
	}
}
