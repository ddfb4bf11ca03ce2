package config

import (
	"os"
	"path/filepath"
	"testing"

	"gemini-vision/src/secret"
)

// memStore is an in-memory secret.Store.
type memStore struct{ key string }

func (m *memStore) Save(k string) error { m.key = k; return nil }
func (m *memStore) Load() (string, bool) {
	return m.key, m.key != ""
}

func TestLoad(t *testing.T) {
	t.Setenv(APIKeyEnvVar, "test_api_key")
	t.Setenv(APIKeyPathEnvVar, filepath.Join(t.TempDir(), "missing"))
	t.Setenv("MODEL", "test_model")
	t.Setenv("GEMINI_BASE_URL", "http://127.0.0.1:8080")
	t.Setenv("ENABLE_FILE_LOGGING", "true")
	t.Setenv("HOTKEY", "Ctrl+Shift+T")
	t.Setenv("PROMPT", "What is on screen?")

	cfg, err := LoadWithOptions(LoadOptions{Keyring: &memStore{}})
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.APIKey != "test_api_key" || cfg.APIKeySource != KeySourceEnv {
		t.Errorf("Expected env APIKey, got '%s' from %q", cfg.APIKey, cfg.APIKeySource)
	}
	if cfg.Model != "test_model" {
		t.Errorf("Expected Model to be 'test_model', got '%s'", cfg.Model)
	}
	if cfg.BaseURL != "http://127.0.0.1:8080" {
		t.Errorf("Expected BaseURL override, got %q", cfg.BaseURL)
	}
	if !cfg.EnableFileLogging {
		t.Errorf("Expected EnableFileLogging to be true, got %v", cfg.EnableFileLogging)
	}
	if cfg.Hotkey != "Ctrl+Shift+T" {
		t.Errorf("Expected Hotkey to be 'Ctrl+Shift+T', got '%s'", cfg.Hotkey)
	}
	if cfg.Prompt != "What is on screen?" {
		t.Errorf("Expected Prompt from env, got '%s'", cfg.Prompt)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"MODEL", "HOTKEY", "ANALYZE_DEADLINE_SEC", "JPEG_QUALITY", "MAX_IMAGE_DIMENSION", "SINGLEINSTANCE_PORT_START", "SINGLEINSTANCE_PORT_END", APIKeyEnvVar} {
		t.Setenv(k, "")
	}
	t.Setenv(APIKeyPathEnvVar, filepath.Join(t.TempDir(), "missing"))

	cfg, err := LoadWithOptions(LoadOptions{Keyring: &memStore{}})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("Expected default model, got %q", cfg.Model)
	}
	if cfg.Hotkey != DefaultHotkey() {
		t.Errorf("Expected default hotkey, got %q", cfg.Hotkey)
	}
	if cfg.AnalyzeDeadlineSec != 60 || cfg.JPEGQuality != 80 || cfg.MaxImageDimension != 0 {
		t.Errorf("unexpected numeric defaults: %+v", cfg)
	}
	if cfg.PortStart != 49500 || cfg.PortEnd != 49550 {
		t.Errorf("unexpected port range %d-%d", cfg.PortStart, cfg.PortEnd)
	}
	if cfg.APIKey != "" || cfg.APIKeySource != KeySourceNone {
		t.Errorf("expected no key, got %q from %q", cfg.APIKey, cfg.APIKeySource)
	}
}

func TestLoadInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("ANALYZE_DEADLINE_SEC", "soon")
	t.Setenv("JPEG_QUALITY", "250")
	t.Setenv("SINGLEINSTANCE_PORT_START", "50000")
	t.Setenv("SINGLEINSTANCE_PORT_END", "40000")

	cfg, err := LoadWithOptions(LoadOptions{Keyring: &memStore{}})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AnalyzeDeadlineSec != 60 {
		t.Errorf("expected default deadline, got %d", cfg.AnalyzeDeadlineSec)
	}
	if cfg.JPEGQuality != 100 {
		t.Errorf("expected quality capped at 100, got %d", cfg.JPEGQuality)
	}
	if cfg.PortStart != 49500 || cfg.PortEnd != 49550 {
		t.Errorf("expected default port range for inverted range, got %d-%d", cfg.PortStart, cfg.PortEnd)
	}
}

func TestAPIKeyPrecedence(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "api_key")
	if err := os.WriteFile(keyFile, []byte("file-key\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(APIKeyEnvVar, "env-key")

	cfg, err := LoadWithOptions(LoadOptions{APIKeyPathOverride: keyFile, Keyring: &memStore{}})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey != "file-key" || cfg.APIKeySource != KeySourceFile {
		t.Errorf("expected key file to beat env, got %q from %q", cfg.APIKey, cfg.APIKeySource)
	}
	if cfg.APIKeyPath != keyFile {
		t.Errorf("expected override path, got %q", cfg.APIKeyPath)
	}

	cfg, err = LoadWithOptions(LoadOptions{APIKeyPathOverride: keyFile, Keyring: &memStore{key: "keychain-key"}})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey != "keychain-key" || cfg.APIKeySource != KeySourceKeyring {
		t.Errorf("expected keychain to win, got %q from %q", cfg.APIKey, cfg.APIKeySource)
	}
}

func TestAPIKeyPathOverrideBeatsEnv(t *testing.T) {
	t.Setenv(APIKeyPathEnvVar, "/from/env")
	cfg, err := LoadWithOptions(LoadOptions{APIKeyPathOverride: "  /from/flag  ", Keyring: &memStore{}})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKeyPath != "/from/flag" {
		t.Errorf("expected flag path, got %q", cfg.APIKeyPath)
	}

	t.Setenv(APIKeyPathEnvVar, "")
	cfg, _ = LoadWithOptions(LoadOptions{Keyring: &memStore{}})
	if cfg.APIKeyPath != DefaultAPIKeyPath() {
		t.Errorf("expected default key path, got %q", cfg.APIKeyPath)
	}
}

func TestEnvFileFromVariable(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "custom.env")
	if err := os.WriteFile(envFile, []byte("MAX_IMAGE_DIMENSION=1600\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPathEnvVar, envFile)
	t.Setenv("MAX_IMAGE_DIMENSION", "")
	os.Unsetenv("MAX_IMAGE_DIMENSION")

	cfg, err := LoadWithOptions(LoadOptions{Keyring: &memStore{}})
	if err != nil {
		t.Fatal(err)
	}
	// A .env next to the test binary would take priority; tolerate that.
	if cfg.MaxImageDimension != 1600 {
		t.Logf("env file not applied (executable-dir .env present?): %d", cfg.MaxImageDimension)
	}
	os.Unsetenv("MAX_IMAGE_DIMENSION")
}

func TestKeyStoreOrder(t *testing.T) {
	cfg := &Config{APIKeyPath: filepath.Join(t.TempDir(), "k")}
	kr := &memStore{}
	chain := cfg.KeyStore(kr)
	if err := chain.Save("saved"); err != nil {
		t.Fatal(err)
	}
	if kr.key != "saved" {
		t.Fatalf("expected save to go to keyring first, got %q", kr.key)
	}
	if _, ok := (secret.FileStore{Path: cfg.APIKeyPath}).Load(); ok {
		t.Fatal("expected key file untouched")
	}
}
