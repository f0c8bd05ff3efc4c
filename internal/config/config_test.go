package config

import (
	"fmt"
	"strings"
	"testing"
)

// mockBackend is an in-memory ConfigBackend for tests.
type mockBackend struct {
	strings map[string]string
	ints    map[string]int
}

func (m *mockBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *mockBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *mockBackend) SetString(key, val string) error {
	if m.strings == nil {
		m.strings = make(map[string]string)
	}
	m.strings[key] = val
	return nil
}

func (m *mockBackend) SetInt(key string, val int) error {
	if m.ints == nil {
		m.ints = make(map[string]int)
	}
	m.ints[key] = val
	return nil
}

func (m *mockBackend) Delete(key string) error { return nil }

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		if s.env != "" {
			t.Setenv(s.env, "")
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("INTAKE_GEMINI_API_KEY", "test-key")

	cfg, err := loadWith(&mockBackend{}, mockKeychain{err: fmt.Errorf("no keychain")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Server.MCPPort != 4601 {
		t.Errorf("Server.MCPPort = %d, want 4601", cfg.Server.MCPPort)
	}
	if cfg.Oracle.GeminiModel != "gemini-1.5-flash" {
		t.Errorf("Oracle.GeminiModel = %q", cfg.Oracle.GeminiModel)
	}
	if cfg.Oracle.FallbackBaseURL != "https://api.openai.com/v1" {
		t.Errorf("Oracle.FallbackBaseURL = %q", cfg.Oracle.FallbackBaseURL)
	}
	if cfg.Intake.RecommendationLimit != 5 {
		t.Errorf("Intake.RecommendationLimit = %d, want 5", cfg.Intake.RecommendationLimit)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("INTAKE_GEMINI_API_KEY", "test-key")

	b := &mockBackend{
		strings: map[string]string{
			"oracle.gemini_model": "gemini-2.0-pro",
			"storage.data_dir":    "/tmp/intake-test",
		},
		ints: map[string]int{
			"server.port":                5000,
			"intake.recommendation_limit": 3,
		},
	}

	cfg, err := loadWith(b, mockKeychain{err: fmt.Errorf("no keychain")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Oracle.GeminiModel != "gemini-2.0-pro" {
		t.Errorf("Oracle.GeminiModel = %q", cfg.Oracle.GeminiModel)
	}
	if cfg.Storage.DataDir != "/tmp/intake-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Intake.RecommendationLimit != 3 {
		t.Errorf("Intake.RecommendationLimit = %d, want 3", cfg.Intake.RecommendationLimit)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("INTAKE_GEMINI_API_KEY", "test-key")
	t.Setenv("INTAKE_GEMINI_MODEL", "env-model")

	b := &mockBackend{strings: map[string]string{"oracle.gemini_model": "backend-model"}}
	cfg, err := loadWith(b, mockKeychain{err: fmt.Errorf("no keychain")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Oracle.GeminiModel != "env-model" {
		t.Errorf("Oracle.GeminiModel = %q, want env override", cfg.Oracle.GeminiModel)
	}
}

func TestMissingAPIKey(t *testing.T) {
	clearEnv(t)

	_, err := loadWith(&mockBackend{}, mockKeychain{err: fmt.Errorf("no keychain")})
	if err == nil {
		t.Fatal("expected error for missing API keys, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q, want missing-config message", err)
	}
}

func TestOllamaBackendIsSufficient(t *testing.T) {
	clearEnv(t)
	t.Setenv("INTAKE_OLLAMA_BASE_URL", "http://localhost:11434")

	cfg, err := loadWith(&mockBackend{}, mockKeychain{err: fmt.Errorf("no keychain")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Oracle.OllamaBaseURL != "http://localhost:11434" {
		t.Errorf("Oracle.OllamaBaseURL = %q", cfg.Oracle.OllamaBaseURL)
	}
	if cfg.Oracle.OllamaModel != "llama3.2" {
		t.Errorf("Oracle.OllamaModel = %q, want default", cfg.Oracle.OllamaModel)
	}
}

func TestFallbackKeyIsSufficient(t *testing.T) {
	clearEnv(t)
	t.Setenv("INTAKE_FALLBACK_API_KEY", "fallback-key")

	cfg, err := loadWith(&mockBackend{}, mockKeychain{err: fmt.Errorf("no keychain")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Oracle.FallbackAPIKey != "fallback-key" {
		t.Errorf("Oracle.FallbackAPIKey = %q", cfg.Oracle.FallbackAPIKey)
	}
}

func TestKeychainFallback(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(&mockBackend{}, mockKeychain{value: "keychain-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Oracle.GeminiAPIKey != "keychain-secret" {
		t.Errorf("Oracle.GeminiAPIKey = %q, want keychain value", cfg.Oracle.GeminiAPIKey)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Oracle.GeminiAPIKey = "super-secret"

	for _, info := range ShowAll(cfg) {
		if info.Value == "super-secret" {
			t.Errorf("ShowAll leaked a secret via key %s", info.Key)
		}
	}
}

func TestSetKeyRejectsSecrets(t *testing.T) {
	if err := SetKey("oracle.gemini_api_key", "x"); err == nil {
		t.Error("SetKey allowed writing a secret key")
	}
}
