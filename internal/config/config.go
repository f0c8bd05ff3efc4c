package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Oracle  OracleConfig
	Storage StorageConfig
	Intake  IntakeConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

// OracleConfig selects the inference backends: Gemini as primary, any
// OpenAI-compatible endpoint as fallback, and optionally a local Ollama
// instance as a keyless last resort. At least one backend must be usable.
type OracleConfig struct {
	GeminiModel  string
	GeminiAPIKey string

	FallbackBaseURL string
	FallbackModel   string
	FallbackAPIKey  string

	OllamaBaseURL string
	OllamaModel   string
}

type StorageConfig struct {
	DataDir string
}

type IntakeConfig struct {
	RecommendationLimit int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
		},
		Oracle: OracleConfig{
			GeminiModel:     "gemini-1.5-flash",
			FallbackBaseURL: "https://api.openai.com/v1",
			FallbackModel:   "gpt-4o-mini",
			OllamaModel:     "llama3.2",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Intake: IntakeConfig{
			RecommendationLimit: 5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a .env file if present, the platform-native
// backend, environment variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.silverstar.intake) and
// secrets fall back to macOS Keychain. On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/intake/config.json and secrets live in a mode-0600 file
// under $XDG_DATA_HOME/intake.
//
// Environment variables (INTAKE_*) override backend values on all platforms.
func Load() (Config, error) {
	// Best effort: a missing .env file is fine.
	_ = godotenv.Load()
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret-store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

const keychainService = "intake"

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Oracle.GeminiAPIKey == "" {
		if key, err := kc.Get(keychainService, "gemini_api_key"); err == nil && key != "" {
			cfg.Oracle.GeminiAPIKey = key
		}
	}
	if cfg.Oracle.FallbackAPIKey == "" {
		if key, err := kc.Get(keychainService, "fallback_api_key"); err == nil && key != "" {
			cfg.Oracle.FallbackAPIKey = key
		}
	}

	if cfg.Oracle.GeminiAPIKey == "" && cfg.Oracle.FallbackAPIKey == "" && cfg.Oracle.OllamaBaseURL == "" {
		msg := "missing required config: no oracle backend. " +
			"Set INTAKE_GEMINI_API_KEY, INTAKE_FALLBACK_API_KEY, or INTAKE_OLLAMA_BASE_URL" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
