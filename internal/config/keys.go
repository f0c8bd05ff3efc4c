package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "INTAKE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "INTAKE_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "oracle.gemini_model", typ: kString, env: "INTAKE_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Oracle.GeminiModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.GeminiModel },
	},
	{
		key: "oracle.gemini_api_key", typ: kString, env: "INTAKE_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Oracle.GeminiAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.GeminiAPIKey },
	},
	{
		key: "oracle.fallback_base_url", typ: kString, env: "INTAKE_FALLBACK_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Oracle.FallbackBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.FallbackBaseURL },
	},
	{
		key: "oracle.fallback_model", typ: kString, env: "INTAKE_FALLBACK_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Oracle.FallbackModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.FallbackModel },
	},
	{
		key: "oracle.fallback_api_key", typ: kString, env: "INTAKE_FALLBACK_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Oracle.FallbackAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.FallbackAPIKey },
	},
	{
		key: "oracle.ollama_base_url", typ: kString, env: "INTAKE_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Oracle.OllamaBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.OllamaBaseURL },
	},
	{
		key: "oracle.ollama_model", typ: kString, env: "INTAKE_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Oracle.OllamaModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.OllamaModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "INTAKE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "intake.recommendation_limit", typ: kInt, env: "INTAKE_RECOMMENDATION_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Intake.RecommendationLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Intake.RecommendationLimit },
	},
	{
		key: "log.level", typ: kString, env: "INTAKE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
