package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const apiTokenAccount = "api_token"

// GetAPIToken returns the bearer token protecting the management API. The
// token lives in the platform secret store; a random one is generated and
// stored on first use. INTAKE_API_TOKEN overrides the stored token.
func GetAPIToken() (string, error) {
	if tok := strings.TrimSpace(os.Getenv("INTAKE_API_TOKEN")); tok != "" {
		return tok, nil
	}

	if out, err := keychainExec(keychainService, apiTokenAccount); err == nil {
		if tok := strings.TrimSpace(string(out)); tok != "" {
			return tok, nil
		}
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := SetSecret(keychainService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
