package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tokenFileName = "token"

// LoadOrCreateToken reads the bus token from configDir/token, or generates
// and persists a new 256-bit hex-encoded token if the file is missing or empty.
func LoadOrCreateToken(configDir string) (string, error) {
	path := filepath.Join(configDir, tokenFileName)

	data, err := os.ReadFile(path)
	if token := strings.TrimSpace(string(data)); err == nil && token != "" {
		return token, nil
	}

	token, err := generateToken()
	if err != nil {
		return "", err
	}

	if err := writeToken(configDir, path, token); err != nil {
		return "", err
	}

	return token, nil
}

// RotateToken generates a new token, replacing the existing one.
// Connected clients keep their session until they reconnect.
func RotateToken(configDir string) (string, error) {
	path := filepath.Join(configDir, tokenFileName)

	token, err := generateToken()
	if err != nil {
		return "", err
	}

	if err := writeToken(configDir, path, token); err != nil {
		return "", err
	}

	return token, nil
}

// ResolveToken prefers an explicitly configured token and falls back to
// the persisted one.
func ResolveToken(configured, configDir string) (string, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured, nil
	}
	return LoadOrCreateToken(configDir)
}

// TokenMatches compares tokens in constant time.
func TokenMatches(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func writeToken(configDir, path, token string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token), 0600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}
