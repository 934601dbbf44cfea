// Package config loads daemon runtime configuration from environment
// variables, optionally backed by a HashiCorp Vault KV v2 secret — the same
// two-step dance every teacher main.go performs, relaxed so the daemon can
// still start on a bare developer laptop with no Vault running.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/vault/api"
)

// SecretManager wraps the Vault API client for reading secrets.
type SecretManager struct {
	client *api.Client
}

// NewSecretManager creates a Vault client pointed at the given address and
// authenticated with the provided token.
func NewSecretManager(address, token string) (*SecretManager, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client initialization failed: %w", err)
	}
	client.SetToken(token)

	return &SecretManager{client: client}, nil
}

// GetSecret reads a secret at the given path and returns the raw data map.
// For KV v2 backends the caller must unwrap the nested "data" key.
func (s *SecretManager) GetSecret(path string) (map[string]interface{}, error) {
	secret, err := s.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no data found at %s", path)
	}
	return secret.Data, nil
}

// GetKV2 is a convenience wrapper that reads from a KV v2 backend and
// returns the inner "data" map, unwrapping the v2 envelope automatically.
func (s *SecretManager) GetKV2(path string) (map[string]interface{}, error) {
	raw, err := s.GetSecret(path)
	if err != nil {
		return nil, err
	}
	data, ok := raw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected data format at %s", path)
	}
	return data, nil
}

// Options is the plain configuration struct the core reads from. Mapping
// flags/env vars onto it is delegated outside the core per spec.md §1.
type Options struct {
	ServerURL     string
	DeviceID      string
	DeviceName    string
	Platform      string
	Version       string
	LogLevel      string
	DirectoryAddr string
	DirectoryPass string
	KeyPrefix     string

	TLSCACertPath     string
	TLSClientCertPath string
	TLSClientKeyPath  string
	TLSPKCS12Path     string
	TLSPKCS12Password string
	TLSInsecure       bool
}

// stringFromEnvOrSecret prefers a Vault secret value (when present) over the
// fallback env var, matching the load order every teacher main.go uses when
// Vault is reachable.
func stringFromEnvOrSecret(secrets map[string]interface{}, secretKey, envKey, fallback string) string {
	if secrets != nil {
		if v, ok := secrets[secretKey].(string); ok && v != "" {
			return v
		}
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return fallback
}

// Load builds Options from environment variables, optionally enriched by a
// Vault KV v2 secret when VAULT_ADDR is set. Unlike the teacher's main.go
// pattern (Fatal on missing Vault), a missing or unreachable Vault here is
// not fatal — the daemon is host-local and must be able to start without a
// secrets manager.
func Load() (Options, error) {
	var secrets map[string]interface{}

	if vaultAddr := os.Getenv("VAULT_ADDR"); vaultAddr != "" {
		vaultToken := os.Getenv("VAULT_TOKEN")
		secretPath := os.Getenv("VAULT_SECRET_PATH")
		if secretPath == "" {
			secretPath = "secret/data/vlaude/daemon"
		}

		mgr, err := NewSecretManager(vaultAddr, vaultToken)
		if err == nil {
			if data, err := mgr.GetKV2(secretPath); err == nil {
				secrets = data
			}
		}
	}

	opts := Options{
		ServerURL:     stringFromEnvOrSecret(secrets, "SERVER_URL", "VLAUDE_SERVER_URL", "https://localhost:10005"),
		DeviceID:      stringFromEnvOrSecret(secrets, "DEVICE_ID", "VLAUDE_DEVICE_ID", ""),
		DeviceName:    stringFromEnvOrSecret(secrets, "DEVICE_NAME", "VLAUDE_DEVICE_NAME", ""),
		Platform:      stringFromEnvOrSecret(secrets, "PLATFORM", "VLAUDE_PLATFORM", ""),
		Version:       stringFromEnvOrSecret(secrets, "VERSION", "VLAUDE_VERSION", "dev"),
		LogLevel:      stringFromEnvOrSecret(secrets, "LOG_LEVEL", "VLAUDE_LOG_LEVEL", "info"),
		DirectoryAddr: stringFromEnvOrSecret(secrets, "REDIS_URL", "VLAUDE_REDIS_URL", ""),
		DirectoryPass: stringFromEnvOrSecret(secrets, "REDIS_PASSWORD", "VLAUDE_REDIS_PASSWORD", ""),
		KeyPrefix:     stringFromEnvOrSecret(secrets, "KEY_PREFIX", "VLAUDE_KEY_PREFIX", "vlaude:"),

		TLSCACertPath:     stringFromEnvOrSecret(secrets, "TLS_CA_CERT", "VLAUDE_TLS_CA_CERT", ""),
		TLSClientCertPath: stringFromEnvOrSecret(secrets, "TLS_CLIENT_CERT", "VLAUDE_TLS_CLIENT_CERT", ""),
		TLSClientKeyPath:  stringFromEnvOrSecret(secrets, "TLS_CLIENT_KEY", "VLAUDE_TLS_CLIENT_KEY", ""),
		TLSPKCS12Path:     stringFromEnvOrSecret(secrets, "TLS_PKCS12", "VLAUDE_TLS_PKCS12", ""),
		TLSPKCS12Password: stringFromEnvOrSecret(secrets, "TLS_PKCS12_PASSWORD", "VLAUDE_TLS_PKCS12_PASSWORD", ""),
		TLSInsecure:       os.Getenv("VLAUDE_TLS_INSECURE") == "true",
	}

	return opts, nil
}
