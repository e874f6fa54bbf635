package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SecretsConfig holds API keys loaded from secrets.yaml
type SecretsConfig struct {
	Providers map[string]struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"providers"`
}

// Dir returns the path to ~/.phishdrill
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".phishdrill"), nil
}

// EnsureDir creates ~/.phishdrill and subdirectories if they don't exist
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs", "data"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// loadSecrets applies API keys from secrets.yaml, matched by provider name.
func loadSecrets(dir string, cfg *Config) error {
	secrets, err := readSecrets(dir)
	if err != nil {
		return err
	}
	for _, p := range cfg.LLM.Providers {
		if secret, ok := secrets.Providers[p.ID()]; ok {
			p.APIKey = secret.APIKey
		}
	}
	return nil
}

func readSecrets(dir string) (*SecretsConfig, error) {
	var secrets SecretsConfig
	secretsPath := filepath.Join(dir, "secrets.yaml")

	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		return &secrets, nil
	}

	data, err := os.ReadFile(secretsPath)
	if err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parse secrets: %w", err)
	}
	return &secrets, nil
}

// LoadSecrets returns the API keys in ~/.phishdrill/secrets.yaml by
// provider name.
func LoadSecrets() (map[string]string, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	secrets, err := readSecrets(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(secrets.Providers))
	for name, s := range secrets.Providers {
		out[name] = s.APIKey
	}
	return out, nil
}

// SaveSecrets saves API keys to ~/.phishdrill/secrets.yaml
func SaveSecrets(secrets map[string]string) error {
	dir, err := EnsureDir()
	if err != nil {
		return err
	}

	secretsCfg := SecretsConfig{
		Providers: make(map[string]struct {
			APIKey string `yaml:"api_key"`
		}),
	}
	for name, key := range secrets {
		secretsCfg.Providers[name] = struct {
			APIKey string `yaml:"api_key"`
		}{APIKey: key}
	}

	data, err := yaml.Marshal(secretsCfg)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	// owner read/write only
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	return nil
}
