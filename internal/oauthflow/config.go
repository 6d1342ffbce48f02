// Package oauthflow drives the OAuth 2.0 authorization-code exchange used to
// connect the bot to a third-party provider (Spotify, YouTube, Twitch). It is
// consumed by the credential supervisor, not by end-user login.
package oauthflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ProviderConfig describes how to drive the authorization-code flow for a
// single remote provider.
type ProviderConfig struct {
	Name         string            `json:"name"`
	DisplayName  string            `json:"displayName"`
	AuthorizeURL string            `json:"authorizeURL"`
	TokenURL     string            `json:"tokenURL"`
	ClientID     string            `json:"clientID"`
	ClientSecret string            `json:"clientSecret"`
	RedirectURL  string            `json:"redirectURL"`
	Scopes       []string          `json:"scopes"`
	AuthParams   map[string]string `json:"authParams"`
}

// ParseProviders decodes the JSON payload into provider configurations. The
// payload may either be a JSON array or an object containing a "providers"
// array.
func ParseProviders(data []byte) ([]ProviderConfig, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var wrapper struct {
			Providers []ProviderConfig `json:"providers"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapper); err != nil {
			return nil, fmt.Errorf("decode oauth providers: %w", err)
		}
		return sanitizeProviders(wrapper.Providers), nil
	}
	var providers []ProviderConfig
	if err := json.Unmarshal([]byte(trimmed), &providers); err != nil {
		return nil, fmt.Errorf("decode oauth providers: %w", err)
	}
	return sanitizeProviders(providers), nil
}

// LoadProviders loads provider configuration from a JSON string or file path.
func LoadProviders(source string) ([]ProviderConfig, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return ParseProviders([]byte(trimmed))
	}
	content, err := os.ReadFile(trimmed)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read oauth provider file %s: %w", trimmed, err)
		}
		return nil, fmt.Errorf("read oauth provider config %s: %w", trimmed, err)
	}
	return ParseProviders(content)
}

func sanitizeProviders(items []ProviderConfig) []ProviderConfig {
	sanitized := make([]ProviderConfig, 0, len(items))
	for _, item := range items {
		item.Name = strings.TrimSpace(strings.ToLower(item.Name))
		item.DisplayName = strings.TrimSpace(item.DisplayName)
		item.AuthorizeURL = strings.TrimSpace(item.AuthorizeURL)
		item.TokenURL = strings.TrimSpace(item.TokenURL)
		item.ClientID = strings.TrimSpace(item.ClientID)
		item.ClientSecret = strings.TrimSpace(item.ClientSecret)
		item.RedirectURL = strings.TrimSpace(item.RedirectURL)
		if item.AuthParams == nil {
			item.AuthParams = map[string]string{}
		}
		scopes := make([]string, 0, len(item.Scopes))
		for _, scope := range item.Scopes {
			trimmed := strings.TrimSpace(scope)
			if trimmed == "" {
				continue
			}
			scopes = append(scopes, trimmed)
		}
		item.Scopes = scopes
		if item.Name != "" {
			sanitized = append(sanitized, item)
		}
	}
	return sanitized
}

// OverrideCredentials applies runtime overrides for client identifiers,
// secrets, and redirect URLs. Keys are matched case-insensitively.
func OverrideCredentials(configs []ProviderConfig, clientIDs, secrets, redirects map[string]string) []ProviderConfig {
	if len(configs) == 0 {
		return configs
	}
	for i := range configs {
		key := configs[i].Name
		if id, ok := lookupOverride(clientIDs, key); ok {
			configs[i].ClientID = id
		}
		if secret, ok := lookupOverride(secrets, key); ok {
			configs[i].ClientSecret = secret
		}
		if redirect, ok := lookupOverride(redirects, key); ok {
			configs[i].RedirectURL = redirect
		}
	}
	return configs
}

func lookupOverride(values map[string]string, key string) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return "", false
	}
	if value, ok := values[normalized]; ok {
		return value, true
	}
	return "", false
}

// Validate ensures the provider configuration contains the required fields.
func (cfg ProviderConfig) Validate() error {
	if cfg.Name == "" {
		return errors.New("provider name is required")
	}
	if cfg.AuthorizeURL == "" {
		return fmt.Errorf("authorizeURL required for provider %s", cfg.Name)
	}
	if cfg.TokenURL == "" {
		return fmt.Errorf("tokenURL required for provider %s", cfg.Name)
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("clientID required for provider %s", cfg.Name)
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("clientSecret required for provider %s", cfg.Name)
	}
	if cfg.RedirectURL == "" {
		return fmt.Errorf("redirectURL required for provider %s", cfg.Name)
	}
	return nil
}

// ResolveConfigSources combines multiple configuration sources, preferring
// later entries when duplicates exist.
func ResolveConfigSources(sources ...string) ([]ProviderConfig, error) {
	var providers []ProviderConfig
	for _, source := range sources {
		trimmed := strings.TrimSpace(source)
		if trimmed == "" {
			continue
		}
		loaded, err := LoadProviders(trimmed)
		if err != nil {
			return nil, err
		}
		for _, cfg := range loaded {
			replaced := false
			for i := range providers {
				if providers[i].Name == cfg.Name {
					providers[i] = cfg
					replaced = true
					break
				}
			}
			if !replaced {
				providers = append(providers, cfg)
			}
		}
	}
	return providers, nil
}

// ResolveConfigFromDir reads a default providers.json file from the directory
// when present. This is primarily used by tests.
func ResolveConfigFromDir(dir string) ([]ProviderConfig, error) {
	path := filepath.Join(dir, "providers.json")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat providers.json: %w", err)
	}
	return LoadProviders(path)
}
