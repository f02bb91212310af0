package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// StatusVocabulary lists the raw provider status values that map to each terminal outcome.
// Anything not listed is treated as still pending.
type StatusVocabulary struct {
	Completed []string `yaml:"completed"`
	Failed    []string `yaml:"failed"`
	Cancelled []string `yaml:"cancelled"`
}

// ProviderConfig describes one payment gateway.
type ProviderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	CreatePath  string `yaml:"create_path"`
	StatusPath  string `yaml:"status_path"`
	CallbackURL string `yaml:"callback_url"`
	RedirectURL string `yaml:"redirect_url"`
	// WebhookSecret signs notifications (hex HMAC-SHA256 of the body). Without
	// one, every notification is confirmed with the gateway before it is applied.
	WebhookSecret string            `yaml:"webhook_secret"`
	Statuses      *StatusVocabulary `yaml:"statuses,omitempty"`
}

// ProviderFile is the root of providers.yaml
type ProviderFile struct {
	DefaultStatuses StatusVocabulary          `yaml:"default_statuses"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
}

// DefaultStatusVocabulary is what gateways have been observed to send.
func DefaultStatusVocabulary() StatusVocabulary {
	return StatusVocabulary{
		Completed: []string{"200", "success", "completed", "paid", "captured"},
		Failed:    []string{"failed", "failure", "error", "declined"},
		Cancelled: []string{"cancelled", "canceled", "cancel", "expired"},
	}
}

// DefaultProviders is used when no providers file is present.
func DefaultProviders() *ProviderFile {
	return &ProviderFile{
		DefaultStatuses: DefaultStatusVocabulary(),
		Providers:       map[string]ProviderConfig{},
	}
}

// LoadProviders reads the YAML file at path. ${VAR} references are expanded
// from the environment so API keys stay out of the file.
func LoadProviders(path string) (*ProviderFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseProviders([]byte(os.ExpandEnv(string(raw))))
}

// ParseProviders decodes providers YAML and fills in defaults.
func ParseProviders(raw []byte) (*ProviderFile, error) {
	var file ProviderFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse providers: %w", err)
	}
	if file.DefaultStatuses.empty() {
		file.DefaultStatuses = DefaultStatusVocabulary()
	}
	normalized := make(map[string]ProviderConfig, len(file.Providers))
	for name, p := range file.Providers {
		normalized[strings.ToLower(strings.TrimSpace(name))] = p
	}
	file.Providers = normalized
	return &file, nil
}

// VocabularyFor returns the provider's own vocabulary or the default one.
func (f *ProviderFile) VocabularyFor(provider string) StatusVocabulary {
	if f == nil {
		return DefaultStatusVocabulary()
	}
	if p, ok := f.Providers[strings.ToLower(provider)]; ok && p.Statuses != nil && !p.Statuses.empty() {
		return *p.Statuses
	}
	return f.DefaultStatuses
}

func (v StatusVocabulary) empty() bool {
	return len(v.Completed) == 0 && len(v.Failed) == 0 && len(v.Cancelled) == 0
}
