package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"safeline/internal/access"
)

// Config models safeline.yml.
type Config struct {
	Service struct {
		Name string `yaml:"name"`
	} `yaml:"service"`
	Eligibility struct {
		Verify  []EligibilityRule `yaml:"verify"`
		Approve []EligibilityRule `yaml:"approve"`
	} `yaml:"eligibility"`
	Permits struct {
		NumberPrefix      string `yaml:"number_prefix"`
		DefaultValidHours int    `yaml:"default_valid_hours"`
		MaxExtensionHours int    `yaml:"max_extension_hours"`
	} `yaml:"permits"`
	Notifications struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"notifications"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// EligibilityRule is one row of a sign-off dominance table. An empty
// creator grade matches every grade of the creator org.
type EligibilityRule struct {
	ActorOrg     string `yaml:"actor_org"`
	ActorGrade   string `yaml:"actor_grade"`
	CreatorOrg   string `yaml:"creator_org"`
	CreatorGrade string `yaml:"creator_grade,omitempty"`
}

type WebhookConfig struct {
	URL     string   `yaml:"url"`
	Events  []string `yaml:"events,omitempty"`
	Enabled *bool    `yaml:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run sfl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Permits.NumberPrefix == "" {
		return fmt.Errorf("config.permits.number_prefix is required")
	}
	if c.Permits.DefaultValidHours <= 0 {
		return fmt.Errorf("config.permits.default_valid_hours must be positive")
	}
	if c.Permits.MaxExtensionHours < 0 {
		return fmt.Errorf("config.permits.max_extension_hours must not be negative")
	}
	for i, r := range c.Eligibility.Verify {
		if err := validateRule(r); err != nil {
			return fmt.Errorf("eligibility.verify[%d]: %w", i, err)
		}
	}
	for i, r := range c.Eligibility.Approve {
		if err := validateRule(r); err != nil {
			return fmt.Errorf("eligibility.approve[%d]: %w", i, err)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	return nil
}

func validateRule(r EligibilityRule) error {
	if _, err := access.ParseOrgType(r.ActorOrg); err != nil {
		return fmt.Errorf("actor_org: %w", err)
	}
	if _, err := access.ParseGrade(r.ActorGrade); err != nil {
		return fmt.Errorf("actor_grade: %w", err)
	}
	if _, err := access.ParseOrgType(r.CreatorOrg); err != nil {
		return fmt.Errorf("creator_org: %w", err)
	}
	if r.CreatorGrade != "" {
		if _, err := access.ParseGrade(r.CreatorGrade); err != nil {
			return fmt.Errorf("creator_grade: %w", err)
		}
	}
	return nil
}

// AccessTables converts the configured eligibility rules into predicate
// tables. Empty sections fall back to the built-in tables so an absent
// config never silently allows nothing.
func (c *Config) AccessTables() access.Tables {
	t := access.DefaultTables()
	if len(c.Eligibility.Verify) > 0 {
		t.Verify = toRuleTable(c.Eligibility.Verify)
	}
	if len(c.Eligibility.Approve) > 0 {
		t.Approve = toRuleTable(c.Eligibility.Approve)
	}
	return t
}

func toRuleTable(rules []EligibilityRule) access.RuleTable {
	out := make(access.RuleTable, 0, len(rules))
	for _, r := range rules {
		out = append(out, access.Rule{
			Actor:   access.OrgGrade{Org: access.OrgType(r.ActorOrg), Grade: access.Grade(r.ActorGrade)},
			Creator: access.OrgGrade{Org: access.OrgType(r.CreatorOrg), Grade: access.Grade(r.CreatorGrade)},
		})
	}
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "safeline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `service:
  name: safeline

# Sign-off dominance tables. These must match the tables enforced by any
# upstream system consuming this API; keep them in one place.
eligibility:
  verify:
    - {actor_org: epc, actor_grade: C, creator_org: contractor}
    - {actor_org: epc, actor_grade: B, creator_org: epc, creator_grade: C}
    - {actor_org: epc, actor_grade: A, creator_org: epc, creator_grade: B}
    - {actor_org: client, actor_grade: B, creator_org: client, creator_grade: C}
    - {actor_org: client, actor_grade: A, creator_org: client, creator_grade: B}
  approve:
    - {actor_org: client, actor_grade: C, creator_org: contractor}
    - {actor_org: client, actor_grade: B, creator_org: epc}
    - {actor_org: client, actor_grade: B, creator_org: client, creator_grade: C}
    - {actor_org: client, actor_grade: A, creator_org: client, creator_grade: B}

permits:
  number_prefix: PTW
  default_valid_hours: 8
  max_extension_hours: 72

notifications:
  enabled: true

webhooks: []
`
