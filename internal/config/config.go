// Package config handles application configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"toot2mail/internal/model"
)

// DefaultPath is used when neither the -config flag nor the
// TOOT2MAIL_CONFIG environment variable is set.
const DefaultPath = "toot2mail.yaml"

// Duration wraps time.Duration so values like "60s" parse from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration %q must not be negative", value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Settings holds the scalar options of the [settings] section.
type Settings struct {
	Proxy                    string   `yaml:"proxy"`
	Timeout                  Duration `yaml:"timeout"`
	TimelineLimit            int      `yaml:"timeline_limit"`
	StateDBPath              string   `yaml:"state_db_path"`
	LockFilePath             string   `yaml:"lock_file_path"`
	ImageMaximumWidth        int      `yaml:"image_maximum_width"`
	ImageMaximumHeight       int      `yaml:"image_maximum_height"`
	MailMaximumSubjectLength int      `yaml:"mail_maximum_subject_length"`
	MailFrom                 string   `yaml:"mail_from"`
	MailRecipient            string   `yaml:"mail_recipient"`
	MailServerHostname       string   `yaml:"mail_server_hostname"`
	MailServerPort           int      `yaml:"mail_server_port"`
	SeedFirstRun             *bool    `yaml:"seed_first_run"`
	SeenRetentionDays        int      `yaml:"seen_retention_days"`
	SourcePause              Duration `yaml:"source_pause"`
	PollInterval             Duration `yaml:"poll_interval"`
	LogLevel                 string   `yaml:"log_level"`
}

// Rule is one ordered content replacement: a regular expression pattern and
// its replacement template (capture group references allowed).
type Rule struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// AccountConfig is one entry of the accounts list.
type AccountConfig struct {
	Name  string   `yaml:"name"` // handle@instance
	Flags []string `yaml:"flags"`
}

// HashtagConfig is one entry of the hashtags list.
type HashtagConfig struct {
	Name string `yaml:"name"` // tag@instance
}

// Config holds the full application configuration.
type Config struct {
	Settings            Settings        `yaml:"settings"`
	ContentReplacements []Rule          `yaml:"content_replacements"`
	Accounts            []AccountConfig `yaml:"accounts"`
	Hashtags            []HashtagConfig `yaml:"hashtags"`
}

// Path resolves the configuration file location: explicit flag value first,
// then the TOOT2MAIL_CONFIG environment variable, then DefaultPath.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("TOOT2MAIL_CONFIG"); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := defaults()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Settings: Settings{
			Timeout:                  Duration(60 * time.Second),
			TimelineLimit:            20,
			StateDBPath:              "data/toot2mail.db",
			LockFilePath:             "data/toot2mail.lock",
			MailMaximumSubjectLength: 75,
			MailServerHostname:       "localhost",
			MailServerPort:           25,
			SourcePause:              Duration(3 * time.Second),
			PollInterval:             Duration(15 * time.Minute),
			LogLevel:                 "info",
		},
	}
}

func (c *Config) validate() error {
	s := &c.Settings
	if s.MailFrom == "" {
		return fmt.Errorf("settings.mail_from is required")
	}
	if s.MailRecipient == "" {
		return fmt.Errorf("settings.mail_recipient is required")
	}
	if s.TimelineLimit <= 0 {
		return fmt.Errorf("settings.timeline_limit must be positive")
	}
	if s.MailMaximumSubjectLength < 2 {
		return fmt.Errorf("settings.mail_maximum_subject_length must be at least 2")
	}
	if (s.ImageMaximumWidth == 0) != (s.ImageMaximumHeight == 0) {
		return fmt.Errorf("settings.image_maximum_width and image_maximum_height must be set together")
	}
	if s.ImageMaximumWidth < 0 || s.ImageMaximumHeight < 0 {
		return fmt.Errorf("image maximum dimensions must not be negative")
	}
	if s.SeenRetentionDays < 0 {
		return fmt.Errorf("settings.seen_retention_days must not be negative")
	}
	if len(c.Accounts) == 0 && len(c.Hashtags) == 0 {
		return fmt.Errorf("no accounts or hashtags configured")
	}
	for i, a := range c.Accounts {
		if err := validateRef(a.Name); err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
		for _, f := range a.Flags {
			if f != "noboosts" && f != "noreplies" {
				return fmt.Errorf("accounts[%d]: unknown flag %q", i, f)
			}
		}
	}
	for i, h := range c.Hashtags {
		if err := validateRef(h.Name); err != nil {
			return fmt.Errorf("hashtags[%d]: %w", i, err)
		}
	}
	return nil
}

func validateRef(ref string) error {
	name, instance, ok := strings.Cut(ref, "@")
	if !ok || name == "" || instance == "" {
		return fmt.Errorf("%q must have the form name@instance", ref)
	}
	return nil
}

// SeedFirstRun reports the first-run seeding policy (default true: seed the
// seen set on the first fetch of a source instead of notifying the backlog).
func (c *Config) SeedFirstRun() bool {
	if c.Settings.SeedFirstRun == nil {
		return true
	}
	return *c.Settings.SeedFirstRun
}

// Sources returns all configured sources in configuration order,
// accounts first.
func (c *Config) Sources() []model.Source {
	sources := make([]model.Source, 0, len(c.Accounts)+len(c.Hashtags))
	for _, a := range c.Accounts {
		name, instance, _ := strings.Cut(a.Name, "@")
		src := model.Source{
			Kind:     model.KindAccount,
			Name:     strings.ToLower(name),
			Instance: strings.ToLower(instance),
		}
		for _, f := range a.Flags {
			switch f {
			case "noboosts":
				src.ExcludeBoosts = true
			case "noreplies":
				src.ExcludeReplies = true
			}
		}
		sources = append(sources, src)
	}
	for _, h := range c.Hashtags {
		name, instance, _ := strings.Cut(h.Name, "@")
		sources = append(sources, model.Source{
			Kind:     model.KindHashtag,
			Name:     strings.ToLower(name),
			Instance: strings.ToLower(instance),
		})
	}
	return sources
}
