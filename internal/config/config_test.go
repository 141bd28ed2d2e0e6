package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"toot2mail/internal/model"
)

const sampleConfig = `
settings:
  timeout: 30s
  timeline_limit: 40
  state_db_path: /var/lib/toot2mail/state.db
  lock_file_path: /run/toot2mail.lock
  image_maximum_width: 600
  image_maximum_height: 350
  mail_maximum_subject_length: 75
  mail_from: toot2mail@example.org
  mail_recipient: inbox@example.org
  mail_server_hostname: relay.example.org
  mail_server_port: 587
  seen_retention_days: 90
  source_pause: 5s
  log_level: debug
content_replacements:
  - pattern: 'https://youtube\.com/'
    replacement: 'https://alt/'
  - pattern: 'https://twitter\.com/'
    replacement: 'https://nitter/'
accounts:
  - name: Alice@Mastodon.Example
    flags: [noboosts, noreplies]
  - name: bob@other.example
hashtags:
  - name: golang@mastodon.example
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toot2mail.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := cfg.Settings.Timeout.Std(); got != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", got)
	}
	if cfg.Settings.TimelineLimit != 40 {
		t.Errorf("timeline_limit = %d, want 40", cfg.Settings.TimelineLimit)
	}
	if cfg.Settings.MailServerPort != 587 {
		t.Errorf("mail_server_port = %d, want 587", cfg.Settings.MailServerPort)
	}
	if len(cfg.ContentReplacements) != 2 {
		t.Fatalf("replacements = %d, want 2", len(cfg.ContentReplacements))
	}
	if cfg.ContentReplacements[0].Pattern != `https://youtube\.com/` {
		t.Errorf("first rule pattern = %q", cfg.ContentReplacements[0].Pattern)
	}
	if !cfg.SeedFirstRun() {
		t.Error("seed_first_run should default to true")
	}

	want := []model.Source{
		{Kind: model.KindAccount, Name: "alice", Instance: "mastodon.example", ExcludeBoosts: true, ExcludeReplies: true},
		{Kind: model.KindAccount, Name: "bob", Instance: "other.example"},
		{Kind: model.KindHashtag, Name: "golang", Instance: "mastodon.example"},
	}
	if diff := cmp.Diff(want, cfg.Sources()); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDefaults(t *testing.T) {
	minimal := `
settings:
  mail_from: a@example.org
  mail_recipient: b@example.org
accounts:
  - name: alice@mastodon.example
`
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := cfg.Settings.Timeout.Std(); got != 60*time.Second {
		t.Errorf("default timeout = %v, want 60s", got)
	}
	if cfg.Settings.TimelineLimit != 20 {
		t.Errorf("default timeline_limit = %d, want 20", cfg.Settings.TimelineLimit)
	}
	if cfg.Settings.MailMaximumSubjectLength != 75 {
		t.Errorf("default subject length = %d, want 75", cfg.Settings.MailMaximumSubjectLength)
	}
	if cfg.Settings.MailServerHostname != "localhost" || cfg.Settings.MailServerPort != 25 {
		t.Errorf("default mail server = %s:%d", cfg.Settings.MailServerHostname, cfg.Settings.MailServerPort)
	}
	if cfg.Settings.LogLevel != "info" {
		t.Errorf("default log level = %q", cfg.Settings.LogLevel)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing mail_from",
			content: `
settings:
  mail_recipient: b@example.org
accounts:
  - name: alice@mastodon.example
`,
			wantErr: "mail_from",
		},
		{
			name: "no sources",
			content: `
settings:
  mail_from: a@example.org
  mail_recipient: b@example.org
`,
			wantErr: "no accounts or hashtags",
		},
		{
			name: "malformed account reference",
			content: `
settings:
  mail_from: a@example.org
  mail_recipient: b@example.org
accounts:
  - name: alice
`,
			wantErr: "name@instance",
		},
		{
			name: "unknown flag",
			content: `
settings:
  mail_from: a@example.org
  mail_recipient: b@example.org
accounts:
  - name: alice@mastodon.example
    flags: [nopictures]
`,
			wantErr: "unknown flag",
		},
		{
			name: "image bound half configured",
			content: `
settings:
  mail_from: a@example.org
  mail_recipient: b@example.org
  image_maximum_width: 600
accounts:
  - name: alice@mastodon.example
`,
			wantErr: "must be set together",
		},
		{
			name: "negative duration",
			content: `
settings:
  mail_from: a@example.org
  mail_recipient: b@example.org
  timeout: -5s
accounts:
  - name: alice@mastodon.example
`,
			wantErr: "must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSeedFirstRunExplicitFalse(t *testing.T) {
	content := `
settings:
  mail_from: a@example.org
  mail_recipient: b@example.org
  seed_first_run: false
accounts:
  - name: alice@mastodon.example
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SeedFirstRun() {
		t.Error("seed_first_run = true, want false")
	}
}

func TestPath(t *testing.T) {
	t.Setenv("TOOT2MAIL_CONFIG", "/etc/toot2mail.yaml")

	if got := Path("explicit.yaml"); got != "explicit.yaml" {
		t.Errorf("flag value not preferred: %q", got)
	}
	if got := Path(""); got != "/etc/toot2mail.yaml" {
		t.Errorf("env value not used: %q", got)
	}

	t.Setenv("TOOT2MAIL_CONFIG", "")
	if got := Path(""); got != DefaultPath {
		t.Errorf("default not used: %q", got)
	}
}
