// Command toot2mail polls Mastodon accounts and hashtags and emails every
// new status exactly once. A single invocation runs one cycle; -loop keeps
// polling on an interval. Concurrent runs are excluded via a PID lock file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"toot2mail/internal/config"
	"toot2mail/internal/lockfile"
	"toot2mail/internal/mailer"
	"toot2mail/internal/mastodon"
	"toot2mail/internal/pipeline"
	"toot2mail/internal/storage"
	"toot2mail/internal/transform"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the configuration file")
		statusRef  = flag.String("toot", "", "process a single status, given as <id>@<instance>")
		tagRef     = flag.String("tag", "", "process a single hashtag, given as <tag>@<instance>")
		userRef    = flag.String("user", "", "process a single account, given as <handle>@<instance>")
		loop       = flag.Bool("loop", false, "keep running, polling at settings.poll_interval")
	)
	flag.Parse()

	if count(*statusRef, *tagRef, *userRef) > 1 {
		fmt.Fprintln(os.Stderr, "-toot, -tag and -user are mutually exclusive")
		os.Exit(2)
	}

	cfg, err := config.Load(config.Path(*configPath))
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Settings.LogLevel)

	for _, p := range []string{cfg.Settings.StateDBPath, cfg.Settings.LockFilePath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				log.Error("create data directory", "path", dir, "error", err)
				os.Exit(1)
			}
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log, *statusRef, *tagRef, *userRef, *loop); err != nil {
		if errors.Is(err, lockfile.ErrLockHeld) {
			log.Info("already running, nothing to do", "error", err)
			return
		}
		log.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, statusRef, tagRef, userRef string, loop bool) error {
	replacer, err := transform.ReplacerFromRules(cfg.ContentReplacements)
	if err != nil {
		return err
	}

	httpClient, err := newHTTPClient(cfg.Settings.Proxy, cfg.Settings.Timeout.Std())
	if err != nil {
		return err
	}

	notifier, err := mailer.New(mailer.Config{
		From:             cfg.Settings.MailFrom,
		Recipient:        cfg.Settings.MailRecipient,
		Host:             cfg.Settings.MailServerHostname,
		Port:             cfg.Settings.MailServerPort,
		MaxSubjectLength: cfg.Settings.MailMaximumSubjectLength,
		Timeout:          cfg.Settings.Timeout.Std(),
	})
	if err != nil {
		return err
	}

	cycle := func(ctx context.Context) error {
		lock, err := lockfile.Acquire(cfg.Settings.LockFilePath)
		if err != nil {
			return err
		}
		defer lock.Release()

		store, err := storage.NewSQLite(cfg.Settings.StateDBPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		p := pipeline.New(cfg, store, mastodon.New(httpClient), replacer, notifier, log)
		switch {
		case statusRef != "":
			return p.RunStatus(ctx, statusRef)
		case tagRef != "":
			return p.RunTag(ctx, tagRef)
		case userRef != "":
			return p.RunAccount(ctx, userRef)
		default:
			return p.Run(ctx)
		}
	}

	log.Info("starting")
	defer log.Info("finished")

	if err := cycle(ctx); err != nil || !loop {
		return err
	}

	ticker := time.NewTicker(cfg.Settings.PollInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := cycle(ctx); err != nil {
				if errors.Is(err, lockfile.ErrLockHeld) {
					log.Info("cycle skipped, lock held elsewhere")
					continue
				}
				return err
			}
		}
	}
}

func newHTTPClient(proxy string, timeout time.Duration) (*http.Client, error) {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		transport = &http.Transport{}
	}
	transport = transport.Clone()
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func count(refs ...string) int {
	n := 0
	for _, r := range refs {
		if r != "" {
			n++
		}
	}
	return n
}
