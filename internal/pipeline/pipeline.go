// Package pipeline orchestrates one run: fetch each configured source,
// select unseen statuses, transform their content, and hand them to the
// notifier, recording every successful delivery in the state store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"toot2mail/internal/config"
	"toot2mail/internal/dedup"
	"toot2mail/internal/mastodon"
	"toot2mail/internal/model"
	"toot2mail/internal/storage"
	"toot2mail/internal/transform"
)

// Notifier delivers one notification per post.
type Notifier interface {
	Notify(ctx context.Context, post *model.Post) error
}

// Pipeline processes all configured sources of a single run.
type Pipeline struct {
	cfg      *config.Config
	store    storage.Storage
	client   *mastodon.Client
	replacer *transform.Replacer
	notifier Notifier
	log      *slog.Logger
}

// New assembles a Pipeline from its collaborators.
func New(cfg *config.Config, store storage.Storage, client *mastodon.Client,
	replacer *transform.Replacer, notifier Notifier, log *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    store,
		client:   client,
		replacer: replacer,
		notifier: notifier,
		log:      log,
	}
}

// Run processes every configured source in order. Per-source failures are
// logged and skipped; only state store failures abort the run.
func (p *Pipeline) Run(ctx context.Context) error {
	for i, src := range p.cfg.Sources() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := p.pause(ctx); err != nil {
				return err
			}
		}
		if err := p.ProcessSource(ctx, src); err != nil {
			return err
		}
	}
	return nil
}

// ProcessSource runs the fetch-dedup-transform-notify cycle for one source.
// A fetch failure skips the source leaving its seen set untouched; a
// delivery failure skips just that post without marking it seen. The
// returned error is always a state store failure and fatal to the run.
func (p *Pipeline) ProcessSource(ctx context.Context, src model.Source) error {
	log := p.log.With("source", src.Key())
	log.Info("processing source")

	statuses, err := p.fetch(ctx, src)
	if err != nil {
		log.Error("fetch timeline", "error", err)
		return nil
	}
	statuses = mastodon.FilterStatuses(statuses, src)

	known, err := p.store.IsKnownSource(ctx, src.Key())
	if err != nil {
		return fmt.Errorf("source %s: %w", src.Key(), err)
	}

	if !known && p.cfg.SeedFirstRun() {
		return p.seed(ctx, src, statuses, log)
	}

	seen, err := p.store.LoadSeen(ctx, src.Key())
	if err != nil {
		return fmt.Errorf("source %s: %w", src.Key(), err)
	}

	fresh := dedup.SelectNew(statuses, seen)

	notified, failed := 0, 0
	for _, status := range fresh {
		if err := ctx.Err(); err != nil {
			return err
		}
		post := p.buildPost(ctx, src, status, log)
		if err := p.notifier.Notify(ctx, post); err != nil {
			// Not marked seen: the post is retried on the next cycle.
			log.Error("deliver notification", "status_id", status.ID, "error", err)
			failed++
			continue
		}
		if err := p.store.MarkSeen(ctx, src.Key(), status.SeenKey()); err != nil {
			return fmt.Errorf("source %s: %w", src.Key(), err)
		}
		notified++
	}

	if !known {
		if err := p.store.RegisterSource(ctx, src); err != nil {
			return fmt.Errorf("source %s: %w", src.Key(), err)
		}
	}

	if err := p.prune(ctx, src, log); err != nil {
		return err
	}

	log.Info("processed source",
		"new", notified, "skipped", len(statuses)-len(fresh), "failed", failed)
	return nil
}

// seed records the current fetch window as seen without notifying, so a
// freshly configured source does not flood the mailbox with its backlog.
func (p *Pipeline) seed(ctx context.Context, src model.Source, statuses []*mastodon.Status, log *slog.Logger) error {
	for _, status := range statuses {
		if err := p.store.MarkSeen(ctx, src.Key(), status.SeenKey()); err != nil {
			return fmt.Errorf("seed %s: %w", src.Key(), err)
		}
	}
	if err := p.store.RegisterSource(ctx, src); err != nil {
		return fmt.Errorf("seed %s: %w", src.Key(), err)
	}
	log.Info("seeded first run", "seen", len(statuses))
	return nil
}

func (p *Pipeline) fetch(ctx context.Context, src model.Source) ([]*mastodon.Status, error) {
	limit := p.cfg.Settings.TimelineLimit
	if src.Kind == model.KindHashtag {
		return p.client.TagTimeline(ctx, src, limit)
	}
	return p.client.AccountStatuses(ctx, src, limit)
}

func (p *Pipeline) prune(ctx context.Context, src model.Source, log *slog.Logger) error {
	days := p.cfg.Settings.SeenRetentionDays
	if days <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	removed, err := p.store.PruneSeen(ctx, src.Key(), cutoff, p.cfg.Settings.TimelineLimit)
	if err != nil {
		return fmt.Errorf("source %s: %w", src.Key(), err)
	}
	if removed > 0 {
		log.Info("pruned seen entries", "removed", removed)
	}
	return nil
}

func (p *Pipeline) pause(ctx context.Context) error {
	d := p.cfg.Settings.SourcePause.Std()
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RunStatus processes a single status given as "id@instance", regardless of
// the configured sources. The seen set key is the author account identity.
func (p *Pipeline) RunStatus(ctx context.Context, ref string) error {
	id, instance, err := splitRef(ref)
	if err != nil {
		return err
	}
	status, err := p.client.Status(ctx, instance, id)
	if err != nil {
		return fmt.Errorf("fetch status %s: %w", ref, err)
	}

	src := model.Source{Kind: model.KindAccount, Name: status.Account.Username, Instance: instance}
	post := p.buildPost(ctx, src, status, p.log)
	post.SourceKey = status.UID()
	if err := p.notifier.Notify(ctx, post); err != nil {
		return fmt.Errorf("deliver %s: %w", ref, err)
	}
	if err := p.store.MarkSeen(ctx, status.UID(), status.SeenKey()); err != nil {
		return err
	}
	p.log.Info("processed status", "status_id", status.ID, "instance", instance)
	return nil
}

// RunAccount processes a single account given as "handle@instance" with no
// flags, regardless of the configured sources.
func (p *Pipeline) RunAccount(ctx context.Context, ref string) error {
	name, instance, err := splitRef(ref)
	if err != nil {
		return err
	}
	return p.ProcessSource(ctx, model.Source{
		Kind:     model.KindAccount,
		Name:     strings.ToLower(name),
		Instance: strings.ToLower(instance),
	})
}

// RunTag processes a single hashtag given as "tag@instance", regardless of
// the configured sources.
func (p *Pipeline) RunTag(ctx context.Context, ref string) error {
	name, instance, err := splitRef(ref)
	if err != nil {
		return err
	}
	return p.ProcessSource(ctx, model.Source{
		Kind:     model.KindHashtag,
		Name:     strings.ToLower(name),
		Instance: strings.ToLower(instance),
	})
}

func splitRef(ref string) (string, string, error) {
	name, instance, ok := strings.Cut(ref, "@")
	if !ok || name == "" || instance == "" {
		return "", "", fmt.Errorf("reference %q must have the form name@instance", ref)
	}
	return name, instance, nil
}

func mediaKind(apiType string) model.MediaKind {
	switch apiType {
	case "image":
		return model.MediaImage
	case "video":
		return model.MediaVideo
	case "gifv":
		return model.MediaGifv
	default:
		return model.MediaOther
	}
}

func filenameFromURL(rawURL string) string {
	name := path.Base(rawURL)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if name == "" || name == "." || name == "/" {
		return "attachment"
	}
	return name
}
