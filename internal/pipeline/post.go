package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"toot2mail/internal/mastodon"
	"toot2mail/internal/model"
	"toot2mail/internal/transform"
)

// buildPost normalizes a status into the Post handed to the notifier:
// body text through html-to-text and the replacement rules, media through
// download and downscaling, plus the metadata the composer renders.
// Transform failures are per-item and never abort the post.
func (p *Pipeline) buildPost(ctx context.Context, src model.Source, status *mastodon.Status, log *slog.Logger) *model.Post {
	text, err := transform.HTMLToText(status.TextSource())
	if err != nil {
		log.Warn("render status text", "status_id", status.ID, "error", err)
		text = status.TextSource()
	}
	text = p.replacer.Apply(text)

	author := status.AuthorAccount()
	post := &model.Post{
		ID:         status.ID,
		URI:        status.SeenKey(),
		URL:        status.EffectiveURL(),
		SourceKey:  src.Key(),
		CreatedAt:  status.CreatedAt,
		Text:       text,
		Boost:      status.IsBoost(),
		Reply:      status.IsReply(),
		Author:     fmt.Sprintf("%s (@%s)", author.Name(), author.Username),
		AuthorName: status.DisplayName(true),
		Username:   status.Account.Username,
		Hostname:   status.Hostname(),
	}

	if status.IsBoost() {
		post.BoostedBy = fmt.Sprintf("%s (@%s)", status.Account.Name(), status.Account.Username)
	}
	if app := status.Application; app != nil && app.Name != "" {
		post.Application = app.Name
		if app.Website != "" {
			post.Application = fmt.Sprintf("%s (%s)", app.Name, app.Website)
		}
	}

	if card := status.EffectiveCard(); card != nil && card.URL != "" {
		post.CardURL = p.replacer.Apply(card.URL)
		post.CardTitle = card.Title
		if card.Image != "" {
			if media, ok := p.fetchMedia(ctx, "card_"+filenameFromURL(card.Image), card.Image, status.Hostname(), log); ok {
				post.Media = append(post.Media, media)
			}
		}
	}

	for _, attachment := range status.EffectiveMedia() {
		kind := mediaKind(attachment.Type)
		switch kind {
		case model.MediaImage:
			if media, ok := p.fetchMedia(ctx, filenameFromURL(attachment.URL), attachment.URL, status.Hostname(), log); ok {
				media.Width = attachment.Meta.Original.Width
				media.Height = attachment.Meta.Original.Height
				post.Media = append(post.Media, media)
			}
		case model.MediaVideo, model.MediaGifv:
			post.Videos = append(post.Videos, attachment.URL)
			if attachment.PreviewURL != "" {
				if media, ok := p.fetchMedia(ctx, filenameFromURL(attachment.PreviewURL), attachment.PreviewURL, status.Hostname(), log); ok {
					post.Media = append(post.Media, media)
				}
			}
		default:
			// Unsupported media passes through unfetched; the composer
			// skips it when attaching.
			post.Media = append(post.Media, model.Media{
				Filename: filenameFromURL(attachment.URL),
				Kind:     model.MediaOther,
				URL:      attachment.URL,
			})
		}
	}

	if status.IsReply() {
		p.resolveParent(ctx, status, post, log)
	}

	return post
}

// fetchMedia downloads and downscales one image. A failed download yields a
// placeholder image carrying the error text; a failed decode or resize
// drops the item.
func (p *Pipeline) fetchMedia(ctx context.Context, filename, url, referer string, log *slog.Logger) (model.Media, bool) {
	maxW := p.cfg.Settings.ImageMaximumWidth
	maxH := p.cfg.Settings.ImageMaximumHeight

	data, err := p.client.FetchImage(ctx, url, referer)
	if err != nil {
		msg := fmt.Sprintf("Unable to download image %q: %v", url, err)
		log.Warn("download image", "url", url, "error", err)
		return model.Media{
			Filename: filename + ".png",
			Data:     transform.ErrorPlaceholder(msg, maxW, maxH),
			Kind:     model.MediaImage,
			URL:      url,
		}, true
	}

	scaled, err := transform.Downscale(data, maxW, maxH)
	if err != nil {
		log.Warn("downscale image", "url", url, "error", err)
		return model.Media{}, false
	}

	return model.Media{
		Filename: filename,
		Data:     scaled,
		Kind:     model.MediaImage,
		URL:      url,
	}, true
}

// resolveParent fetches the replied-to status so the mail carries threading
// headers and the parent URL. Failure only loses the reference.
func (p *Pipeline) resolveParent(ctx context.Context, status *mastodon.Status, post *model.Post, log *slog.Logger) {
	parent, err := p.client.Status(ctx, status.Hostname(), status.InReplyToID)
	if err != nil {
		log.Warn("resolve reply parent", "status_id", status.ID, "parent_id", status.InReplyToID, "error", err)
		return
	}
	post.InReplyToURL = parent.URL
	post.InReplyTo = &model.Thread{
		Username: parent.Account.Username,
		Hostname: parent.Hostname(),
		ID:       parent.ID,
	}
}
