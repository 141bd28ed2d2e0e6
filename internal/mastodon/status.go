package mastodon

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Account is the subset of a Mastodon account object the pipeline needs.
type Account struct {
	ID          string `json:"id"`
	Acct        string `json:"acct"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Name returns the display name, falling back to the username.
func (a Account) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

// MediaAttachment is a single attachment of a status as returned by the API.
type MediaAttachment struct {
	Type       string    `json:"type"`
	URL        string    `json:"url"`
	PreviewURL string    `json:"preview_url"`
	Meta       MediaMeta `json:"meta"`
}

// MediaMeta carries the declared dimensions of an attachment.
type MediaMeta struct {
	Original MediaSize `json:"original"`
}

// MediaSize holds pixel dimensions.
type MediaSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Card is a link preview attached to a status.
type Card struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Image string `json:"image"`
}

// Application names the client a status was posted with.
type Application struct {
	Name    string `json:"name"`
	Website string `json:"website"`
}

// Status is a Mastodon status ("toot") as returned by the public API.
type Status struct {
	ID               string            `json:"id"`
	URI              string            `json:"uri"`
	URL              string            `json:"url"`
	CreatedAt        time.Time         `json:"created_at"`
	Content          string            `json:"content"`
	SpoilerText      string            `json:"spoiler_text"`
	InReplyToID      string            `json:"in_reply_to_id"`
	Reblog           *Status           `json:"reblog"`
	Account          Account           `json:"account"`
	MediaAttachments []MediaAttachment `json:"media_attachments"`
	Card             *Card             `json:"card"`
	Application      *Application      `json:"application"`
}

// IsBoost reports whether the status is a reblog of another status.
func (s *Status) IsBoost() bool { return s.Reblog != nil }

// IsReply reports whether the status replies to another status.
func (s *Status) IsReply() bool { return s.InReplyToID != "" }

// SeenKey returns the identifier recorded in the seen set: the lowercased
// status URI, stable across instances.
func (s *Status) SeenKey() string { return strings.ToLower(s.URI) }

// Hostname extracts the instance hostname from the status URL (or URI when
// the URL is absent).
func (s *Status) Hostname() string {
	ref := s.URL
	if ref == "" {
		ref = s.URI
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return u.Host
}

// UID returns the lowercased account identity in acct@host form.
func (s *Status) UID() string {
	acct := s.Account.Acct
	if strings.Contains(acct, "@") {
		return strings.ToLower(acct)
	}
	return strings.ToLower(s.Account.Username) + "@" + strings.ToLower(s.Hostname())
}

// TextSource returns the HTML the body is rendered from, with any spoiler
// text prepended.
func (s *Status) TextSource() string {
	content := s.Content
	if s.IsBoost() && content == "" {
		content = s.Reblog.Content
	}
	if s.SpoilerText != "" {
		return s.SpoilerText + "\n\n" + content
	}
	return content
}

// EffectiveMedia returns the attachments to deliver: the reblogged status'
// attachments for boosts, the status' own otherwise.
func (s *Status) EffectiveMedia() []MediaAttachment {
	if s.IsBoost() && len(s.Reblog.MediaAttachments) > 0 {
		return s.Reblog.MediaAttachments
	}
	return s.MediaAttachments
}

// EffectiveCard returns the link preview card, preferring the reblogged
// status' card for boosts.
func (s *Status) EffectiveCard() *Card {
	if s.IsBoost() && s.Reblog.Card != nil {
		return s.Reblog.Card
	}
	return s.Card
}

// EffectiveURL returns the status URL, resolving boosts to the original.
func (s *Status) EffectiveURL() string {
	if s.IsBoost() && s.Reblog.URL != "" {
		return s.Reblog.URL
	}
	return s.URL
}

// AuthorAccount returns the account that wrote the content: the reblogged
// author for boosts, the posting account otherwise.
func (s *Status) AuthorAccount() Account {
	if s.IsBoost() {
		return s.Reblog.Account
	}
	return s.Account
}

// DisplayName returns the author display name; for boosts with compound set,
// the booster and original author joined as "booster: author".
func (s *Status) DisplayName(compound bool) string {
	if s.IsBoost() && compound {
		return fmt.Sprintf("%s: %s", s.Account.Name(), s.Reblog.Account.Name())
	}
	return s.Account.Name()
}
