// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"time"
)

// SourceKind distinguishes the two kinds of configured sources.
type SourceKind string

// Supported source kinds.
const (
	KindAccount SourceKind = "account"
	KindHashtag SourceKind = "hashtag"
)

// Source is a configured origin to poll: an account timeline or a hashtag
// timeline on a specific instance. Sources are built from configuration at
// startup and are immutable for the duration of a run.
type Source struct {
	Kind     SourceKind
	Name     string // account handle or hashtag, lowercase, without @/#
	Instance string // instance hostname

	// Account-only flags; always false for hashtags.
	ExcludeBoosts  bool
	ExcludeReplies bool
}

// Key returns the stable identity of the source, used as the state store key.
func (s Source) Key() string {
	if s.Kind == KindHashtag {
		return fmt.Sprintf("#%s@%s", s.Name, s.Instance)
	}
	return fmt.Sprintf("%s@%s", s.Name, s.Instance)
}

func (s Source) String() string { return s.Key() }

// MediaKind classifies a media attachment for the composer.
type MediaKind string

// Supported media kinds. Anything else maps to MediaOther.
const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaGifv  MediaKind = "gifv"
	MediaOther MediaKind = "other"
)

// Media is a single transformed attachment of a post. Data is only populated
// for attachable kinds; videos are referenced by URL instead.
type Media struct {
	Filename string
	Data     []byte
	Kind     MediaKind
	URL      string
	Width    int
	Height   int
}

// Attachable reports whether the item carries bytes the composer may attach.
func (m Media) Attachable() bool { return m.Kind == MediaImage && len(m.Data) > 0 }

// Thread identifies a status for mail threading headers.
type Thread struct {
	Username string
	Hostname string
	ID       string
}

// Post is the normalized, transformed view of a status handed to the
// notification composer. Derived per run; never persisted.
type Post struct {
	ID        string
	URI       string // stable identifier, lowercased for the seen set
	URL       string
	SourceKey string
	CreatedAt time.Time

	Text  string  // body after html-to-text and content replacements
	Media []Media // ordered, transformed

	Boost bool
	Reply bool

	Author       string // "Display Name (@username)"
	AuthorName   string // display name only, for the From header
	Username     string
	Hostname     string
	BoostedBy    string // "Display Name (@username)" or empty
	Application  string
	InReplyToURL string
	InReplyTo    *Thread
	CardURL      string
	CardTitle    string
	Videos       []string
}

// SeenKey returns the identifier recorded in the seen set.
func (p *Post) SeenKey() string { return p.URI }
