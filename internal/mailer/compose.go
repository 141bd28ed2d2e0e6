// Package mailer builds one notification email per post and delivers it
// over SMTP.
package mailer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"toot2mail/internal/model"
)

const messageTemplate = `%s
%s
--------------------------------
Videos: %s
Posted by: %s
Boosted by: %s
Application: %s

In Reply To: %s
URL: %s
Timeline: https://%s/@%s/with_replies
Toot ID: %s
`

const cardTemplate = `
--------------------------------
Card URL:   %s
Card Title: %s
`

// Compose builds the outbound message for a post: subject from the body
// text, plain text body from the message template, image attachments, and
// threading headers.
func (m *Mailer) Compose(post *model.Post) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if err := msg.FromFormat(post.AuthorName, m.cfg.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(m.cfg.Recipient); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}

	msg.Subject(Subject(post.Text, m.cfg.MaxSubjectLength))
	msg.SetBodyString(mail.TypeTextPlain, FormatBody(post))
	if !post.CreatedAt.IsZero() {
		msg.SetDateWithValue(post.CreatedAt)
	}

	msg.SetMessageIDWithValue(threadID(post.Username, post.Hostname, post.ID, m.fqdn))
	if post.InReplyTo != nil {
		msg.SetGenHeader(mail.HeaderInReplyTo,
			"<"+threadID(post.InReplyTo.Username, post.InReplyTo.Hostname, post.InReplyTo.ID, m.fqdn)+">")
	}
	msg.SetGenHeader("X-Toot-URI", post.URI)
	msg.SetGenHeader("X-Toot-Account", post.Username+"@"+post.Hostname)

	for _, media := range post.Media {
		if !media.Attachable() {
			continue
		}
		msg.AttachReadSeeker(media.Filename, bytes.NewReader(media.Data))
	}

	return msg, nil
}

// Subject derives the mail subject from the post text: single line,
// truncated to maxLen runes with the final rune replaced by an ellipsis
// marker when truncation occurs.
func Subject(text string, maxLen int) string {
	line := strings.Join(strings.Fields(text), " ")
	if line == "" {
		return "…"
	}
	runes := []rune(line)
	if len(runes) <= maxLen {
		return line
	}
	return string(runes[:maxLen-1]) + "…"
}

// FormatBody renders the plain text message body.
func FormatBody(post *model.Post) string {
	card := ""
	if post.CardURL != "" {
		card = fmt.Sprintf(cardTemplate, post.CardURL, post.CardTitle)
	}

	videos := "-"
	if len(post.Videos) > 0 {
		var b strings.Builder
		for _, v := range post.Videos {
			fmt.Fprintf(&b, "\n  - %s", v)
		}
		videos = b.String()
	}

	boostedBy := post.BoostedBy
	if boostedBy == "" {
		boostedBy = "-"
	}
	application := post.Application
	if application == "" {
		application = "-"
	}
	inReplyTo := post.InReplyToURL
	if inReplyTo == "" {
		inReplyTo = "-"
	}

	return fmt.Sprintf(messageTemplate,
		post.Text, card, videos, post.Author, boostedBy, application,
		inReplyTo, post.URL, post.Hostname, post.Username, post.ID)
}

func threadID(username, hostname, id, fqdn string) string {
	return fmt.Sprintf("%s.%s.%s@%s", username, hostname, id, fqdn)
}
