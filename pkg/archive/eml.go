package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/symphony-contrib/export-bot/pkg/export"
	"github.com/symphony-contrib/export-bot/pkg/symphony"
)

// renderEML renders one stream as a multipart/mixed email-like document with
// a single text/html part holding every message as a paragraph.
//
// The From header requires a member flagged as creator, falling back to the
// first flagged owner; a stream with neither cannot be rendered and fails
// the build.
func renderEML(stream *export.StreamInfo, now time.Time) ([]byte, error) {
	sender, ok := creatorOrOwner(stream.Members)
	if !ok {
		return nil, fmt.Errorf("stream %s has no member flagged creator or owner", stream.ID)
	}

	emails := make([]string, 0, len(stream.Members))
	for _, m := range stream.Members {
		emails = append(emails, m.User.Email)
	}

	var paragraphs strings.Builder
	for _, msg := range stream.Messages {
		name, email := "???", "???"
		if msg.User != nil {
			name = msg.User.DisplayName
			email = msg.User.Email
		}
		fmt.Fprintf(&paragraphs,
			`<p><font color="grey">Message ID: %s</font><br>%s %s - %s says:<br>%s<br></p>`,
			msg.MessageID, isoDate(msg.Timestamp), name, email, msg.Message)
	}

	boundary := fmt.Sprintf("----=%s.%d", stream.ID, now.UnixMilli())

	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "From: %s\r\n", sender.User.Email)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(emails, ","))
	fmt.Fprintf(&b, "Message-ID: <%s.%d@symphony.com>\r\n", stream.ID, now.UnixMilli())
	fmt.Fprintf(&b, "Subject: Symphony: %d users, %d messages\r\n", len(stream.Members), len(stream.Messages))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed;\r\n    boundary=%q\r\n", boundary)
	b.WriteString("x-globalrelay-MsgType: SymphonyPost\r\n")
	b.WriteString("x-symphony-StreamType: SymphonyPost\r\n")
	fmt.Fprintf(&b, "x-symphony-StreamID: %s\r\n", stream.ID)
	fmt.Fprintf(&b, "x-symphony-FileGeneratedDateUTC: %d\r\n", now.UnixMilli())
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 7bit\r\n")
	b.WriteString("\r\n")
	b.WriteString("<!DOCTYPE html><html><body>\r\n")
	b.WriteString(paragraphs.String())
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "<hr>Generated by Symphony Message History Bot | Stream Type: %s | Stream ID: %s | File Generated Date: %s <br>\r\n",
		stream.Type, stream.ID, isoDate(now.UnixMilli()))
	b.WriteString("</body></html>\r\n")
	fmt.Fprintf(&b, "--%s--", boundary)

	return []byte(b.String()), nil
}

// creatorOrOwner picks the From identity: the first member flagged creator,
// else the first flagged owner.
func creatorOrOwner(members []symphony.Member) (symphony.Member, bool) {
	for _, m := range members {
		if m.IsCreator {
			return m, true
		}
	}
	for _, m := range members {
		if m.IsOwner {
			return m, true
		}
	}
	return symphony.Member{}, false
}
