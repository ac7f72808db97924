package gmail

import (
	"encoding/base64"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	gm "google.golang.org/api/gmail/v1"
)

// Message is a fully parsed Gmail message.
type Message struct {
	ID          string            `json:"id"`
	ThreadID    string            `json:"thread_id"`
	Subject     string            `json:"subject"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	Cc          string            `json:"cc"`
	Bcc         string            `json:"bcc"`
	Date        *time.Time        `json:"date"`
	Body        string            `json:"body"`
	BodyClean   string            `json:"body_clean"`
	Labels      []string          `json:"labels"`
	Snippet     string            `json:"snippet"`
	IsUnread    bool              `json:"is_unread"`
	IsImportant bool              `json:"is_important"`
	Headers     map[string]string `json:"raw_headers"`
}

func parseMessage(m *gm.Message) *Message {
	out := &Message{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Labels:   m.LabelIds,
		Snippet:  m.Snippet,
		Headers:  map[string]string{},
	}
	for _, l := range m.LabelIds {
		switch l {
		case "UNREAD":
			out.IsUnread = true
		case "IMPORTANT":
			out.IsImportant = true
		}
	}
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			out.Headers[h.Name] = h.Value
		}
		out.Body = extractBody(m.Payload)
	}
	out.Subject = out.Headers["Subject"]
	out.From = out.Headers["From"]
	out.To = out.Headers["To"]
	out.Cc = out.Headers["Cc"]
	out.Bcc = out.Headers["Bcc"]

	if d, err := mail.ParseDate(out.Headers["Date"]); err == nil {
		out.Date = &d
	} else if m.InternalDate > 0 {
		d := time.UnixMilli(m.InternalDate)
		out.Date = &d
	}
	if out.Body != "" {
		out.BodyClean = StripReply(out.Body)
	}
	return out
}

// extractBody prefers the first text/plain part anywhere in the tree and
// falls back to the first text/html part rendered as text.
func extractBody(p *gm.MessagePart) string {
	if plain := findPart(p, "text/plain"); plain != "" {
		return plain
	}
	if html := findPart(p, "text/html"); html != "" {
		return HTMLToText(html)
	}
	return ""
}

func findPart(p *gm.MessagePart, mimeType string) string {
	if p == nil {
		return ""
	}
	if p.MimeType == mimeType && p.Body != nil && p.Body.Data != "" {
		if s, err := decodeData(p.Body.Data); err == nil {
			return s
		}
	}
	for _, child := range p.Parts {
		if s := findPart(child, mimeType); s != "" {
			return s
		}
	}
	return ""
}

// decodeData accepts base64url with or without padding.
func decodeData(data string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// mailOrigin resolves relative links in HTML bodies.
var mailOrigin = &url.URL{Scheme: "https", Host: "mail.google.com"}

var (
	whitespaceRe = regexp.MustCompile(`[ \t]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// HTMLToText extracts readable text from an HTML email. Readability handles
// newsletter-style layouts; short transactional mails fall through to a
// plain walk of the DOM.
func HTMLToText(html string) string {
	if article, err := readability.FromReader(strings.NewReader(html), mailOrigin); err == nil {
		if text := strings.TrimSpace(article.TextContent); len(text) > 200 {
			return normalize(text)
		}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, head, noscript").Remove()
	return normalize(blockText(doc.Find("body")))
}

func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "#text":
			if t := strings.TrimSpace(s.Text()); t != "" {
				b.WriteString(t)
				b.WriteString(" ")
			}
		case "br":
			b.WriteString("\n")
		case "p", "div", "tr", "table", "h1", "h2", "h3", "h4", "li", "blockquote":
			if inner := strings.TrimSpace(blockText(s)); inner != "" {
				b.WriteString(inner)
				b.WriteString("\n\n")
			}
		default:
			b.WriteString(blockText(s))
		}
	})
	return b.String()
}

func normalize(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(whitespaceRe.ReplaceAllString(l, " "))
	}
	return strings.TrimSpace(blankLinesRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

var (
	wroteRe     = regexp.MustCompile(`(?i)^on\b.*\bwrote:\s*$`)
	forwardedRe = regexp.MustCompile(`(?i)^-+\s*(original message|forwarded message)\s*-+$`)
	sentFromRe  = regexp.MustCompile(`(?i)^sent from my \w+`)
)

// StripReply returns only the newest part of a message body: quoted
// replies, reply headers and trailing signatures are removed.
func StripReply(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if wroteRe.MatchString(trimmed) || forwardedRe.MatchString(trimmed) {
			break
		}
		if trimmed == "--" || sentFromRe.MatchString(trimmed) {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
