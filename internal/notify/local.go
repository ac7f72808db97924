package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// ConsoleSender prints a framed alert.
type ConsoleSender struct {
	Out io.Writer
	mu  sync.Mutex
}

func (c *ConsoleSender) Channel() Channel { return Console }

func (c *ConsoleSender) Send(_ context.Context, n Notification) error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	rule := strings.Repeat("=", 60)
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", rule)
	if n.Title != "" {
		fmt.Fprintf(&b, "%s\n", n.Title)
	}
	fmt.Fprintf(&b, "%s\n%s\n", n.Message, rule)
	if analysis, ok := n.Data["ai_analysis"].(string); ok && analysis != "" {
		fmt.Fprintf(&b, "AI Analysis: %s\n", analysis)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(out, b.String())
	return err
}

// FileSender appends one entry per alert to a log file.
type FileSender struct {
	Path string
	mu   sync.Mutex
}

func (f *FileSender) Channel() Channel { return File }

func (f *FileSender) Send(_ context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fh, err := os.OpenFile(f.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return goerr.Wrap(err, "failed to open alert log", goerr.V("path", f.Path))
	}
	defer fh.Close()
	_, err = fmt.Fprintf(fh, "\n[%s] %s: %s\n", n.Time.Format(time.RFC3339), n.Urgency, n.Message)
	if err != nil {
		return goerr.Wrap(err, "failed to write alert log", goerr.V("path", f.Path))
	}
	return nil
}

// SMSGateway sends texts through a carrier's email gateway; the Gmail
// client implements it.
type SMSGateway interface {
	SendSMS(ctx context.Context, phone, carrier, message string) error
}

type GmailSMSSender struct {
	Gateway SMSGateway
	Phone   string
	Carrier string
}

func (g *GmailSMSSender) Channel() Channel { return SMSGmail }

func (g *GmailSMSSender) Send(ctx context.Context, n Notification) error {
	return g.Gateway.SendSMS(ctx, g.Phone, g.Carrier, smsText(n))
}
