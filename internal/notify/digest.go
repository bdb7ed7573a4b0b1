package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"
)

// Sender delivers one digest message
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// SMTPSettings configures the mail relay
type SMTPSettings struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       []string
}

// Enabled reports whether enough is configured to send mail
func (s SMTPSettings) Enabled() bool {
	return s.Host != "" && s.From != "" && len(s.To) > 0
}

// SMTPSender sends plain-text mail through an SMTP relay
type SMTPSender struct {
	settings SMTPSettings
	dialer   *gomail.Dialer
}

func NewSMTPSender(settings SMTPSettings) *SMTPSender {
	port := settings.Port
	if port <= 0 {
		port = 587
	}
	return &SMTPSender{
		settings: settings,
		dialer:   gomail.NewDialer(settings.Host, port, settings.User, settings.Password),
	}
}

func (s *SMTPSender) Send(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(s.settings.From, "slotkeeper"))
	msg.SetHeader("To", s.settings.To...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	return nil
}

// Digest periodically mails the warning list, but only when it differs from
// the last list mailed.
type Digest struct {
	checker  *Checker
	sender   Sender
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	last string
}

func NewDigest(checker *Checker, sender Sender, interval time.Duration, logger *slog.Logger) *Digest {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Digest{checker: checker, sender: sender, interval: interval, logger: logger}
}

// Run checks immediately and then every interval until ctx is done
func (d *Digest) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		if _, err := d.Check(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("warning digest failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check computes the warnings and mails them when the set changed. It reports
// whether a mail was sent. An empty set is never mailed but still counts as a
// change, so a recurrence is mailed again.
func (d *Digest) Check(ctx context.Context) (bool, error) {
	warnings, err := d.checker.Warnings(ctx)
	if err != nil {
		return false, err
	}
	fp := fingerprint(warnings)

	d.mu.Lock()
	defer d.mu.Unlock()
	if fp == d.last {
		return false, nil
	}
	if len(warnings) == 0 {
		d.last = fp
		return false, nil
	}

	subject := fmt.Sprintf("[slotkeeper] %d warnings", len(warnings))
	if err := d.sender.Send(ctx, subject, render(warnings)); err != nil {
		return false, err
	}
	d.last = fp
	d.logger.Info("warning digest sent", "warnings", len(warnings))
	return true, nil
}

func fingerprint(warnings []Warning) string {
	keys := make([]string, len(warnings))
	for i, w := range warnings {
		keys[i] = w.key()
	}
	sort.Strings(keys)
	return strings.Join(keys, "\n")
}

func render(warnings []Warning) string {
	var b strings.Builder
	b.WriteString("Current warnings:\n\n")
	for _, w := range warnings {
		fmt.Fprintf(&b, "- %s\n", w.Message)
	}
	return b.String()
}
