// Package dispatch delivers rendered reports.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"
)

// ErrNoRecipients is returned when a message has no usable recipient.
var ErrNoRecipients = errors.New("no recipients")

// Message is one rendered report ready for delivery.
type Message struct {
	Topic   string
	From    string
	To      []string
	Subject string
	Body    string
	Date    time.Time // zero means now
}

// Dispatcher delivers messages. Failures are returned, never retried.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// Recipients returns the trimmed, non-empty addresses of m.
func (m Message) Recipients() []string {
	var out []string
	for _, addr := range m.To {
		addr = sanitizeHeader(strings.TrimSpace(addr))
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// SplitAddresses splits a comma-separated recipient list.
func SplitAddresses(list string) []string {
	var out []string
	for _, addr := range strings.Split(list, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// format renders headers and body joined by sep.
func (m Message) format(sep string) (string, error) {
	to := m.Recipients()
	if len(to) == 0 {
		return "", ErrNoRecipients
	}
	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}

	lines := []string{
		fmt.Sprintf("From: %s", sanitizeHeader(m.From)),
		fmt.Sprintf("To: %s", strings.Join(to, ", ")),
		fmt.Sprintf("Subject: %s", mime.QEncoding.Encode("utf-8", sanitizeHeader(m.Subject))),
		fmt.Sprintf("Date: %s", date.Format(time.RFC1123Z)),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Transfer-Encoding: 8bit",
		"",
	}
	body := strings.ReplaceAll(m.Body, "\r\n", "\n")
	lines = append(lines, strings.Split(body, "\n")...)
	return strings.Join(lines, sep), nil
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
