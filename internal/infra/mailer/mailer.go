// Package mailer delivers finished reports by SMTP. Delivery is best-effort:
// the analysis result is already in the store before any mail is attempted.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/autopruefer/autopruefer-api/internal/domain/analysis"
)

type Mailer struct {
	client *mail.Client
	from   string
}

// New returns nil when host is empty; a nil Mailer skips sending.
func New(host string, port int, user, password, from string) (*Mailer, error) {
	if host == "" {
		return nil, nil
	}
	opts := []mail.Option{mail.WithPort(port)}
	if user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(user),
			mail.WithPassword(password),
		)
	}
	c, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &Mailer{client: c, from: from}, nil
}

// SendReport mails the textual report, attaching the PDF when one was rendered.
func (m *Mailer) SendReport(ctx context.Context, to string, res *analysis.Result) error {
	if m == nil || to == "" {
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject("Ihre Autoprüfer Fahrzeuganalyse")
	msg.SetBodyString(mail.TypeTextPlain, reportBody(res))
	if res.PDFPath != "" {
		msg.AttachFile(res.PDFPath)
	}

	return m.client.DialAndSendWithContext(ctx, msg)
}

func reportBody(res *analysis.Result) string {
	var b strings.Builder
	b.WriteString("Guten Tag,\n\nvielen Dank für Ihren Kauf. Ihre Analyse:\n\n")
	b.WriteString(res.RawText)
	b.WriteString("\n\nIhr Autoprüfer Team\n")
	return b.String()
}
