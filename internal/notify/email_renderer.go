package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shanehull/terpalert/internal/ai"
)

// NotificationData is what an alert email is rendered from.
type NotificationData struct {
	Email  string
	Date   time.Time
	Alerts []string
	Digest *ai.Digest
}

// RenderedMessage is a ready-to-send email.
type RenderedMessage struct {
	Subject string
	Text    string
	HTML    string
}

// HTMLEmailRenderer renders notifications as HTML emails with a plain text fallback.
type HTMLEmailRenderer struct {
	tmpl *template.Template
}

// NewHTMLEmailRenderer creates a renderer with the default email template.
func NewHTMLEmailRenderer() *HTMLEmailRenderer {
	t := template.Must(template.New("email").Parse(emailHTMLTemplate))
	return &HTMLEmailRenderer{tmpl: t}
}

// Render produces an HTML email with plain text alternative.
func (r *HTMLEmailRenderer) Render(data NotificationData) (*RenderedMessage, error) {
	var htmlBuf bytes.Buffer
	if err := r.tmpl.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return &RenderedMessage{
		Subject: subject(data),
		Text:    renderPlainText(data),
		HTML:    htmlBuf.String(),
	}, nil
}

func subject(data NotificationData) string {
	day := data.Date.Format("Mon Jan 2")
	if len(data.Alerts) == 1 {
		item, _, _ := strings.Cut(data.Alerts[0], " at ")
		return fmt.Sprintf("TerpAlert: %s is on the menu (%s)", item, day)
	}
	return fmt.Sprintf("TerpAlert: %d of your items are on the menu (%s)", len(data.Alerts), day)
}

func renderPlainText(data NotificationData) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("TerpAlert for %s\n", data.Date.Format("Monday, January 2, 2006")))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString("ON THE MENU TODAY\n")
	sb.WriteString(strings.Repeat("-", 20) + "\n")
	for _, a := range data.Alerts {
		sb.WriteString(fmt.Sprintf("• %s\n", a))
	}
	sb.WriteString("\n")

	if !data.Digest.Empty() {
		sb.WriteString("TODAY'S DIGEST\n")
		sb.WriteString(strings.Repeat("-", 20) + "\n")
		if data.Digest.Summary != "" {
			sb.WriteString(data.Digest.Summary + "\n")
		}
		for _, h := range data.Digest.Highlights {
			sb.WriteString(fmt.Sprintf("• %s\n", h))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
