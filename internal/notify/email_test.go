package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/mail.v2"

	"github.com/shanehull/terpalert/internal/ai"
)

type fakeMailer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeMailer) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

var tuesday = time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)

func newTestSender(m mailer) *EmailSender {
	s := NewEmailSender(EmailConfig{
		SMTPServer: "smtp.example.com",
		SMTPPort:   587,
		SMTPUser:   "terpalert@example.com",
		SMTPPass:   "secret",
		FromEmail:  "terpalert@example.com",
	}, NewHTMLEmailRenderer())
	s.mailer = m
	s.now = func() time.Time { return tuesday }
	return s
}

func TestEmailSenderDispatch(t *testing.T) {
	fm := &fakeMailer{}
	resp, err := newTestSender(fm).Dispatch(context.Background(), Message{
		Email: "alice@umd.edu",
		Lines: []string{"Pizza at South, Yahentamitsi"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "sent", "transport": "smtp"}, resp)

	require.Len(t, fm.sent, 1)
	m := fm.sent[0]
	assert.Equal(t, []string{"alice@umd.edu"}, m.GetHeader("To"))
	assert.Equal(t, []string{"terpalert@example.com"}, m.GetHeader("From"))
	assert.Equal(t, []string{"TerpAlert: Pizza is on the menu (Tue Mar 5)"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Pizza at South, Yahentamitsi")
	assert.Contains(t, buf.String(), "text/html")
}

func TestEmailSenderFailure(t *testing.T) {
	fm := &fakeMailer{err: errors.New("535 auth failed")}
	_, err := newTestSender(fm).Dispatch(context.Background(), Message{Email: "a@umd.edu", Lines: []string{"Salad at South"}}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "535 auth failed")
}

func TestRenderMultipleAlertsWithDigest(t *testing.T) {
	msg, err := NewHTMLEmailRenderer().Render(NotificationData{
		Email:  "a@umd.edu",
		Date:   tuesday,
		Alerts: []string{"Pizza at South, Yahentamitsi", "Salad at South"},
		Digest: &ai.Digest{Summary: "A <b>great</b> pizza day.", Highlights: []string{"Pizza at South"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "TerpAlert: 2 of your items are on the menu (Tue Mar 5)", msg.Subject)
	assert.Contains(t, msg.Text, "• Pizza at South, Yahentamitsi\n• Salad at South\n")
	assert.Contains(t, msg.Text, "TODAY'S DIGEST")
	assert.Contains(t, msg.HTML, "<li>Salad at South</li>")
	assert.Contains(t, msg.HTML, "A &lt;b&gt;great&lt;/b&gt; pizza day.")
	assert.Contains(t, msg.HTML, "Tuesday, March 5, 2024")
}

func TestRenderWithoutDigest(t *testing.T) {
	msg, err := NewHTMLEmailRenderer().Render(NotificationData{
		Date:   tuesday,
		Alerts: []string{"Salad at South"},
	})
	require.NoError(t, err)
	assert.NotContains(t, msg.Text, "DIGEST")
	assert.NotContains(t, msg.HTML, "Today's digest")
}
