package faqbot

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/jordan-wright/email"

	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/timezone"
)

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	Recipients   []string `json:"recipients"`
}

// Alerter mails the operator when the site rejects the configured
// credentials. at most one alert per ET calendar day, a broken
// password does not need a thousand identical emails.
type Alerter struct {
	config SmtpConfig
	send   func(mail *email.Email) error

	mu              sync.Mutex
	lastSentDateKey string
}

func NewAlerter(config SmtpConfig) *Alerter {
	a := &Alerter{config: config}
	a.send = a.sendSmtp
	return a
}

func (a *Alerter) sendSmtp(mail *email.Email) error {
	addr := fmt.Sprintf("%s:%d", a.config.Server, a.config.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", a.config.EmailAddress, a.config.Password, a.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		return mail.Send(addr, nil)
	}
	return err
}

func (a *Alerter) shouldSend(now time.Time) bool {
	key := timezone.DateKey(now)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastSentDateKey == key {
		return false
	}
	a.lastSentDateKey = key
	return true
}

func (a *Alerter) NotifyInvalidCredentials(ctx context.Context) {
	if !a.shouldSend(timezone.Now()) {
		return
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("FAQ Bot <%s>", a.config.EmailAddress)
	mail.To = a.config.Recipients
	mail.Subject = "TPPC credentials rejected"
	mail.Text = []byte(`The site rejected the configured TPPC account during a scheduled refresh.

Scraping is paused for every feed until the credentials are fixed. Update TPPC_USERNAME / TPPC_PASSWORD and restart the bot.`)

	err := a.send(mail)
	if err != nil {
		slog.ErrorContext(ctx, "failed to send credentials alert", "err", err)
	}
}
