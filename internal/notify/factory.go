package notify

import (
	"log/slog"

	"go-autoagent/internal/config"
)

// FromConfig registers console plus every channel whose settings are
// complete. sms and hub may be nil, which leaves their channels out.
func FromConfig(cfg config.NotificationConfig, sms SMSGateway, hub *Hub, logger *slog.Logger) *Dispatcher {
	senders := []Sender{&ConsoleSender{}}
	if cfg.LogFile != "" {
		senders = append(senders, &FileSender{Path: cfg.LogFile})
	}
	if cfg.WebhookURL != "" {
		senders = append(senders, &WebhookSender{URL: cfg.WebhookURL})
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, &DiscordSender{WebhookURL: cfg.DiscordWebhookURL})
	}
	if cfg.SlackWebhookURL != "" {
		senders = append(senders, &SlackSender{WebhookURL: cfg.SlackWebhookURL})
	}
	if cfg.Pushover.Token != "" && cfg.Pushover.UserKey != "" {
		senders = append(senders, &PushoverSender{Token: cfg.Pushover.Token, UserKey: cfg.Pushover.UserKey})
	}
	if cfg.PushbulletAPIKey != "" {
		senders = append(senders, &PushbulletSender{APIKey: cfg.PushbulletAPIKey})
	}
	tw := cfg.Twilio
	if tw.AccountSID != "" && tw.AuthToken != "" && tw.From != "" && tw.To != "" {
		senders = append(senders, &TwilioSender{AccountSID: tw.AccountSID, AuthToken: tw.AuthToken, From: tw.From, To: tw.To})
	}
	if sms != nil && cfg.GmailSMS.Phone != "" && cfg.GmailSMS.Carrier != "" {
		senders = append(senders, &GmailSMSSender{Gateway: sms, Phone: cfg.GmailSMS.Phone, Carrier: cfg.GmailSMS.Carrier})
	}
	if hub != nil && cfg.WebSocket {
		senders = append(senders, hub)
	}
	return NewDispatcher(logger, senders...)
}
