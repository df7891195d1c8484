// Package notify sends outbound WhatsApp messages through Twilio.
package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const whatsappPrefix = "whatsapp:"

// WhatsApp dispatches messages over the Twilio WhatsApp channel. Delivery
// failures are logged and never returned: a failed notification must not
// abort the flow that triggered it.
type WhatsApp struct {
	client *twilio.RestClient
	from   string
	logger *slog.Logger
}

// NewWhatsApp builds a dispatcher using the given Twilio credentials and
// sender number.
func NewWhatsApp(accountSID, authToken, from string, logger *slog.Logger) *WhatsApp {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &WhatsApp{client: client, from: from, logger: logger}
}

// Send delivers one message to the given contact address. Addresses are
// accepted with or without the channel prefix; numbers are stored bare in
// the registry while webhook senders arrive prefixed.
func (w *WhatsApp) Send(ctx context.Context, to, body string) {
	params := &openapi.CreateMessageParams{}
	params.SetTo(withChannelPrefix(to))
	params.SetFrom(withChannelPrefix(w.from))
	params.SetBody(body)

	if _, err := w.client.Api.CreateMessage(params); err != nil {
		w.logger.Error("failed to send whatsapp message", "to", to, "error", err)
		return
	}
	w.logger.Info("whatsapp message sent", "to", to)
}

func withChannelPrefix(number string) string {
	if strings.HasPrefix(number, whatsappPrefix) {
		return number
	}
	return whatsappPrefix + number
}
