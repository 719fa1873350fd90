package gateway

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"

	"voice-lending-go/internal/types"
)

// maxMedia bounds NumMedia; WhatsApp allows one attachment per message, Twilio up to ten.
const maxMedia = 10

// ParseEvent reads a Twilio messaging webhook form.
func ParseEvent(form url.Values) types.InboundEvent {
	ev := types.InboundEvent{
		MessageID: form.Get("MessageSid"),
		From:      form.Get("From"),
		To:        form.Get("To"),
		Body:      strings.TrimSpace(form.Get("Body")),
	}
	if ev.MessageID == "" {
		ev.MessageID = form.Get("SmsMessageSid")
	}
	n, err := strconv.Atoi(strings.TrimSpace(form.Get("NumMedia")))
	if err != nil {
		// count the indexed fields instead
		n = 0
		for n < maxMedia && form.Get(fmt.Sprintf("MediaUrl%d", n)) != "" {
			n++
		}
	}
	if n > maxMedia {
		n = maxMedia
	}
	for i := 0; i < n; i++ {
		u := form.Get(fmt.Sprintf("MediaUrl%d", i))
		if u == "" {
			continue
		}
		ev.Media = append(ev.Media, types.MediaRef{
			URL:         u,
			ContentType: form.Get(fmt.Sprintf("MediaContentType%d", i)),
		})
	}
	return ev
}

// RenderTwiML wraps text in a messaging response with exactly one message.
func RenderTwiML(text string) (string, error) {
	return twiml.Messages([]twiml.Element{&twiml.MessagingMessage{Body: text}})
}

// ValidateSignature checks X-Twilio-Signature for a form POST to fullURL.
func ValidateSignature(authToken, fullURL string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	params := make(map[string]string, len(form))
	for k, v := range form {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	rv := client.NewRequestValidator(authToken)
	return rv.Validate(fullURL, params, signature)
}
