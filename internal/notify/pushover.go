// Package notify delivers best-effort push notifications for sign-in and
// sign-up events. Deliveries are never retried and failures never reach the
// caller; this sink must not be able to break account resolution.
package notify

import (
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/corvuslabs/notebase/internal/identity"
)

const pushoverURL = "https://api.pushover.net/1/messages.json"

// Noop discards every event. Used when Pushover is not configured.
type Noop struct{}

func (Noop) Notify(event, accountName string) {}

// Pushover posts events to the Pushover message API.
type Pushover struct {
	token    string
	user     string
	device   string
	title    string
	endpoint string
	client   *http.Client
}

func NewPushover(token, user, device, title string) *Pushover {
	return &Pushover{
		token:    token,
		user:     user,
		device:   device,
		title:    title,
		endpoint: pushoverURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends one message. Sign-ups are loud (priority 1, distinct sound),
// sign-ins are quiet (priority -1). Errors are logged and dropped.
func (p *Pushover) Notify(event, accountName string) {
	sound, priority := "Pushover (default)", "-1"
	if event == identity.EventSignUp {
		sound, priority = "Bike", "1"
	}

	form := url.Values{}
	form.Set("token", p.token)
	form.Set("user", p.user)
	form.Set("device", p.device)
	form.Set("title", p.title)
	form.Set("message", accountName+": "+event)
	form.Set("sound", sound)
	form.Set("priority", priority)

	resp, err := p.client.Post(p.endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		log.Printf("notify: pushover delivery failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		log.Printf("notify: pushover responded %d", resp.StatusCode)
	}
}
