package model

import "time"

type DeviceClass string

const (
	DeviceUnknown DeviceClass = ""
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceDesktop DeviceClass = "desktop"
)

// RequestContext is built once per redirect request and passed explicitly to
// the guard, the resolver and the click accountant.
type RequestContext struct {
	DeviceClass    DeviceClass `json:"device_class,omitempty"`
	Country        string      `json:"country,omitempty"`
	ReferrerDomain string      `json:"referrer_domain,omitempty"`
	Now            time.Time   `json:"now"`
	ClientKey      string      `json:"client_key"`
	IP             string      `json:"ip,omitempty"`
	UserAgent      string      `json:"user_agent,omitempty"`
	IsBot          bool        `json:"is_bot"`
}

type ClickEvent struct {
	ID          string         `json:"id"`
	Slug        string         `json:"slug"`
	OwnerID     string         `json:"owner_id,omitempty"`
	ResolvedURL string         `json:"resolved_url"`
	Tier        string         `json:"tier"`
	Variant     string         `json:"variant,omitempty"`
	TestID      string         `json:"test_id,omitempty"`
	Context     RequestContext `json:"context"`
	Timestamp   time.Time      `json:"timestamp"`
}

type Webhook struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Events    []string  `json:"events"`
	Slug      string    `json:"slug,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventClick is the webhook event name for redirect hits.
const EventClick = "click"

// Wants reports whether the webhook subscribed to event for slug.
func (w *Webhook) Wants(event, slug string) bool {
	if w.Slug != "" && w.Slug != slug {
		return false
	}
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

type CreateWebhookRequest struct {
	URL    string   `json:"url" binding:"required"`
	Events []string `json:"events"`
	Slug   string   `json:"slug,omitempty"`
	// Secret is generated when empty.
	Secret string `json:"secret,omitempty"`
}
