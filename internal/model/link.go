package model

import "time"

type Link struct {
	Slug         string         `json:"slug"`
	Destination  string         `json:"destination"`
	OwnerID      *string        `json:"owner_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	MaxClicks    *int64         `json:"max_clicks,omitempty"`
	ClickCount   int64          `json:"click_count"`
	PasswordHash *string        `json:"password_hash,omitempty"`
	Active       bool           `json:"active"`
	CustomDomain *string        `json:"custom_domain,omitempty"`
	Routing      *RoutingConfig `json:"routing,omitempty"`
}

// Owner returns the owner id or an empty string for anonymous links.
func (l *Link) Owner() string {
	if l.OwnerID == nil {
		return ""
	}
	return *l.OwnerID
}

func (l *Link) HasPassword() bool {
	return l.PasswordHash != nil && *l.PasswordHash != ""
}

type CreateLinkRequest struct {
	URL          string         `json:"url" binding:"required"`
	CustomSlug   string         `json:"custom_slug,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	MaxClicks    *int64         `json:"max_clicks,omitempty"`
	Password     string         `json:"password,omitempty"`
	CustomDomain string         `json:"custom_domain,omitempty"`
	Routing      *RoutingConfig `json:"routing,omitempty"`
}

// UpdateLinkRequest carries a partial update; nil fields are left untouched.
type UpdateLinkRequest struct {
	Destination *string    `json:"destination,omitempty"`
	Active      *bool      `json:"active,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	MaxClicks   *int64     `json:"max_clicks,omitempty"`
	Password    *string    `json:"password,omitempty"`
}

type LinkResponse struct {
	Slug         string     `json:"slug"`
	ShortURL     string     `json:"short_url"`
	Destination  string     `json:"destination"`
	ClickCount   int64      `json:"click_count"`
	Active       bool       `json:"active"`
	Protected    bool       `json:"protected"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	MaxClicks    *int64     `json:"max_clicks,omitempty"`
	CustomDomain *string    `json:"custom_domain,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type StatsResponse struct {
	Slug       string `json:"slug"`
	ClickCount int64  `json:"click_count"`
	Status     string `json:"status"`
}
