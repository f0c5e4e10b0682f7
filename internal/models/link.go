package models

import "time"

// ShortLink maps a code to its destination. Only ClickCount ever changes.
type ShortLink struct {
	ID          int64      `json:"-" db:"id"`
	Code        string     `json:"code" db:"code"`
	OriginalURL string     `json:"original_url" db:"original_url"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	ClickCount  int64      `json:"click_count" db:"click_count"`
}

// Expired reports whether the link's deadline has passed at now.
func (l *ShortLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// Visit is one recorded resolution. Empty descriptive fields mean undetermined.
type Visit struct {
	ID            int64     `json:"id" db:"id"`
	ShortLinkCode string    `json:"short_link_code" db:"short_link_code"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	Referrer      string    `json:"referrer,omitempty" db:"referrer"`
	Browser       string    `json:"browser,omitempty" db:"browser"`
	OS            string    `json:"os,omitempty" db:"os"`
	DeviceClass   string    `json:"device_class,omitempty" db:"device_class"`
}

// RequestContext carries the headers a redirect was requested with.
type RequestContext struct {
	UserAgent string `json:"user_agent,omitempty"`
	Referer   string `json:"referer,omitempty"`
}

type ShortenRequest struct {
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type ShortenResponse struct {
	Code        string     `json:"code"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type StatsResponse struct {
	Code        string     `json:"code"`
	OriginalURL string     `json:"original_url"`
	ClickCount  int64      `json:"click_count"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}
