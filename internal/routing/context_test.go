package routing

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edgelink/shortener/internal/model"
)

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		ua   string
		want model.DeviceClass
	}{
		{"", model.DeviceUnknown},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148", model.DeviceMobile},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36", model.DeviceMobile},
		{"Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 Chrome/120.0 Safari/537.36", model.DeviceTablet},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148", model.DeviceTablet},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36", model.DeviceDesktop},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Safari/605.1.15", model.DeviceDesktop},
		{"curl/8.4.0", model.DeviceDesktop},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyDevice(tt.ua), tt.ua)
	}
}

func TestIsBot(t *testing.T) {
	assert.True(t, IsBot(""))
	assert.True(t, IsBot("Googlebot/2.1 (+http://www.google.com/bot.html)"))
	assert.True(t, IsBot("Slackbot-LinkExpanding 1.0"))
	assert.False(t, IsBot("Mozilla/5.0 (Windows NT 10.0; Win64; x64)"))
}

func TestNormalizeCountry(t *testing.T) {
	assert.Equal(t, "US", NormalizeCountry("us"))
	assert.Equal(t, "DE", NormalizeCountry(" DE "))
	assert.Empty(t, NormalizeCountry("XX"))
	assert.Empty(t, NormalizeCountry("T1"))
	assert.Empty(t, NormalizeCountry("USA"))
	assert.Empty(t, NormalizeCountry("1A"))
	assert.Empty(t, NormalizeCountry(""))
}

func TestReferrerDomain(t *testing.T) {
	assert.Equal(t, "twitter.com", ReferrerDomain("https://www.Twitter.com/status/1"))
	assert.Equal(t, "news.ycombinator.com", ReferrerDomain("https://news.ycombinator.com:443/item?id=1"))
	assert.Empty(t, ReferrerDomain(""))
	assert.Empty(t, ReferrerDomain("not a url"))
	assert.Empty(t, ReferrerDomain("://bad"))
}

func TestContextBuilder_Build(t *testing.T) {
	b := NewContextBuilder([]string{"CF-IPCountry", "X-Country-Code"}, "el_vid")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	req := httptest.NewRequest(http.MethodGet, "/abc123", http.NoBody)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile")
	req.Header.Set("Referer", "https://t.co/xyz")
	req.Header.Set("CF-IPCountry", "XX")
	req.Header.Set("X-Country-Code", "fr")

	rc := b.Build(req, "abc123", "203.0.113.7", now)

	assert.Equal(t, model.DeviceMobile, rc.DeviceClass)
	assert.Equal(t, "FR", rc.Country)
	assert.Equal(t, "t.co", rc.ReferrerDomain)
	assert.Equal(t, now.UTC(), rc.Now)
	assert.Equal(t, ClientKey("abc123", "203.0.113.7"), rc.ClientKey)
	assert.Equal(t, "203.0.113.7", rc.IP)
	assert.False(t, rc.IsBot)
}

func TestContextBuilder_CookieKey(t *testing.T) {
	b := NewContextBuilder(nil, "el_vid")

	req := httptest.NewRequest(http.MethodGet, "/abc123", http.NoBody)
	req.AddCookie(&http.Cookie{Name: "el_vid", Value: "visitor-42"})

	fromIP1 := b.Build(req, "abc123", "198.51.100.1", time.Now())
	fromIP2 := b.Build(req, "abc123", "198.51.100.2", time.Now())
	assert.Equal(t, fromIP1.ClientKey, fromIP2.ClientKey, "cookie identity outranks the IP")

	other := b.Build(req, "other1", "198.51.100.1", time.Now())
	assert.NotEqual(t, fromIP1.ClientKey, other.ClientKey, "keys are per slug")
}

func TestContextBuilder_MissingHeaders(t *testing.T) {
	b := NewContextBuilder([]string{"CF-IPCountry"}, "")
	req := httptest.NewRequest(http.MethodGet, "/abc123", http.NoBody)
	req.Header.Del("User-Agent")

	rc := b.Build(req, "abc123", "", time.Now())
	assert.Equal(t, model.DeviceUnknown, rc.DeviceClass)
	assert.Empty(t, rc.Country)
	assert.Empty(t, rc.ReferrerDomain)
	assert.True(t, rc.IsBot)
	assert.NotEmpty(t, rc.ClientKey)
}
