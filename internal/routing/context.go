package routing

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edgelink/shortener/internal/model"
)

// Edge providers use these codes for unknown or anonymized origins.
var unknownCountries = map[string]bool{"XX": true, "T1": true, "A1": true, "A2": true}

// ContextBuilder turns an incoming redirect request into a RequestContext.
type ContextBuilder struct {
	geoHeaders    []string
	visitorCookie string
}

func NewContextBuilder(geoHeaders []string, visitorCookie string) *ContextBuilder {
	return &ContextBuilder{geoHeaders: geoHeaders, visitorCookie: visitorCookie}
}

// Build never fails. Missing or malformed headers leave the matching field
// empty.
func (b *ContextBuilder) Build(r *http.Request, slug, clientIP string, now time.Time) model.RequestContext {
	ua := r.UserAgent()

	visitor := clientIP
	if b.visitorCookie != "" {
		if c, err := r.Cookie(b.visitorCookie); err == nil && c.Value != "" {
			visitor = c.Value
		}
	}

	return model.RequestContext{
		DeviceClass:    ClassifyDevice(ua),
		Country:        b.country(r.Header),
		ReferrerDomain: ReferrerDomain(r.Referer()),
		Now:            now.UTC(),
		ClientKey:      ClientKey(slug, visitor),
		IP:             clientIP,
		UserAgent:      ua,
		IsBot:          IsBot(ua),
	}
}

func (b *ContextBuilder) country(h http.Header) string {
	for _, name := range b.geoHeaders {
		if c := NormalizeCountry(h.Get(name)); c != "" {
			return c
		}
	}
	return ""
}

// NormalizeCountry upper-cases an ISO 3166 alpha-2 code and returns "" for
// anything else.
func NormalizeCountry(raw string) string {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if len(c) != 2 || unknownCountries[c] {
		return ""
	}
	for i := 0; i < 2; i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return ""
		}
	}
	return c
}

// ReferrerDomain extracts the lower-cased host of a Referer header without
// port or leading "www.".
func ReferrerDomain(referer string) string {
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Host == "" {
		return ""
	}
	return NormalizeDomain(u.Hostname())
}

func NormalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}

// ClientKey is the stable A/B bucketing key for a visitor on one slug.
func ClientKey(slug, visitor string) string {
	sum := sha256.Sum256([]byte(slug + "|" + visitor))
	return hex.EncodeToString(sum[:16])
}
