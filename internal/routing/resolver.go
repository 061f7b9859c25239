// Package routing picks the destination of a redirect from a link's routing
// config and the request context.
package routing

import (
	"strings"

	"github.com/edgelink/shortener/internal/model"
)

// TierDestination marks a redirect to the link's primary destination.
const TierDestination model.RoutingType = "destination"

type Result struct {
	URL     string
	Tier    model.RoutingType
	Variant string
	TestID  string
}

// Resolve applies the tiers in order device, geo, time, referrer, A/B and
// returns the first match, falling back to the link destination. It has no
// side effects and never fails; unusable entries are skipped.
func Resolve(link *model.Link, rc model.RequestContext) Result {
	fallback := Result{URL: link.Destination, Tier: TierDestination}

	cfg := link.Routing
	if cfg.IsEmpty() {
		return fallback
	}

	if u, ok := matchDevice(cfg.Device, rc.DeviceClass); ok {
		return Result{URL: u, Tier: model.RoutingDevice}
	}
	if u, ok := matchGeo(cfg.Geo, rc.Country); ok {
		return Result{URL: u, Tier: model.RoutingGeo}
	}
	if u, ok := matchTime(cfg.Time, rc.Now); ok {
		return Result{URL: u, Tier: model.RoutingTime}
	}
	if u, ok := matchReferrer(cfg.Referrer, rc.ReferrerDomain); ok {
		return Result{URL: u, Tier: model.RoutingReferrer}
	}
	if v, ok := PickVariant(cfg.ABTest, rc.ClientKey); ok {
		return Result{URL: v.URL, Tier: model.RoutingABTest, Variant: v.Name, TestID: cfg.ABTest.ID}
	}

	return fallback
}

func matchDevice(routes map[string]string, class model.DeviceClass) (string, bool) {
	if len(routes) == 0 || class == model.DeviceUnknown {
		return "", false
	}
	return lookup(routes, string(class))
}

// matchGeo consults the default key only when a geo map exists.
func matchGeo(routes map[string]string, country string) (string, bool) {
	if len(routes) == 0 {
		return "", false
	}
	if country != "" {
		if u, ok := lookup(routes, country); ok {
			return u, true
		}
	}
	return lookup(routes, model.DefaultKey)
}

// matchReferrer tries the exact domain, then each parent domain with at least
// two labels, then the default key.
func matchReferrer(routes map[string]string, domain string) (string, bool) {
	if len(routes) == 0 {
		return "", false
	}
	for d := domain; d != ""; {
		if u, ok := lookup(routes, d); ok {
			return u, true
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			break
		}
		d = d[i+1:]
		if !strings.Contains(d, ".") {
			break
		}
	}
	return lookup(routes, model.DefaultKey)
}

func lookup(routes map[string]string, key string) (string, bool) {
	u, ok := routes[key]
	if !ok || u == "" {
		return "", false
	}
	return u, true
}
