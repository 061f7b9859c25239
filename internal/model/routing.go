package model

import "time"

// Routing tiers in resolution order.
type RoutingType string

const (
	RoutingDevice   RoutingType = "device"
	RoutingGeo      RoutingType = "geo"
	RoutingTime     RoutingType = "time"
	RoutingReferrer RoutingType = "referrer"
	RoutingABTest   RoutingType = "ab_test"
)

// DefaultKey is the explicit fallback key inside the geo and referrer maps.
const DefaultKey = "default"

// RoutingConfig is attached 1:1 to a link. A nil map (or nil test) means the
// tier is not configured at all.
type RoutingConfig struct {
	Device   map[string]string `json:"device,omitempty"`
	Geo      map[string]string `json:"geo,omitempty"`
	Referrer map[string]string `json:"referrer,omitempty"`
	Time     []TimeRule        `json:"time,omitempty"`
	ABTest   *ABTest           `json:"ab_test,omitempty"`
}

// IsEmpty reports whether no tier is configured.
func (c *RoutingConfig) IsEmpty() bool {
	if c == nil {
		return true
	}
	return len(c.Device) == 0 && len(c.Geo) == 0 && len(c.Referrer) == 0 &&
		len(c.Time) == 0 && c.ABTest == nil
}

// Clone returns a deep copy so callers can mutate one tier without touching
// a cached value.
func (c *RoutingConfig) Clone() *RoutingConfig {
	if c == nil {
		return &RoutingConfig{}
	}
	out := &RoutingConfig{
		Device:   cloneMap(c.Device),
		Geo:      cloneMap(c.Geo),
		Referrer: cloneMap(c.Referrer),
	}
	if c.Time != nil {
		out.Time = make([]TimeRule, len(c.Time))
		for i, r := range c.Time {
			r.Days = append([]int(nil), r.Days...)
			out.Time[i] = r
		}
	}
	if c.ABTest != nil {
		ab := *c.ABTest
		ab.Variants = append([]Variant(nil), c.ABTest.Variants...)
		out.ABTest = &ab
	}
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// TimeRule matches when the local hour (in Timezone) is inside
// [StartHour, EndHour) on one of Days (ISO weekday, 1=Monday .. 7=Sunday).
// StartHour > EndHour wraps past midnight, StartHour == EndHour covers the
// whole day and an empty Days list matches every day.
type TimeRule struct {
	StartHour   int    `json:"start_hour"`
	EndHour     int    `json:"end_hour"`
	Days        []int  `json:"days,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Destination string `json:"destination"`
}

type ABTest struct {
	ID        string    `json:"id"`
	Variants  []Variant `json:"variants"`
	CreatedAt time.Time `json:"created_at"`
}

type Variant struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Weight int    `json:"weight"`
}

// ABTestRequest accepts either an explicit variant list or the two-variant
// split form (variant_a, variant_b, split percent for a).
type ABTestRequest struct {
	Variants []Variant `json:"variants,omitempty"`
	VariantA string    `json:"variant_a,omitempty"`
	VariantB string    `json:"variant_b,omitempty"`
	Split    *int      `json:"split,omitempty"`
}

type ABTestResults struct {
	TestID   string           `json:"test_id"`
	Variants []Variant        `json:"variants"`
	Clicks   map[string]int64 `json:"clicks"`
}

// RouteMapRequest is the body for device, geo and referrer routing.
// Device routing is also accepted flat ({"mobile": "...", "desktop": "..."}).
type RouteMapRequest struct {
	Routes map[string]string `json:"routes"`
}

type TimeRoutingRequest struct {
	Rules []TimeRule `json:"rules"`
}
