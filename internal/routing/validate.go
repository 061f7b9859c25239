package routing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/edgelink/shortener/internal/errors"
	"github.com/edgelink/shortener/internal/model"
	"github.com/edgelink/shortener/internal/utils"
)

const (
	VariantA = "variant_a"
	VariantB = "variant_b"

	defaultSplit = 50
	maxVariants  = 10
)

var deviceKeys = map[string]bool{
	string(model.DeviceMobile):  true,
	string(model.DeviceTablet):  true,
	string(model.DeviceDesktop): true,
}

// Self identifies the link being configured. Targets that resolve back to
// Slug on the service host or on Domain are rejected.
type Self struct {
	Slug   string
	Domain string
}

// Validator checks routing input at write time so resolution never has to.
type Validator struct {
	hosts []string
}

// NewValidator takes the hosts the service answers on, usually the host of
// the configured base URL.
func NewValidator(hosts ...string) *Validator {
	v := &Validator{}
	for _, h := range hosts {
		if h = utils.HostOf(h); h != "" {
			v.hosts = append(v.hosts, h)
		}
	}
	return v
}

// Target validates a single redirect target for self.
func (v *Validator) Target(field, rawURL string, self Self) error {
	if err := utils.ValidateURL(field, rawURL); err != nil {
		return err
	}
	hosts := v.hosts
	if self.Domain != "" {
		hosts = append(append([]string(nil), v.hosts...), self.Domain)
	}
	if self.Slug != "" && utils.PointsTo(rawURL, self.Slug, hosts) {
		return apperrors.NewValidationError(field, "URL must not point back to this link")
	}
	return nil
}

// RouteMap validates and normalizes a device, geo or referrer map. Keys come
// back in the form the resolver looks them up in.
func (v *Validator) RouteMap(typ model.RoutingType, routes map[string]string, self Self) (map[string]string, error) {
	if len(routes) == 0 {
		return nil, apperrors.NewValidationError("routes", "at least one route is required")
	}

	out := make(map[string]string, len(routes))
	for rawKey, target := range routes {
		key, err := normalizeKey(typ, rawKey)
		if err != nil {
			return nil, err
		}
		if err := v.Target(fmt.Sprintf("routes.%s", rawKey), target, self); err != nil {
			return nil, err
		}
		out[key] = target
	}
	return out, nil
}

func normalizeKey(typ model.RoutingType, raw string) (string, error) {
	field := fmt.Sprintf("routes.%s", raw)
	k := strings.TrimSpace(raw)

	switch typ {
	case model.RoutingDevice:
		k = strings.ToLower(k)
		if !deviceKeys[k] {
			return "", apperrors.NewValidationError(field, "device must be mobile, tablet or desktop")
		}
		return k, nil

	case model.RoutingGeo:
		if strings.EqualFold(k, model.DefaultKey) {
			return model.DefaultKey, nil
		}
		c := NormalizeCountry(k)
		if c == "" {
			return "", apperrors.NewValidationError(field, "country must be an ISO 3166-1 alpha-2 code or \"default\"")
		}
		return c, nil

	case model.RoutingReferrer:
		if strings.EqualFold(k, model.DefaultKey) {
			return model.DefaultKey, nil
		}
		d := NormalizeDomain(utils.HostOf(k))
		if d == "" || strings.ContainsAny(d, "/ ") {
			return "", apperrors.NewValidationError(field, "referrer must be a domain or \"default\"")
		}
		return d, nil
	}

	return "", apperrors.NewValidationError("type", fmt.Sprintf("unsupported routing type %q", typ))
}

// TimeRules validates an ordered rule list.
func (v *Validator) TimeRules(rules []model.TimeRule, self Self) ([]model.TimeRule, error) {
	if len(rules) == 0 {
		return nil, apperrors.NewValidationError("rules", "at least one rule is required")
	}

	out := make([]model.TimeRule, 0, len(rules))
	for i, r := range rules {
		field := fmt.Sprintf("rules[%d]", i)
		if !validHours(r.StartHour, r.EndHour) {
			return nil, apperrors.NewValidationError(field, "start_hour must be 0-23 and end_hour 0-24")
		}
		for _, d := range r.Days {
			if d < 1 || d > 7 {
				return nil, apperrors.NewValidationError(field, "days must be 1 (Monday) to 7 (Sunday)")
			}
		}
		if _, err := location(r.Timezone); err != nil {
			return nil, apperrors.NewValidationError(field, fmt.Sprintf("unknown timezone %q", r.Timezone))
		}
		if err := v.Target(field+".destination", r.Destination, self); err != nil {
			return nil, err
		}
		r.Days = append([]int(nil), r.Days...)
		out = append(out, r)
	}
	return out, nil
}

// BuildABTest validates either request form and returns a new test with a
// fresh id, which also resets visitor buckets.
func (v *Validator) BuildABTest(req model.ABTestRequest, self Self, now time.Time) (*model.ABTest, error) {
	variants := req.Variants
	if len(variants) == 0 {
		split := defaultSplit
		if req.Split != nil {
			split = *req.Split
		}
		if split < 0 || split > 100 {
			return nil, apperrors.NewValidationError("split", "split must be between 0 and 100")
		}
		variants = []model.Variant{
			{Name: VariantA, URL: req.VariantA, Weight: split},
			{Name: VariantB, URL: req.VariantB, Weight: 100 - split},
		}
	}

	checked, err := v.variants(variants, self)
	if err != nil {
		return nil, err
	}

	return &model.ABTest{
		ID:        uuid.NewString(),
		Variants:  checked,
		CreatedAt: now.UTC(),
	}, nil
}

func (v *Validator) variants(variants []model.Variant, self Self) ([]model.Variant, error) {
	if len(variants) < 2 || len(variants) > maxVariants {
		return nil, apperrors.NewValidationError("variants", fmt.Sprintf("an A/B test needs 2 to %d variants", maxVariants))
	}

	names := make(map[string]bool, len(variants))
	total := 0
	out := make([]model.Variant, 0, len(variants))
	for i, variant := range variants {
		field := fmt.Sprintf("variants[%d]", i)
		variant.Name = strings.TrimSpace(variant.Name)
		if variant.Name == "" {
			variant.Name = fmt.Sprintf("variant_%d", i+1)
		}
		if names[variant.Name] {
			return nil, apperrors.NewValidationError(field, "variant names must be unique")
		}
		names[variant.Name] = true

		if variant.Weight < 0 {
			return nil, apperrors.NewValidationError(field, "weight cannot be negative")
		}
		total += variant.Weight

		if err := v.Target(field+".url", variant.URL, self); err != nil {
			return nil, err
		}
		out = append(out, variant)
	}
	if total == 0 {
		return nil, apperrors.NewValidationError("variants", "at least one variant needs a positive weight")
	}
	return out, nil
}

// Config validates a whole routing config supplied at link creation.
func (v *Validator) Config(cfg *model.RoutingConfig, self Self, now time.Time) (*model.RoutingConfig, error) {
	if cfg.IsEmpty() {
		return nil, nil
	}

	out := &model.RoutingConfig{}
	var err error
	if len(cfg.Device) > 0 {
		if out.Device, err = v.RouteMap(model.RoutingDevice, cfg.Device, self); err != nil {
			return nil, err
		}
	}
	if len(cfg.Geo) > 0 {
		if out.Geo, err = v.RouteMap(model.RoutingGeo, cfg.Geo, self); err != nil {
			return nil, err
		}
	}
	if len(cfg.Referrer) > 0 {
		if out.Referrer, err = v.RouteMap(model.RoutingReferrer, cfg.Referrer, self); err != nil {
			return nil, err
		}
	}
	if len(cfg.Time) > 0 {
		if out.Time, err = v.TimeRules(cfg.Time, self); err != nil {
			return nil, err
		}
	}
	if cfg.ABTest != nil {
		if out.ABTest, err = v.BuildABTest(model.ABTestRequest{Variants: cfg.ABTest.Variants}, self, now); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PointsBack reports whether destination or any target in cfg resolves to
// self. It is the check Target and Config apply, run over a finished config.
func (v *Validator) PointsBack(destination string, cfg *model.RoutingConfig, self Self) bool {
	if self.Slug == "" {
		return false
	}
	hosts := v.hosts
	if self.Domain != "" {
		hosts = append(append([]string(nil), v.hosts...), self.Domain)
	}

	targets := []string{destination}
	if cfg != nil {
		for _, m := range []map[string]string{cfg.Device, cfg.Geo, cfg.Referrer} {
			for _, u := range m {
				targets = append(targets, u)
			}
		}
		for _, r := range cfg.Time {
			targets = append(targets, r.Destination)
		}
		if cfg.ABTest != nil {
			for _, variant := range cfg.ABTest.Variants {
				targets = append(targets, variant.URL)
			}
		}
	}

	for _, t := range targets {
		if utils.PointsTo(t, self.Slug, hosts) {
			return true
		}
	}
	return false
}
