package repository

import (
	"fmt"
	"reflect"

	"github.com/edgelink/shortener/internal/model"
)

// isNil treats typed nil maps, slices and pointers like an untyped nil.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		return rv.IsNil()
	}
	return false
}

// applyTier sets or clears one tier on cfg, returning a new config.
func applyTier(cfg *model.RoutingConfig, tier model.RoutingType, value any) (*model.RoutingConfig, error) {
	out := cfg.Clone()
	remove := isNil(value)

	switch tier {
	case model.RoutingDevice, model.RoutingGeo, model.RoutingReferrer:
		var routes map[string]string
		if !remove {
			m, ok := value.(map[string]string)
			if !ok {
				return nil, fmt.Errorf("%s routing expects map[string]string, got %T", tier, value)
			}
			routes = m
		}
		switch tier {
		case model.RoutingDevice:
			out.Device = routes
		case model.RoutingGeo:
			out.Geo = routes
		default:
			out.Referrer = routes
		}

	case model.RoutingTime:
		out.Time = nil
		if !remove {
			rules, ok := value.([]model.TimeRule)
			if !ok {
				return nil, fmt.Errorf("time routing expects []model.TimeRule, got %T", value)
			}
			out.Time = rules
		}

	case model.RoutingABTest:
		out.ABTest = nil
		if !remove {
			test, ok := value.(*model.ABTest)
			if !ok {
				return nil, fmt.Errorf("ab_test routing expects *model.ABTest, got %T", value)
			}
			out.ABTest = test
		}

	default:
		return nil, fmt.Errorf("unknown routing tier %q", tier)
	}

	if out.IsEmpty() {
		return nil, nil
	}
	return out.Clone(), nil
}
