package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/edgelink/shortener/internal/errors"
	"github.com/edgelink/shortener/internal/model"
)

var self = Self{Slug: "promo1", Domain: "go.brand.com"}

func newTestValidator() *Validator {
	return NewValidator("https://sho.rt")
}

func TestValidator_Target(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "external", url: "https://example.com/promo1"},
		{name: "other slug on service host", url: "https://sho.rt/other1"},
		{name: "relative", url: "/promo1", wantErr: true},
		{name: "ftp", url: "ftp://example.com", wantErr: true},
		{name: "self on service host", url: "https://sho.rt/promo1", wantErr: true},
		{name: "self on www service host", url: "http://WWW.sho.rt/promo1/", wantErr: true},
		{name: "self on custom domain", url: "https://go.brand.com/promo1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Target("url", tt.url, self)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidator_RouteMap(t *testing.T) {
	v := newTestValidator()

	got, err := v.RouteMap(model.RoutingGeo, map[string]string{
		"us":      "https://us.example.com",
		"DEFAULT": "https://intl.example.com",
	}, self)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"US":      "https://us.example.com",
		"default": "https://intl.example.com",
	}, got)

	got, err = v.RouteMap(model.RoutingReferrer, map[string]string{
		"https://www.Twitter.com": "https://tw.example.com",
	}, self)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"twitter.com": "https://tw.example.com"}, got)

	got, err = v.RouteMap(model.RoutingDevice, map[string]string{"Mobile": "https://m.example.com"}, self)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"mobile": "https://m.example.com"}, got)

	bad := []struct {
		typ    model.RoutingType
		routes map[string]string
	}{
		{model.RoutingDevice, map[string]string{"watch": "https://w.example.com"}},
		{model.RoutingGeo, map[string]string{"USA": "https://us.example.com"}},
		{model.RoutingGeo, map[string]string{"US": "https://sho.rt/promo1"}},
		{model.RoutingReferrer, map[string]string{"default": "not-a-url"}},
		{model.RoutingGeo, map[string]string{}},
		{model.RoutingTime, map[string]string{"x": "https://x.example.com"}},
	}
	for _, b := range bad {
		_, err := v.RouteMap(b.typ, b.routes, self)
		assert.Error(t, err, "%s %v", b.typ, b.routes)
	}
}

func TestValidator_TimeRules(t *testing.T) {
	v := newTestValidator()

	rules, err := v.TimeRules([]model.TimeRule{
		{StartHour: 9, EndHour: 17, Days: []int{1, 2, 3, 4, 5}, Timezone: "America/New_York", Destination: "https://office.example.com"},
	}, self)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	bad := []model.TimeRule{
		{StartHour: 24, EndHour: 3, Destination: "https://x.example.com"},
		{StartHour: 1, EndHour: 3, Days: []int{0}, Destination: "https://x.example.com"},
		{StartHour: 1, EndHour: 3, Timezone: "Nowhere/City", Destination: "https://x.example.com"},
		{StartHour: 1, EndHour: 3, Destination: "https://go.brand.com/promo1"},
	}
	for _, r := range bad {
		_, err := v.TimeRules([]model.TimeRule{r}, self)
		assert.Error(t, err, "%+v", r)
	}

	_, err = v.TimeRules(nil, self)
	assert.Error(t, err)
}

func TestValidator_BuildABTest(t *testing.T) {
	v := newTestValidator()
	now := time.Now()

	split := 70
	test, err := v.BuildABTest(model.ABTestRequest{
		VariantA: "https://a.example.com",
		VariantB: "https://b.example.com",
		Split:    &split,
	}, self, now)
	require.NoError(t, err)
	assert.NotEmpty(t, test.ID)
	assert.Equal(t, []model.Variant{
		{Name: VariantA, URL: "https://a.example.com", Weight: 70},
		{Name: VariantB, URL: "https://b.example.com", Weight: 30},
	}, test.Variants)

	again, err := v.BuildABTest(model.ABTestRequest{VariantA: "https://a.example.com", VariantB: "https://b.example.com"}, self, now)
	require.NoError(t, err)
	assert.NotEqual(t, test.ID, again.ID)
	assert.Equal(t, 50, again.Variants[0].Weight)

	bad := []model.ABTestRequest{
		{VariantA: "https://a.example.com"},
		{VariantA: "https://a.example.com", VariantB: "https://b.example.com", Split: intPtr(101)},
		{Variants: []model.Variant{{Name: "x", URL: "https://x.example.com", Weight: 1}}},
		{Variants: []model.Variant{
			{Name: "x", URL: "https://x.example.com", Weight: 1},
			{Name: "x", URL: "https://y.example.com", Weight: 1},
		}},
		{Variants: []model.Variant{
			{Name: "x", URL: "https://x.example.com"},
			{Name: "y", URL: "https://y.example.com"},
		}},
	}
	for _, req := range bad {
		_, err := v.BuildABTest(req, self, now)
		assert.Error(t, err, "%+v", req)
	}
}

func TestValidator_Config(t *testing.T) {
	v := newTestValidator()

	got, err := v.Config(nil, self, time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = v.Config(&model.RoutingConfig{
		Geo: map[string]string{"de": "https://de.example.com"},
		ABTest: &model.ABTest{Variants: []model.Variant{
			{Name: "a", URL: "https://a.example.com", Weight: 1},
			{Name: "b", URL: "https://b.example.com", Weight: 1},
		}},
	}, self, time.Now())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"DE": "https://de.example.com"}, got.Geo)
	require.NotNil(t, got.ABTest)
	assert.NotEmpty(t, got.ABTest.ID)

	_, err = v.Config(&model.RoutingConfig{Device: map[string]string{"mobile": "https://sho.rt/promo1"}}, self, time.Now())
	assert.Error(t, err)
}

func intPtr(i int) *int { return &i }

func TestValidator_PointsBack(t *testing.T) {
	v := NewValidator("https://sho.rt")
	self := Self{Slug: "abc123", Domain: "go.brand.com"}

	tests := []struct {
		name        string
		destination string
		cfg         *model.RoutingConfig
		want        bool
	}{
		{"unrelated", "https://example.com", nil, false},
		{"destination on service host", "https://sho.rt/abc123", nil, true},
		{"destination on custom domain", "https://go.brand.com/abc123/", nil, true},
		{"other slug", "https://sho.rt/zzz999", nil, false},
		{"geo target", "https://example.com", &model.RoutingConfig{Geo: map[string]string{"US": "https://sho.rt/abc123"}}, true},
		{"time target", "https://example.com", &model.RoutingConfig{Time: []model.TimeRule{{Destination: "https://sho.rt/abc123"}}}, true},
		{"variant target", "https://example.com", &model.RoutingConfig{ABTest: &model.ABTest{Variants: []model.Variant{{Name: VariantA, URL: "https://a.example"}, {Name: VariantB, URL: "https://go.brand.com/abc123"}}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.PointsBack(tt.destination, tt.cfg, self))
		})
	}

	assert.False(t, v.PointsBack("https://sho.rt/abc123", nil, Self{}))
}
