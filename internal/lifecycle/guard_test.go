package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelink/shortener/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	tests := []struct {
		name       string
		link       *model.Link
		credential string
		want       Decision
	}{
		{name: "missing", link: nil, want: Decision{Outcome: NotFound}},
		{name: "plain", link: &model.Link{Active: true}, want: Decision{Outcome: Redirect}},
		{name: "inactive", link: &model.Link{Active: false}, want: Decision{Outcome: Gone, Reason: ReasonInactive}},
		{
			name: "expired",
			link: &model.Link{Active: true, ExpiresAt: ptr(now.Add(-time.Second))},
			want: Decision{Outcome: Gone, Reason: ReasonExpired},
		},
		{
			name: "expires exactly now",
			link: &model.Link{Active: true, ExpiresAt: ptr(now)},
			want: Decision{Outcome: Redirect},
		},
		{
			name: "below click limit",
			link: &model.Link{Active: true, MaxClicks: ptr(int64(2)), ClickCount: 1},
			want: Decision{Outcome: Redirect},
		},
		{
			name: "at click limit",
			link: &model.Link{Active: true, MaxClicks: ptr(int64(1)), ClickCount: 1},
			want: Decision{Outcome: Gone, Reason: ReasonClickLimit},
		},
		{
			name: "password missing",
			link: &model.Link{Active: true, PasswordHash: &hash},
			want: Decision{Outcome: Forbidden, Reason: ReasonPasswordRequired},
		},
		{
			name:       "password wrong",
			link:       &model.Link{Active: true, PasswordHash: &hash},
			credential: "guess",
			want:       Decision{Outcome: Forbidden, Reason: ReasonInvalidPassword},
		},
		{
			name:       "password right",
			link:       &model.Link{Active: true, PasswordHash: &hash},
			credential: "s3cret",
			want:       Decision{Outcome: Redirect},
		},
		{
			name:       "gone outranks password",
			link:       &model.Link{Active: true, PasswordHash: &hash, MaxClicks: ptr(int64(0))},
			credential: "s3cret",
			want:       Decision{Outcome: Gone, Reason: ReasonClickLimit},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.link, now, tt.credential))
		})
	}
}

func TestEvaluate_LastClickIsServed(t *testing.T) {
	link := &model.Link{Active: true, MaxClicks: ptr(int64(3))}
	now := time.Now()

	served := 0
	for i := 0; i < 5; i++ {
		if Evaluate(link, now, "").Allowed() {
			served++
			link.ClickCount++
		}
	}
	assert.Equal(t, 3, served)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "redirect", Redirect.String())
	assert.Equal(t, "gone", Gone.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}
