package slug

import (
	"regexp"
	"strings"

	apperrors "github.com/edgelink/shortener/internal/errors"
)

const (
	MinCustomLength = 5
	MaxCustomLength = 20
)

var customPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DefaultReserved are path segments that collide with routes or would be
// confusing as short links. Matching is case-insensitive.
var DefaultReserved = []string{
	"admin", "api", "login", "logout", "signup", "signin", "register",
	"create", "shorten", "health", "metrics", "info", "static", "assets",
	"dashboard", "settings", "account", "billing", "webhooks", "docs",
	"help", "support", "about", "privacy", "terms", "favicon.ico", "robots.txt",
}

// ReservedSet is a lower-cased lookup of reserved words.
type ReservedSet map[string]struct{}

func NewReservedSet(words ...[]string) ReservedSet {
	set := make(ReservedSet)
	for _, list := range words {
		for _, w := range list {
			set[strings.ToLower(w)] = struct{}{}
		}
	}
	return set
}

func (s ReservedSet) Contains(slug string) bool {
	_, ok := s[strings.ToLower(slug)]
	return ok
}

// ValidateCustom checks the length and alphabet of a caller-chosen slug and
// rejects reserved words.
func ValidateCustom(slug string, reserved ReservedSet) error {
	if len(slug) < MinCustomLength || len(slug) > MaxCustomLength {
		return apperrors.ErrInvalidSlugFormat
	}
	if !customPattern.MatchString(slug) {
		return apperrors.ErrInvalidSlugFormat
	}
	if reserved.Contains(slug) {
		return apperrors.ErrReservedSlug
	}
	return nil
}

// IsWellFormed reports whether slug could have been issued, either generated
// or custom. Lookups for anything else can skip the store.
func IsWellFormed(slug string) bool {
	if len(slug) < MinCustomLength || len(slug) > MaxCustomLength {
		return false
	}
	return customPattern.MatchString(slug)
}
