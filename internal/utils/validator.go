package utils

import (
	"fmt"
	"net/url"
	"strings"

	apperrors "github.com/edgelink/shortener/internal/errors"
)

const MaxURLLength = 2048

// ValidateURL checks that rawURL is an absolute http(s) URL. field names the
// request field in the returned ValidationError.
func ValidateURL(field, rawURL string) error {
	if rawURL == "" {
		return apperrors.NewValidationError(field, "URL cannot be empty")
	}

	if len(rawURL) > MaxURLLength {
		return apperrors.NewValidationError(field, fmt.Sprintf("URL is too long (max %d characters)", MaxURLLength))
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return apperrors.NewValidationError(field, fmt.Sprintf("invalid URL format: %v", err))
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return apperrors.NewValidationError(field, "URL must start with http:// or https://")
	}

	if parsedURL.Host == "" {
		return apperrors.NewValidationError(field, "URL must contain a valid host")
	}

	return nil
}

func SanitizeInput(input string) string {
	// Удаляем управляющие символы и обрезаем пробелы
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1 // удаляем символ
		}
		return r
	}, input)

	return strings.TrimSpace(result)
}

// PointsTo reports whether rawURL targets slug on one of hosts. Hosts are
// compared case-insensitively and without a leading "www.".
func PointsTo(rawURL, slug string, hosts []string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := normalizeHost(parsed.Hostname())
	matched := false
	for _, h := range hosts {
		if h != "" && normalizeHost(h) == host {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	path := strings.Trim(parsed.Path, "/")
	return path == slug
}

// HostOf returns the lower-cased hostname of rawURL, or rawURL itself when
// it carries no scheme.
func HostOf(rawURL string) string {
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Host != "" {
		return normalizeHost(parsed.Hostname())
	}
	return normalizeHost(rawURL)
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.TrimPrefix(h, "www.")
}
