package routing

import (
	"strings"

	"github.com/edgelink/shortener/internal/model"
)

// botPatterns are known crawler User-Agent substrings (lowercase).
var botPatterns = []string{
	"googlebot", "bingbot", "slurp", "duckduckbot",
	"baiduspider", "yandexbot", "facebookexternalhit",
	"twitterbot", "rogerbot", "linkedinbot", "embedly",
	"quora link preview", "showyoubot", "outbrain",
	"pinterest", "applebot", "semrushbot", "ahrefsbot",
	"mj12bot", "dotbot", "petalbot", "bytespider",
	"slackbot", "discordbot", "telegrambot", "whatsapp",
}

// ClassifyDevice maps a User-Agent to a device class. An empty agent is
// unknown, which matches no device route.
func ClassifyDevice(userAgent string) model.DeviceClass {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return model.DeviceUnknown
	}

	switch {
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"), strings.Contains(ua, "kindle"):
		return model.DeviceTablet
	case strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return model.DeviceTablet
	case strings.Contains(ua, "mobi"), strings.Contains(ua, "iphone"), strings.Contains(ua, "ipod"),
		strings.Contains(ua, "android"), strings.Contains(ua, "windows phone"):
		return model.DeviceMobile
	default:
		return model.DeviceDesktop
	}
}

// IsBot reports whether the agent is missing or belongs to a known crawler.
func IsBot(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return true
	}
	for _, pattern := range botPatterns {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
