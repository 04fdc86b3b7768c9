package domain

import (
	"net/url"
	"strings"
)

// LocatorHost returns the lowercased host of the locator, without the port
func LocatorHost(locator string) (string, bool) {
	parsed, err := url.Parse(locator)
	if err != nil || parsed.Hostname() == "" {
		return "", false
	}
	return strings.ToLower(parsed.Hostname()), true
}
