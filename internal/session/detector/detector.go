// Package detector decides whether a page is a human-verification challenge.
package detector

import "strings"

var indicators = []string{
	"are you a human", "security check", "verify", "verification",
	"human verification", "captcha", "challenge",
}

var urlMarkers = []string{"checkpoint", "/checkpoint/", "/m/captcha"}

// IsChallenge inspects the page title, URL and visible text for
// verification markers.
func IsChallenge(title, url, bodyText string) bool {
	title = strings.ToLower(title)
	url = strings.ToLower(url)
	bodyText = strings.ToLower(bodyText)

	for _, ind := range indicators {
		if strings.Contains(title, ind) {
			return true
		}
	}
	for _, m := range urlMarkers {
		if strings.Contains(url, m) {
			return true
		}
	}
	for _, ind := range indicators {
		if strings.Contains(bodyText, ind) {
			return true
		}
	}
	return false
}
