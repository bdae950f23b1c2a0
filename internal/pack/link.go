package pack

import (
	"net/url"
	"regexp"
	"strings"
)

// ShareParam is the query parameter that carries a shared trip identity.
const ShareParam = "id"

var schemeRe = regexp.MustCompile(`(?i)^https?://`)

// NormalizeURL prefixes https:// when a link has no http(s) scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !schemeRe.MatchString(raw) {
		return "https://" + raw
	}
	return raw
}

// ShareLink returns pageURL with only the identity parameter in its query.
func ShareLink(pageURL, tripID string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	u.RawQuery = url.Values{ShareParam: []string{tripID}}.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// SharedID extracts the identity parameter from a page URL, if present.
func SharedID(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(u.Query().Get(ShareParam))
}
