package session

import (
	"net/http"
	"strings"
)

const (
	igAppID  = "936619743392459"
	igASBDID = "129477"
)

// BuildHeader returns the headers the web client sends on API calls,
// carrying the given cookies and the CSRF token taken from them.
func BuildHeader(cookies []*http.Cookie, baseURL, userAgent string) http.Header {
	pairs := make([]string, 0, len(cookies))
	var csrf string
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
		if c.Name == "csrftoken" {
			csrf = c.Value
		}
	}

	h := make(http.Header)
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Origin", baseURL)
	h.Set("Referer", baseURL+"/")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("User-Agent", userAgent)
	h.Set("X-ASBD-ID", igASBDID)
	h.Set("X-CSRFToken", csrf)
	h.Set("X-IG-App-ID", igAppID)
	h.Set("X-IG-WWW-Claim", "0")
	h.Set("X-Requested-With", "XMLHttpRequest")
	if len(pairs) > 0 {
		h.Set("Cookie", strings.Join(pairs, "; "))
	}
	return h
}
