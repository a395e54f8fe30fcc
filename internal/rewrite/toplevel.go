package rewrite

import (
	"net/http"
	"strings"
)

// TopLevel reports whether a request is a top-level page load. Browsers that
// send Sec-Fetch-Dest are trusted; otherwise a GET or HEAD that accepts HTML
// is assumed to be a navigation.
func TopLevel(method, fetchDest, accept string) bool {
	if fetchDest = strings.TrimSpace(fetchDest); fetchDest != "" {
		return strings.EqualFold(fetchDest, "document")
	}
	if method != http.MethodGet && method != http.MethodHead {
		return false
	}
	return strings.Contains(strings.ToLower(accept), "text/html")
}

func TopLevelRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	return TopLevel(r.Method, r.Header.Get("Sec-Fetch-Dest"), r.Header.Get("Accept"))
}
