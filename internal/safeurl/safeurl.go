// Package safeurl guards outbound media fetches against non-http(s) schemes.
package safeurl

import "net/url"

// IsHTTPOrHTTPS reports whether rawURL parses as an absolute http or https
// URL. Used to reject file://, ftp://, and other schemes before a CDN URL
// pulled straight from an API response is handed to an HTTP client.
func IsHTTPOrHTTPS(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}
