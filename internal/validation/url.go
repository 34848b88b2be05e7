// Package validation holds input checks shared across domains.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// URLError reports why a URL failed validation.
type URLError struct {
	Field   string
	Message string
	URL     string
}

func (e URLError) Error() string {
	return fmt.Sprintf("%s: %s (url: %s)", e.Field, e.Message, e.URL)
}

// ValidateWebhookURL checks that a delivery target is a well-formed absolute
// http(s) URL. An empty string passes; required-ness is the caller's call.
func ValidateWebhookURL(urlString, fieldName string, requireHTTPS bool) error {
	if urlString == "" {
		return nil
	}

	parsed, err := url.Parse(urlString)
	if err != nil {
		return URLError{Field: fieldName, Message: "invalid URL format", URL: urlString}
	}
	if parsed.Scheme == "" {
		return URLError{Field: fieldName, Message: "URL must include a scheme (http:// or https://)", URL: urlString}
	}
	if parsed.Host == "" {
		return URLError{Field: fieldName, Message: "URL must include a host", URL: urlString}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return URLError{Field: fieldName, Message: "URL scheme must be http or https", URL: urlString}
	}
	if requireHTTPS && scheme != "https" {
		return URLError{Field: fieldName, Message: "URL must use HTTPS", URL: urlString}
	}
	return nil
}
