package validation

import (
	"strings"
	"testing"
)

func TestValidateWebhookURL_ValidURLs(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		requireHTTPS bool
	}{
		{"HTTP URL", "http://example.com", false},
		{"HTTPS URL", "https://example.com", false},
		{"HTTPS URL with requireHTTPS", "https://example.com", true},
		{"URL with path", "https://example.com/hooks/feed-ready", false},
		{"URL with query", "https://example.com?token=abc", false},
		{"URL with port", "https://example.com:8443/hook", false},
		{"Empty URL (allowed)", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWebhookURL(tt.url, "delivery_config.url", tt.requireHTTPS)
			if err != nil {
				t.Errorf("ValidateWebhookURL(%q, requireHTTPS=%v) returned error: %v", tt.url, tt.requireHTTPS, err)
			}
		})
	}
}

func TestValidateWebhookURL_InvalidURLs(t *testing.T) {
	tests := []struct {
		name          string
		url           string
		requireHTTPS  bool
		expectedError string
	}{
		{"No scheme", "example.com", false, "must include a scheme"},
		{"HTTP when HTTPS required", "http://example.com", true, "must use HTTPS"},
		{"Invalid scheme", "ftp://example.com", false, "scheme must be http or https"},
		{"No host", "https://", false, "must include a host"},
		{"Malformed URL", "ht!tp://example.com", false, "invalid URL format"},
		{"Just scheme", "https", false, "must include a scheme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWebhookURL(tt.url, "delivery_config.url", tt.requireHTTPS)
			if err == nil {
				t.Errorf("ValidateWebhookURL(%q, requireHTTPS=%v) should return error", tt.url, tt.requireHTTPS)
				return
			}

			if !strings.Contains(err.Error(), tt.expectedError) {
				t.Errorf("Error message %q should contain %q", err.Error(), tt.expectedError)
			}
		})
	}
}

func TestURLErrorIncludesField(t *testing.T) {
	err := ValidateWebhookURL("example.com", "delivery_config.url", false)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "delivery_config.url") {
		t.Errorf("error should name the field, got %q", err.Error())
	}
}
