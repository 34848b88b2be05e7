package sanitize

import (
	"strings"
	"testing"
)

func TestText_RemovesAllHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "script tag",
			input:    `Brake Pad <script>alert('xss')</script> Set`,
			expected: `Brake Pad  Set`,
		},
		{
			name:     "inline event handler",
			input:    `<div onclick="alert('xss')">Oil Filter</div>`,
			expected: `Oil Filter`,
		},
		{
			name:     "iframe injection",
			input:    `Safe text <iframe src="evil.com"></iframe> more text`,
			expected: `Safe text  more text`,
		},
		{
			name:     "mixed HTML tags",
			input:    `<b>Bold</b> <i>Italic</i> <a href="http://example.com">Link</a>`,
			expected: `Bold Italic Link`,
		},
		{
			name:     "plain text unchanged",
			input:    `Just plain text`,
			expected: `Just plain text`,
		},
		{
			name:     "empty string",
			input:    ``,
			expected: ``,
		},
		{
			name:     "image tag with onerror",
			input:    `<img src=x onerror="alert('xss')">`,
			expected: ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Text(tt.input)
			if result != tt.expected {
				t.Errorf("Text(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestHTML_AllowsSafeFormatting(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "removes script tags",
			input:    `<p>Fits <script>alert('xss')</script> most models</p>`,
			expected: `<p>Fits  most models</p>`,
		},
		{
			name:     "removes inline event handlers",
			input:    `<p onclick="alert('xss')">Premium ceramic compound</p>`,
			expected: `<p>Premium ceramic compound</p>`,
		},
		{
			name:     "allows basic formatting",
			input:    `<p><b>Bold</b> <i>Italic</i> <em>Emphasis</em> <strong>Strong</strong></p>`,
			expected: `<p><b>Bold</b> <i>Italic</i> <em>Emphasis</em> <strong>Strong</strong></p>`,
		},
		{
			name:     "allows safe links",
			input:    `<p><a href="https://example.com">Install guide</a></p>`,
			expected: `<p><a href="https://example.com" rel="nofollow">Install guide</a></p>`,
		},
		{
			name:     "allows lists",
			input:    `<ul><li>Includes hardware</li><li>Shims pre-installed</li></ul>`,
			expected: `<ul><li>Includes hardware</li><li>Shims pre-installed</li></ul>`,
		},
		{
			name:     "removes dangerous link protocols",
			input:    `<a href="javascript:alert('xss')">Click</a>`,
			expected: `Click`,
		},
		{
			name:     "removes style attributes",
			input:    `<p style="color:red">Text</p>`,
			expected: `<p>Text</p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := HTML(tt.input)
			if result != tt.expected {
				t.Errorf("HTML(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestTextSlice_SanitizesAllElements(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "keywords with HTML",
			input:    []string{"<b>brakes</b>", "<script>alert(1)</script>rotor", "ceramic"},
			expected: []string{"brakes", "rotor", "ceramic"},
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TextSlice(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("TextSlice(%v) returned %d elements, want %d", tt.input, len(result), len(tt.expected))
				return
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("TextSlice(%v)[%d] = %q, want %q", tt.input, i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestText_CommonXSSVectors(t *testing.T) {
	vectors := []struct {
		name  string
		input string
	}{
		{"Basic XSS", `<script>alert('XSS')</script>`},
		{"IMG onerror", `<img src=x onerror=alert('XSS')>`},
		{"SVG onload", `<svg onload=alert('XSS')>`},
		{"Input autofocus", `<input autofocus onfocus=alert('XSS')>`},
		{"JavaScript protocol", `<a href="javascript:alert('XSS')">Click</a>`},
		{"Object data", `<object data="javascript:alert('XSS')">`},
		{"Embed src", `<embed src="javascript:alert('XSS')">`},
	}

	for _, v := range vectors {
		t.Run(v.name, func(t *testing.T) {
			result := Text(v.input)
			for _, d := range []string{"alert", "javascript:", "<script"} {
				if strings.Contains(result, d) {
					t.Errorf("Text(%q) still contains dangerous content %q: %q", v.input, d, result)
				}
			}
		})
	}
}

func BenchmarkText_ShortString(b *testing.B) {
	input := "Brake Pad Set for <b>Front Axle</b>"
	for i := 0; i < b.N; i++ {
		Text(input)
	}
}

func BenchmarkHTML_LongString(b *testing.B) {
	lorem := "<p>Lorem ipsum dolor sit amet.</p>"
	repeated := ""
	for i := 0; i < 10; i++ {
		repeated += lorem
	}
	input := "<p>Long product description with <b>bold text</b>, <i>italic text</i>, " +
		"<a href='http://example.com'>links</a>, and <script>alert('xss')</script> attempts.</p>" + repeated
	for i := 0; i < b.N; i++ {
		HTML(input)
	}
}
