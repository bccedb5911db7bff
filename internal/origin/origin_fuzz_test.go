package origin

import (
	"strings"
	"testing"
)

func FuzzNormalizeHeader(f *testing.F) {
	for _, seed := range []string{
		"HTTPS://Example.COM:443",
		"http://[::FFFF:192.0.2.1]",
		"null",
		"",
		"ftp://example.com",
		"https://example.com#frag",
		"https://example.com,https://evil.example.com",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, header string) {
		normalized, host, ok := NormalizeHeader(header)
		if !ok {
			return
		}
		if normalized == "null" {
			return
		}
		if !strings.HasPrefix(normalized, "http://") && !strings.HasPrefix(normalized, "https://") {
			t.Fatalf("normalized=%q has unexpected scheme", normalized)
		}
		if !strings.HasSuffix(normalized, "://"+host) {
			t.Fatalf("normalized=%q does not end with host %q", normalized, host)
		}
		// Normalization is idempotent.
		again, againHost, ok := NormalizeHeader(normalized)
		if !ok || again != normalized || againHost != host {
			t.Fatalf("NormalizeHeader(%q)=%q,%q,%v; want %q,%q,true", normalized, again, againHost, ok, normalized, host)
		}
	})
}
