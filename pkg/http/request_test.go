package http_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	pkghttp "github.com/BradenHooton/quill/pkg/http"
	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP(t *testing.T) {
	proxies := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8", "::1/128", "not-a-cidr"}}

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		config     *pkghttp.IPConfig
		want       string
	}{
		{
			name:       "direct client cannot spoof forwarded headers",
			remoteAddr: "203.0.113.10:54321",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "192.168.1.1"},
			config:     proxies,
			want:       "203.0.113.10",
		},
		{
			name:       "trusted proxy forwards first valid address",
			remoteAddr: "10.0.0.5:54321",
			headers:    map[string]string{"X-Forwarded-For": "garbage, 203.0.113.42, 10.0.0.5"},
			config:     proxies,
			want:       "203.0.113.42",
		},
		{
			name:       "trusted proxy falls back to X-Real-IP",
			remoteAddr: "10.0.0.5:54321",
			headers:    map[string]string{"X-Real-IP": "198.51.100.3"},
			config:     proxies,
			want:       "198.51.100.3",
		},
		{
			name:       "trusted ipv6 proxy",
			remoteAddr: "[::1]:54321",
			headers:    map[string]string{"X-Forwarded-For": "2001:db8::1"},
			config:     proxies,
			want:       "2001:db8::1",
		},
		{
			name:       "no config ignores headers",
			remoteAddr: "203.0.113.10:1",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4"},
			config:     nil,
			want:       "203.0.113.10",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "203.0.113.11",
			config:     proxies,
			want:       "203.0.113.11",
		},
		{
			name:       "empty remote addr",
			remoteAddr: "",
			config:     proxies,
			want:       "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, pkghttp.ExtractClientIP(req, tt.config))
		})
	}
}

func TestExtractClientInfo_BoundsUserAgent(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:1"
	// multi-byte runes straddle the cut
	req.Header.Set("User-Agent", strings.Repeat("é", pkghttp.MaxUserAgentLength))

	info := pkghttp.ExtractClientInfo(req, nil)

	assert.Equal(t, "203.0.113.10", info.IPAddress)
	assert.LessOrEqual(t, len(info.UserAgent), pkghttp.MaxUserAgentLength)
	assert.True(t, utf8.ValidString(info.UserAgent))

	req.Header.Set("User-Agent", "quill-cli/1.0")
	assert.Equal(t, "quill-cli/1.0", pkghttp.ExtractClientInfo(req, nil).UserAgent)
}
