package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"pollbank/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	cases := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded header ignored", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.1.1.1:80", "1.1.1.1"},
		{"real ip header ignored", map[string]string{"X-Real-IP": " 10.0.0.9 "}, "1.1.1.1:80", "1.1.1.1"},
		{"ipv4 remote", nil, "192.168.1.4:5555", "192.168.1.4"},
		{"ipv6 remote", nil, "[::1]:5555", "::1"},
		{"rewritten without port", nil, "203.0.113.7", "203.0.113.7"},
		{"empty remote", nil, "", "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIPFromRequest(r))
		})
	}
}

func TestClientMetadataStoresIP(t *testing.T) {
	var got string
	h := ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = requestcontext.ClientIP(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "172.16.0.3:1234"
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "172.16.0.3", got)
}
