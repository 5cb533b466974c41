package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"ipv4 zeroes last octet", "203.0.113.47", "203.0.113.0"},
		{"ipv4 loopback", "127.0.0.1", "127.0.0.0"},
		{"ipv6 keeps /48 prefix", "2001:db8:85a3::8a2e:370:7334", "2001:0db8:85a3::"},
		{"empty input", "", "unknown"},
		{"already unknown", "unknown", "unknown"},
		{"garbage input", "not-an-ip", "invalid"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AnonymizeIP(tc.in))
		})
	}
}
