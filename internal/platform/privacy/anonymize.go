// Package privacy provides helpers for handling personally identifiable
// information before it is stamped onto consent records or audit entries.
package privacy

import (
	"fmt"
	"net"
)

// AnonymizeIP truncates an IP address so the stored value cannot identify a
// specific individual. IPv4 addresses lose the last octet (/24 mask); IPv6
// addresses keep only the /48 prefix.
//
// Returns "invalid" for unparseable input and "unknown" for empty input.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	// IPv6: keep the first 6 bytes (/48), zero the rest.
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}
