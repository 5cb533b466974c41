// Package identity carries the caller context stamped onto consent records:
// who acted, from where, and with what client. IP addresses are anonymized
// and user agents reduced to a coarse description before anything is stored.
package identity

import (
	"fmt"
	"net"
	"strings"

	"github.com/mssola/useragent"

	"assent/internal/platform/privacy"
)

// Identity describes the actor behind a ledger mutation. IPAddress and
// UserAgent are already sanitized; stores and emitters use them as-is.
type Identity struct {
	UserID    string
	SessionID string
	IPAddress string
	UserAgent string
}

// New builds an Identity from raw request attributes. remoteAddr may carry a
// port (as http.Request.RemoteAddr does); rawUserAgent is the unparsed
// User-Agent header.
func New(userID, sessionID, remoteAddr, rawUserAgent string) Identity {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	return Identity{
		UserID:    userID,
		SessionID: sessionID,
		IPAddress: privacy.AnonymizeIP(host),
		UserAgent: DescribeUserAgent(rawUserAgent),
	}
}

// DescribeUserAgent reduces a User-Agent header to "Browser on OS". The
// coarse form is enough for consent evidence and avoids storing a
// fingerprintable raw header.
func DescribeUserAgent(raw string) string {
	if raw == "" {
		return "Unknown Device"
	}

	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	browser = strings.TrimSpace(browser)
	if browser == "" {
		browser = "Unknown Browser"
	}

	os := strings.TrimSpace(ua.OSInfo().Name)
	if os == "" {
		os = ua.OS()
	}
	if os == "" {
		os = "Unknown OS"
	}

	return fmt.Sprintf("%s on %s", browser, os)
}
