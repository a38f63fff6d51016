package ip

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const maxHostnameLength = 253

// ValidateHost checks that host is usable as an SSH target: an IPv4/IPv6 literal
// (optionally bracketed) or an RFC 1123 host name. Unspecified and multicast
// addresses are rejected since nothing can be dialed there.
func ValidateHost(host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return errors.New("host is empty")
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		if ip.IsUnspecified() {
			return errors.Errorf("host %q is an unspecified address", host)
		}
		if ip.IsMulticast() {
			return errors.Errorf("host %q is a multicast address", host)
		}
		return nil
	}
	if !IsValidHostname(host) {
		return errors.Errorf("host %q is neither an IP address nor a valid host name", host)
	}
	return nil
}

// IsValidHostname reports whether name is a syntactically valid DNS host name.
func IsValidHostname(name string) bool {
	name = strings.TrimSuffix(name, ".")
	if name == "" || len(name) > maxHostnameLength {
		return false
	}
	for _, label := range strings.Split(name, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			default:
				return false
			}
		}
	}
	return true
}

// JoinHostPort builds a dialable endpoint, stripping brackets a user may have typed around IPv6.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
}
