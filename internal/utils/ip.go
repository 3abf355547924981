package utils

import (
	"net"
	"strings"
)

// IsAllowedIP reports whether ip falls into one of the allowed CIDR blocks.
func IsAllowedIP(ip string, allowedCIDRs []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, cidr := range allowedCIDRs {
		_, block, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			continue
		}
		if block.Contains(parsed) {
			return true
		}
	}
	return false
}

// ClientIP strips the port from a RemoteAddr-style value.
func ClientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
