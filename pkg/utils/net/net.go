package netutil

import (
	"fmt"
	"net"
	"strings"
)

// Subnet24 returns the /24 prefix of an IPv4 address, or "" when ip is not IPv4.
func Subnet24(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	ipv4 := parsed.To4()
	if ipv4 == nil {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d", ipv4[0], ipv4[1], ipv4[2])
}

// Subnet64 returns the /64 prefix of an IPv6 address.
func Subnet64(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() != nil {
		return ""
	}
	return parsed.Mask(net.CIDRMask(64, 128)).String()
}

// NetworkKey groups addresses that should be treated as one network:
// the /24 for IPv4, the /64 for IPv6.
func NetworkKey(ip string) string {
	ip = strings.TrimSpace(ip)
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if s := Subnet24(ip); s != "" {
		return s
	}
	return Subnet64(ip)
}

func SameSubnet24(ip1, ip2 string) bool {
	if ip1 == "" || ip2 == "" {
		return false
	}
	a := Subnet24(ip1)
	return a != "" && a == Subnet24(ip2)
}

// SameNetwork reports whether two client addresses share a network. Loopback
// addresses never match so local play is possible.
func SameNetwork(ip1, ip2 string) bool {
	if isLoopback(ip1) || isLoopback(ip2) {
		return false
	}
	a := NetworkKey(ip1)
	return a != "" && a == NetworkKey(ip2)
}

func isLoopback(ip string) bool {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	return parsed != nil && parsed.IsLoopback()
}
