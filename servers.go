// SPDX-License-Identifier: GPL-3.0-or-later

package dnsping

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strings"
)

// DefaultPort is the port used when a resolver address has none.
const DefaultPort = "53"

// defaultServers lists well-known public resolvers.
var defaultServers = []string{
	"9.9.9.11:53",        // Quad9
	"149.112.112.11:53",  // Quad9
	"9.9.9.10:53",        // Quad9
	"149.112.112.10:53",  // Quad9
	"1.1.1.1:53",         // Cloudflare
	"1.0.0.1:53",         // Cloudflare
	"8.8.8.8:53",         // Google
	"8.8.4.4:53",         // Google
	"9.9.9.9:53",         // Quad9
	"149.112.112.112:53", // Quad9
	"208.67.222.222:53",  // OpenDNS
	"208.67.220.220:53",  // OpenDNS
	"64.6.64.6:53",       // Verisign
	"64.6.65.6:53",       // Verisign
	"8.26.56.26:53",      // Comodo Secure DNS
	"8.20.247.20:53",     // Comodo Secure DNS
	"77.88.8.8:53",       // Yandex DNS
	"77.88.8.1:53",       // Yandex DNS
	"185.228.168.168:53", // CleanBrowsing
	"185.228.169.168:53", // CleanBrowsing
	"156.154.70.1:53",    // Neustar UltraDNS
	"156.154.71.1:53",    // Neustar UltraDNS
	"199.85.126.10:53",   // Norton ConnectSafe
	"199.85.127.10:53",   // Norton ConnectSafe
}

// DefaultServers returns a copy of the built-in resolver list.
func DefaultServers() []string {
	return slices.Clone(defaultServers)
}

// NormalizeEndpoint returns address in host:port form, adding
// [DefaultPort] when the port is missing.
func NormalizeEndpoint(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("empty resolver address")
	}
	if _, port, err := net.SplitHostPort(address); err == nil {
		if port == "" {
			return "", fmt.Errorf("invalid resolver address %q: empty port", address)
		}
		return address, nil
	}
	// bare IPv6 literals may come with or without brackets
	host := strings.TrimSuffix(strings.TrimPrefix(address, "["), "]")
	endpoint := net.JoinHostPort(host, DefaultPort)
	if _, _, err := net.SplitHostPort(endpoint); err != nil {
		return "", fmt.Errorf("invalid resolver address %q: %w", address, err)
	}
	return endpoint, nil
}

// ReadServerList reads one resolver address per line.
//
// Blank lines and lines starting with '#' are ignored.
func ReadServerList(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for lineno := 1; scanner.Scan(); lineno++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		endpoint, err := NormalizeEndpoint(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		out = append(out, endpoint)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadServerList reads the resolver list at path, or returns
// [DefaultServers] when path is empty.
func LoadServerList(path string) ([]string, error) {
	if path == "" {
		return DefaultServers(), nil
	}
	filep, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer filep.Close()
	return ReadServerList(filep)
}
