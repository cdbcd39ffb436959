// Package origin normalizes web-origin identifiers (scheme+host+port),
// the unit of access control for the key registry.
package origin

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// defaultPorts maps schemes to their default ports, which are elided from
// the normalized form.
var defaultPorts = map[string]string{
	"https": "443",
	"http":  "80",
	"wss":   "443",
	"ws":    "80",
}

// Normalize canonicalizes an origin string so that equal origins compare
// equal as strings.
//
// Accepted forms: "https://host", "https://host:port", or a bare
// "host[:port]" (treated as https). The host is lowercased and converted
// to punycode; a default port for the scheme is dropped.
func Normalize(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("origin is empty")
	}

	scheme := "https"
	rest := s
	if i := strings.Index(s, "://"); i >= 0 {
		scheme = strings.ToLower(s[:i])
		rest = s[i+3:]
	}
	if _, ok := defaultPorts[scheme]; !ok {
		return "", fmt.Errorf("unsupported origin scheme: %s", scheme)
	}

	if rest == "" || strings.ContainsAny(rest, "/?#@ ") {
		return "", fmt.Errorf("invalid origin: %s", s)
	}

	host := rest
	port := ""
	if i := strings.LastIndex(rest, ":"); i >= 0 && !strings.Contains(rest, "]") {
		host, port = rest[:i], rest[i+1:]
	} else if strings.HasPrefix(rest, "[") {
		// Bracketed IPv6 literal, optionally with a port.
		end := strings.Index(rest, "]")
		if end < 0 {
			return "", fmt.Errorf("invalid origin host: %s", rest)
		}
		host = rest[:end+1]
		if len(rest) > end+1 {
			if rest[end+1] != ':' {
				return "", fmt.Errorf("invalid origin host: %s", rest)
			}
			port = rest[end+2:]
		}
	}
	if host == "" {
		return "", fmt.Errorf("invalid origin host: %s", s)
	}

	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return "", fmt.Errorf("invalid origin port: %s", port)
		}
		if port == defaultPorts[scheme] {
			port = ""
		}
	}

	if !strings.HasPrefix(host, "[") {
		ascii, err := idna.Lookup.ToASCII(strings.ToLower(host))
		if err != nil {
			return "", fmt.Errorf("invalid origin host %q: %w", host, err)
		}
		host = ascii
	}

	if port != "" {
		return scheme + "://" + host + ":" + port, nil
	}
	return scheme + "://" + host, nil
}

// NormalizeSet normalizes a list of origins, rejecting duplicates after
// normalization and returning the set in sorted order.
func NormalizeSet(in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		norm, err := Normalize(s)
		if err != nil {
			return nil, err
		}
		if seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	sort.Strings(out)
	return out, nil
}

// Contains reports whether the normalized set contains the origin.
// The set is assumed normalized; the needle is normalized here.
func Contains(set []string, needle string) bool {
	norm, err := Normalize(needle)
	if err != nil {
		return false
	}
	for _, o := range set {
		if o == norm {
			return true
		}
	}
	return false
}

// IsSuperset reports whether every member of old is present in new.
// Both sets are assumed normalized.
func IsSuperset(newSet, oldSet []string) bool {
	for _, o := range oldSet {
		found := false
		for _, n := range newSet {
			if n == o {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
