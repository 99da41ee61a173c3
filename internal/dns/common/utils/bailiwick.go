package utils

import "strings"

// IsInZone reports whether fqdn is the apex of, or a subdomain under,
// zoneRoot. Both names are compared in canonical (lowercased, trailing-dot)
// form so callers don't need to normalize first.
func IsInZone(fqdn, zoneRoot string) bool {
	fqdn = CanonicalDNSName(fqdn)
	zoneRoot = CanonicalDNSName(zoneRoot)

	if zoneRoot == "" {
		return false
	}
	if fqdn == zoneRoot {
		return true
	}
	return strings.HasSuffix(fqdn, "."+zoneRoot)
}

// ParentZone returns the immediate parent zone of name - name with its
// leftmost label removed. The root zone's parent is itself.
func ParentZone(name string) string {
	name = CanonicalDNSName(name)
	if name == "." || name == "" {
		return "."
	}

	trimmed := strings.TrimSuffix(name, ".")
	idx := strings.Index(trimmed, ".")
	if idx == -1 {
		return "."
	}
	return trimmed[idx+1:] + "."
}

// Bailiwick returns the last two labels of name, the simplified notion of
// "in bailiwick" this resolver uses when filtering referral and glue
// records: a record is accepted only if its owner ends in these same two
// labels, regardless of how deep the actual delegation boundary is. This is
// intentionally not full bailiwick checking (RFC 1035's "belongs to the
// zone the server is authoritative for") - it is a fixed two-label window
// that over-trusts some deep delegations and under-trusts some short ones,
// and that behavior is preserved rather than corrected.
func Bailiwick(name string) string {
	name = CanonicalDNSName(name)
	trimmed := strings.TrimSuffix(name, ".")
	if trimmed == "" {
		return "."
	}

	labels := strings.Split(trimmed, ".")
	if len(labels) <= 2 {
		return trimmed + "."
	}
	return strings.Join(labels[len(labels)-2:], ".") + "."
}
