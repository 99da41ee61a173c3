package utils

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// GetApexDomain returns the registrable domain (eTLD+1) for name, used as a
// cache-key/log field. publicsuffix rejects a trailing root dot, so this
// trims it rather than going through CanonicalDNSName, which adds one.
func GetApexDomain(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimRight(name, ".")
	apexDomain, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		apexDomain = name // Fallback to the original name if parsing fails
	}
	return apexDomain
}
