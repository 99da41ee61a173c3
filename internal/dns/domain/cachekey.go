package domain

import "fmt"

// GenerateCacheKey returns a consistent cache key derived from a DNS name, type, and class.
func GenerateCacheKey(name string, t RRType, c RRClass) string {
	return fmt.Sprintf("%s:%d:%d", name, t, c)
}
