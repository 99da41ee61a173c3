package zonecache

import (
	"sync"

	"github.com/haukened/rr-dns/internal/dns/common/utils"
	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/services/resolver"
)

// ZoneCache is an in-memory implementation of resolver.ZoneCache. It holds
// every authoritative record for every zone this server is configured to
// serve, keyed first by zone origin and then by owner+type+class so lookups
// never need to scan a whole zone.
type ZoneCache struct {
	mu    sync.RWMutex
	zones map[string]map[string][]domain.ResourceRecord
	//    zoneRoot → CacheKey → records (multiple RRs may share owner+type)
}

// Ensure ZoneCache implements resolver.ZoneCache at compile time.
var _ resolver.ZoneCache = (*ZoneCache)(nil)

// New creates an empty ZoneCache.
func New() *ZoneCache {
	return &ZoneCache{
		zones: make(map[string]map[string][]domain.ResourceRecord),
	}
}

// FindRecords returns the authoritative records matching query, searching
// every served zone for the one that is in_zone(query.Name). A query outside
// every served zone, or one for which the matched zone has no records at this
// owner+type, returns found=false - the caller (the dispatcher) is
// responsible for falling back to recursive resolution in that case.
func (zc *ZoneCache) FindRecords(query domain.Question) ([]domain.ResourceRecord, bool) {
	zc.mu.RLock()
	defer zc.mu.RUnlock()

	var zoneRecords map[string][]domain.ResourceRecord
	var matchedRoot string

	for zoneRoot, zone := range zc.zones {
		if utils.IsInZone(query.Name, zoneRoot) {
			if len(zoneRoot) > len(matchedRoot) {
				zoneRecords = zone
				matchedRoot = zoneRoot
			}
		}
	}

	if zoneRecords == nil {
		return nil, false
	}

	records, exists := zoneRecords[query.CacheKey()]
	if !exists || len(records) == 0 {
		return nil, false
	}

	out := make([]domain.ResourceRecord, len(records))
	copy(out, records)
	return out, true
}

// PutZone replaces all records for zoneRoot with records, grouping them by
// CacheKey so a single owner+type can hold more than one RR (e.g. multiple
// A records, or the NS set for a delegation).
func (zc *ZoneCache) PutZone(zoneRoot string, records []domain.ResourceRecord) {
	zoneRoot = utils.CanonicalDNSName(zoneRoot)

	zoneMap := make(map[string][]domain.ResourceRecord, len(records))
	for _, record := range records {
		key := record.CacheKey()
		zoneMap[key] = append(zoneMap[key], record)
	}

	zc.mu.Lock()
	defer zc.mu.Unlock()
	zc.zones[zoneRoot] = zoneMap
}

// RemoveZone removes all records for zoneRoot. Removing an unknown zone is a
// no-op, matching the ZoneCache interface's lack of an error return.
func (zc *ZoneCache) RemoveZone(zoneRoot string) {
	zoneRoot = utils.CanonicalDNSName(zoneRoot)

	zc.mu.Lock()
	defer zc.mu.Unlock()
	delete(zc.zones, zoneRoot)
}

// Zones returns the origins of every zone currently served.
func (zc *ZoneCache) Zones() []string {
	zc.mu.RLock()
	defer zc.mu.RUnlock()

	zones := make([]string, 0, len(zc.zones))
	for zoneRoot := range zc.zones {
		zones = append(zones, zoneRoot)
	}
	return zones
}

// Count returns the total number of records across all served zones.
func (zc *ZoneCache) Count() int {
	zc.mu.RLock()
	defer zc.mu.RUnlock()

	count := 0
	for _, zone := range zc.zones {
		for _, records := range zone {
			count += len(records)
		}
	}
	return count
}
