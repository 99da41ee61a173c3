// Package zone loads a single served zone from standard RFC 1035 master-file
// syntax ($ORIGIN, $TTL, SOA and the other RR types) into the in-memory
// records the authoritative responder and zone cache operate on.
package zone

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/miekg/dns"

	"github.com/haukened/rr-dns/internal/dns/common/utils"
	"github.com/haukened/rr-dns/internal/dns/domain"
)

// Load parses the zone file at path, or every zone file in path if it names
// a directory, and returns the single zone they describe along with every
// resource record in it, as authoritative (non-expiring) ResourceRecords.
// origin is taken from the zone's own $ORIGIN / SOA owner, not supplied by
// the caller, since the file is the source of truth for the zone it serves.
// A directory is for splitting one zone across several include-style files
// (e.g. apex records in one, a delegated subdomain's glue in another) - it
// still must resolve to exactly one SOA across all of them.
func Load(path string) (domain.Zone, []domain.ResourceRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Zone{}, nil, fmt.Errorf("failed to stat zone path %s: %w", path, err)
	}
	if !info.IsDir() {
		zone, records, sawSOA, err := parseFile(path)
		if err != nil {
			return domain.Zone{}, nil, err
		}
		if !sawSOA {
			return domain.Zone{}, nil, fmt.Errorf("zone file %s has no SOA record", path)
		}
		return zone, records, nil
	}
	return loadDir(path)
}

// loadDir merges every regular file directly inside dir into one zone. Any
// one file may omit the SOA (it's fine for one file to carry the apex and
// another a delegated subdomain's glue); the directory as a whole must
// resolve to exactly one.
func loadDir(dir string) (domain.Zone, []domain.ResourceRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return domain.Zone{}, nil, fmt.Errorf("failed to read zone directory %s: %w", dir, err)
	}

	var zone domain.Zone
	var records []domain.ResourceRecord
	sawSOA := false

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		fileZone, fileRecords, fileSawSOA, err := parseFile(path)
		if err != nil {
			return domain.Zone{}, nil, err
		}
		records = append(records, fileRecords...)
		if fileSawSOA && !sawSOA {
			zone = fileZone
			sawSOA = true
		}
	}
	if !sawSOA {
		return domain.Zone{}, nil, fmt.Errorf("zone directory %s has no SOA record in any file", dir)
	}
	return zone, records, nil
}

// parseFile reads every record out of a single master file, reporting
// whether it carried the zone's SOA. It does not itself require one - that
// requirement differs between Load's single-file and directory cases.
func parseFile(path string) (domain.Zone, []domain.ResourceRecord, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Zone{}, nil, false, fmt.Errorf("failed to open zone file %s: %w", path, err)
	}
	defer f.Close()

	zp := dns.NewZoneParser(f, "", path)
	zp.SetIncludeAllowed(true)

	var records []domain.ResourceRecord
	var zone domain.Zone
	sawSOA := false

	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		record, err := fromZoneRR(rr)
		if err != nil {
			return domain.Zone{}, nil, false, fmt.Errorf("invalid record in %s: %w", path, err)
		}
		records = append(records, record)

		if !sawSOA {
			if soa, ok := rr.(*dns.SOA); ok {
				zone = domain.NewZone(soa.Hdr.Name, soa.Minttl, domain.RDataSOA{
					MName:   soa.Ns,
					RName:   soa.Mbox,
					Serial:  soa.Serial,
					Refresh: soa.Refresh,
					Retry:   soa.Retry,
					Expire:  soa.Expire,
					Minimum: soa.Minttl,
				})
				sawSOA = true
			}
		}
	}
	if err := zp.Err(); err != nil {
		return domain.Zone{}, nil, false, fmt.Errorf("failed to parse zone file %s: %w", path, err)
	}

	return zone, records, sawSOA, nil
}

// fromZoneRR converts one parsed master-file RR into an authoritative
// ResourceRecord, reusing the RR's own presentation text for the RDATA
// column - the same text the wire codec later re-parses with dns.NewRR.
func fromZoneRR(rr dns.RR) (domain.ResourceRecord, error) {
	hdr := rr.Header()
	name := utils.CanonicalDNSName(hdr.Name)
	record, err := domain.NewAuthoritativeResourceRecord(name, domain.RRType(hdr.Rrtype), domain.RRClass(hdr.Class), hdr.Ttl, nil, rdataText(rr))
	if err != nil {
		return domain.ResourceRecord{}, err
	}
	return record, nil
}

// rdataText extracts just the RDATA column from an RR's presentation-format
// string, discarding the owner/ttl/class/type prefix miekg/dns includes.
func rdataText(rr dns.RR) string {
	parts := strings.SplitN(rr.String(), "\t", 5)
	if len(parts) < 5 {
		return ""
	}
	return strings.Trim(parts[4], `"`)
}
