package domain

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// RData is the tagged-union payload carried by a ResourceRecord, per the
// core's rdata model: a fixed set of typed variants plus an opaque
// passthrough for any RRType the core does not synthesize. Every variant
// renders to the same presentation-format text a master file would use for
// its RDATA column, which is what ends up in ResourceRecord.Text.
type RData interface {
	rrType() RRType
	presentation() string
}

// RDataA is the IPv4 address payload for an A record.
type RDataA struct{ Addr net.IP }

func (r RDataA) rrType() RRType      { return RRTypeA }
func (r RDataA) presentation() string { return r.Addr.String() }

// RDataAAAA is the IPv6 address payload for an AAAA record.
type RDataAAAA struct{ Addr net.IP }

func (r RDataAAAA) rrType() RRType      { return RRTypeAAAA }
func (r RDataAAAA) presentation() string { return r.Addr.String() }

// RDataName is a bare target-name payload, shared by CNAME, NS, and PTR.
type RDataName struct {
	Type   RRType
	Target string
}

func (r RDataName) rrType() RRType      { return r.Type }
func (r RDataName) presentation() string { return r.Target }

// RDataMX is the priority+exchange payload for an MX record.
type RDataMX struct {
	Preference uint16
	Exchange   string
}

func (r RDataMX) rrType() RRType { return RRTypeMX }
func (r RDataMX) presentation() string {
	return fmt.Sprintf("%d %s", r.Preference, r.Exchange)
}

// RDataTXT is the text payload for a TXT record. Per spec, surrounding
// quotes are stripped before storage; multi-string TXT RRs are not handled
// (only the outermost quotes are trimmed, so the strings stay joined with
// their inner quotes), matching the source's documented behavior.
type RDataTXT struct{ Text string }

func (r RDataTXT) rrType() RRType { return RRTypeTXT }
func (r RDataTXT) presentation() string {
	return strings.Trim(r.Text, `"`)
}

// RDataSOA is the start-of-authority payload.
type RDataSOA struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func (r RDataSOA) rrType() RRType { return RRTypeSOA }
func (r RDataSOA) presentation() string {
	return fmt.Sprintf("%s %s %d %d %d %d %d", r.MName, r.RName, r.Serial, r.Refresh, r.Retry, r.Expire, r.Minimum)
}

// RDataOpaque carries any RRType this core does not understand. Per spec
// ("other types are transparently cached but never synthesized"), these are
// round-tripped as raw bytes without interpretation.
type RDataOpaque struct {
	Type RRType
	Raw  []byte
}

func (r RDataOpaque) rrType() RRType { return r.Type }
func (r RDataOpaque) presentation() string {
	return fmt.Sprintf("%x", r.Raw)
}

// NewAuthoritativeRR builds a non-expiring ResourceRecord from a typed RData
// payload, for records served directly from the zone cache.
func NewAuthoritativeRR(name string, class RRClass, ttl uint32, rdata RData) (ResourceRecord, error) {
	return NewAuthoritativeResourceRecord(name, rdata.rrType(), class, ttl, opaqueBytes(rdata), rdata.presentation())
}

// NewCachedRR builds an expiring ResourceRecord from a typed RData payload,
// for records learned from an upstream response.
func NewCachedRR(name string, class RRClass, ttl uint32, rdata RData, now time.Time) (ResourceRecord, error) {
	return NewCachedResourceRecord(name, rdata.rrType(), class, ttl, opaqueBytes(rdata), rdata.presentation(), now)
}

func opaqueBytes(rdata RData) []byte {
	if o, ok := rdata.(RDataOpaque); ok {
		return o.Raw
	}
	return nil
}

// RData decodes the record's Text (and, for opaque types, Data) back into a
// typed payload. Returns an error for a malformed A/AAAA/MX/SOA text body.
func (rr ResourceRecord) RData() (RData, error) {
	switch rr.Type {
	case RRTypeA:
		ip := net.ParseIP(rr.Text)
		if ip == nil || ip.To4() == nil {
			return nil, fmt.Errorf("invalid A rdata: %q", rr.Text)
		}
		return RDataA{Addr: ip}, nil
	case RRTypeAAAA:
		ip := net.ParseIP(rr.Text)
		if ip == nil {
			return nil, fmt.Errorf("invalid AAAA rdata: %q", rr.Text)
		}
		return RDataAAAA{Addr: ip}, nil
	case RRTypeCNAME, RRTypeNS, RRTypePTR:
		return RDataName{Type: rr.Type, Target: rr.Text}, nil
	case RRTypeMX:
		parts := strings.Fields(rr.Text)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid MX rdata: %q", rr.Text)
		}
		pref, err := strconv.ParseUint(parts[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid MX preference: %w", err)
		}
		return RDataMX{Preference: uint16(pref), Exchange: parts[1]}, nil
	case RRTypeTXT:
		return RDataTXT{Text: rr.Text}, nil
	case RRTypeSOA:
		parts := strings.Fields(rr.Text)
		if len(parts) != 7 {
			return nil, fmt.Errorf("invalid SOA rdata: %q", rr.Text)
		}
		var nums [5]uint64
		for i := 0; i < 5; i++ {
			n, err := strconv.ParseUint(parts[i+2], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid SOA field %d: %w", i+2, err)
			}
			nums[i] = n
		}
		return RDataSOA{
			MName: parts[0], RName: parts[1],
			Serial: uint32(nums[0]), Refresh: uint32(nums[1]), Retry: uint32(nums[2]),
			Expire: uint32(nums[3]), Minimum: uint32(nums[4]),
		}, nil
	default:
		return RDataOpaque{Type: rr.Type, Raw: rr.Data}, nil
	}
}
