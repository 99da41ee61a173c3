package resolver

import (
	"context"
	"net"
	"time"

	"github.com/haukened/rr-dns/internal/dns/domain"
)

// UpstreamClient resolves a single question against an upstream or
// delegated nameserver and returns the decoded resource records carried by
// the response (answer, authority, and additional sections already
// flattened by the caller as needed).
type UpstreamClient interface {
	Resolve(ctx context.Context, query domain.Question, now time.Time) ([]domain.ResourceRecord, error)
}

// Blocklist reports whether a question is blocked. The dispatcher consults
// it after the served-zone check and answers a blocked question NXDOMAIN
// before any upstream cache or upstream lookup.
type Blocklist interface {
	IsBlocked(q domain.Question) bool
}

// Cache is the resolver-facing contract for the recursive/upstream answer
// cache. Set stores a batch of records sharing one cache key (the recursive
// walk calls it once per RRset it learns; the dispatcher calls it once with
// the records Resolve returned); Get returns the still-valid subset for a key, sweeping anything
// expired as a side effect.
type Cache interface {
	Set(record []domain.ResourceRecord) error
	Get(key string) ([]domain.ResourceRecord, bool)
	Delete(key string)
	Len() int
	Keys() []string
}

// DNSResponder processes a single decoded query and returns a response,
// independent of the underlying transport (UDP, TCP, or test harness).
type DNSResponder interface {
	HandleQuery(ctx context.Context, query domain.Question, clientAddr net.Addr) (domain.DNSResponse, error)
}

// ZoneCache is the in-memory store of authoritative records for every zone
// this server is configured to serve.
type ZoneCache interface {
	// FindRecords returns authoritative resource records matching the query.
	FindRecords(query domain.Question) ([]domain.ResourceRecord, bool)

	// PutZone replaces all records for a zone with new records.
	PutZone(zoneRoot string, records []domain.ResourceRecord)

	// RemoveZone removes all records for a zone.
	RemoveZone(zoneRoot string)

	// Zones returns a list of all zone roots currently cached.
	Zones() []string

	// Count returns the total number of records across all zones.
	Count() int
}

// AliasResolver expands a CNAME chain starting from an initial RRset,
// returning the ordered hops plus the terminal answer, or an error if the
// chain exceeds its depth limit or loops.
type AliasResolver interface {
	Chase(query domain.Question, initial []domain.ResourceRecord) ([]domain.ResourceRecord, error)
}

// ServerTransport is implemented by the network-facing listener that feeds
// decoded queries to a DNSResponder and writes back its encoded response.
// Kept identical to gateways/transport.ServerTransport so either package can
// be the source of truth without an import cycle between them.
type ServerTransport interface {
	Start(ctx context.Context, handler DNSResponder) error
	Stop() error
	Address() string
}
