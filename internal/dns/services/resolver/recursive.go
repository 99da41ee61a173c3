// Package resolver: this file holds the recursive/upstream half of query
// dispatch - the counterpart to authoritative.go for names outside every
// served zone. It implements UpstreamClient so it can be wired into
// Resolver exactly like any other upstream (and so alias.go's
// upstreamLookup can call it unmodified).
package resolver

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/common/utils"
	"github.com/haukened/rr-dns/internal/dns/domain"
)

var (
	// ErrRecursionDepthExceeded is returned when the referral walk or CNAME
	// re-entry chain exceeds the configured maximum depth.
	ErrRecursionDepthExceeded = errors.New("recursion depth exceeded")
	// ErrNoRootServers is returned when a recursiveResolver was constructed
	// with no root hint to start from.
	ErrNoRootServers = errors.New("no root servers configured")
)

// exchanger sends one query to one server and returns its decoded reply. It
// is satisfied by *gateways/upstream.Client; narrowed to just the one method
// the referral walk needs so this package can test against a fake without
// depending on the gateway's socket plumbing.
type exchanger interface {
	Query(ctx context.Context, server string, query domain.Question, now time.Time) (domain.DNSResponse, error)
}

// recursiveResolver implements UpstreamClient by walking the delegation
// chain from a configured root nameserver, per spec's resolve(server_ip,
// qname, qtype) algorithm: one-shot queries with fresh transaction ids,
// bailiwick-filtered replies, CNAME re-entry from the root, and referral
// following by first-NS-with-glue. It is written as an explicit loop over
// (server, qname, depth) rather than literal recursion, per the
// re-architecture guidance that flags the source's unbounded recursion as a
// gap: this version is bounded by maxDepth.
type recursiveResolver struct {
	exchange exchanger
	roots    []string // root_ip:port candidates tried in order for a cold start
	cache    Cache    // optional: incidental referral/glue/alias data learned mid-walk
	maxDepth int
	logger   log.Logger
}

// RecursiveResolverOptions collects a recursiveResolver's collaborators.
type RecursiveResolverOptions struct {
	Exchange exchanger
	Roots    []string
	Cache    Cache
	MaxDepth int
	Logger   log.Logger
}

// NewRecursiveResolver constructs a recursiveResolver. A maxDepth <= 0
// defaults to 8, the depth spec.md §9 suggests as a sane bound for a source
// that imposes none.
func NewRecursiveResolver(opts RecursiveResolverOptions) *recursiveResolver {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 8
	}
	return &recursiveResolver{
		exchange: opts.Exchange,
		roots:    opts.Roots,
		cache:    opts.Cache,
		maxDepth: maxDepth,
		logger:   opts.Logger,
	}
}

// walkState tracks the mutable progress of one referral walk: the server
// currently being queried, the name/type being asked for at this hop (qtype
// only ever changes via CNAME re-entry, and only back to the original A
// query), and the accumulated answer chain to return to the caller.
type walkState struct {
	server string
	qname  string
	qtype  domain.RRType
	class  domain.RRClass
	chain  []domain.ResourceRecord
	depth  int
}

// Resolve implements UpstreamClient. It starts the walk at the first
// configured root, moving on to the next root when a query to a root fails,
// and returns the RRset that answers query - a CNAME chain
// followed by its terminal answer, a referral's authority NS set, or an
// empty slice if the tree bottoms out with no data.
func (r *recursiveResolver) Resolve(ctx context.Context, query domain.Question, now time.Time) ([]domain.ResourceRecord, error) {
	if len(r.roots) == 0 {
		return nil, ErrNoRootServers
	}
	st := &walkState{
		server: r.roots[0],
		qname:  query.Name,
		qtype:  query.Type,
		class:  query.Class,
		chain:  make([]domain.ResourceRecord, 0, 4),
	}
	originalKey := query.CacheKey()
	rootIdx := 0

	for {
		if st.depth >= r.maxDepth {
			r.logger.Warn(map[string]any{"query": query, "depth": st.depth}, "Recursion depth exceeded")
			return st.chain, ErrRecursionDepthExceeded
		}
		st.depth++

		resp, err := r.queryOnce(ctx, st, now)
		if err != nil {
			if st.server == r.roots[rootIdx] && rootIdx+1 < len(r.roots) {
				rootIdx++
				st.server = r.roots[rootIdx]
				continue
			}
			return st.chain, err
		}

		r.filterToBailiwick(st, &resp)
		if resp.RCode == domain.NOERROR {
			r.cacheLearned(resp, originalKey)
		}

		if cname, target, ok := r.cnameWithoutAnswer(st, resp); ok {
			st.chain = append(st.chain, cname)
			st.qname = target
			st.server = r.roots[0]
			rootIdx = 0
			continue
		}

		if st.qtype == domain.RRTypeNS && hasOwner(resp.Authority, st.qname, domain.RRTypeNS) {
			st.chain = append(st.chain, filterOwner(resp.Authority, st.qname, domain.RRTypeNS)...)
			return st.chain, nil
		}

		if len(resp.Answers) > 0 {
			st.chain = append(st.chain, resp.Answers...)
			return st.chain, nil
		}

		next, ok := r.pickReferral(resp)
		if !ok {
			return st.chain, nil
		}
		st.server = next
	}
}

// queryOnce builds a fresh-id Question for the walk's current hop and sends
// it to the walk's current server.
func (r *recursiveResolver) queryOnce(ctx context.Context, st *walkState, now time.Time) (domain.DNSResponse, error) {
	q, err := domain.NewQuestion(freshID(), st.qname, st.qtype, st.class)
	if err != nil {
		return domain.DNSResponse{}, err
	}
	r.logger.Debug(map[string]any{
		"server":      st.server,
		"qname":       st.qname,
		"qtype":       st.qtype.String(),
		"depth":       st.depth,
		"apex_domain": utils.GetApexDomain(st.qname),
	}, "Querying upstream")
	return r.exchange.Query(ctx, st.server, q, now)
}

// filterToBailiwick drops any RR from any section of resp whose owner
// doesn't end in the bailiwick zone of the walk's current qname - the last
// two labels, per spec.md §4.4's deliberate simplification. This is computed
// fresh per hop off the qname being asked about, not the zone the server
// being queried actually serves, which is the documented (and intentionally
// uncorrected) source of over/under-trust spec.md §9 flags.
func (r *recursiveResolver) filterToBailiwick(st *walkState, resp *domain.DNSResponse) {
	zone := utils.Bailiwick(st.qname)
	resp.Answers = filterInZone(resp.Answers, zone)
	resp.Authority = filterInZone(resp.Authority, zone)
	resp.Additional = filterInZone(resp.Additional, zone)
}

func filterInZone(records []domain.ResourceRecord, zone string) []domain.ResourceRecord {
	if len(records) == 0 {
		return records
	}
	kept := records[:0:0]
	for _, rr := range records {
		if utils.IsInZone(rr.Name, zone) {
			kept = append(kept, rr)
		}
	}
	return kept
}

// cnameWithoutAnswer reports whether resp's answer section carries a CNAME
// for the walk's current qname but no matching A, and qtype is A - the one
// case spec.md §4.4 step 3 re-enters resolution from the root rather than
// following a referral.
func (r *recursiveResolver) cnameWithoutAnswer(st *walkState, resp domain.DNSResponse) (domain.ResourceRecord, string, bool) {
	if st.qtype != domain.RRTypeA {
		return domain.ResourceRecord{}, "", false
	}
	var cname *domain.ResourceRecord
	for i, rr := range resp.Answers {
		if !sameName(rr.Name, st.qname) {
			continue
		}
		if rr.Type == domain.RRTypeA {
			return domain.ResourceRecord{}, "", false
		}
		if rr.Type == domain.RRTypeCNAME && cname == nil {
			cname = &resp.Answers[i]
		}
	}
	if cname == nil || cname.Text == "" {
		return domain.ResourceRecord{}, "", false
	}
	return *cname, cname.Text, true
}

// pickReferral selects the first NS in the authority section that has a
// matching glue A record in the additional section, per spec.md §4.4's
// ordering rule: message order, first usable match, no round-robin or
// RTT-based selection. Returns false when no NS has usable glue - "no
// actionable referral," at which point the caller returns the accumulated
// chain unchanged rather than inventing a fresh NS lookup.
func (r *recursiveResolver) pickReferral(resp domain.DNSResponse) (string, bool) {
	for _, ns := range resp.Authority {
		if ns.Type != domain.RRTypeNS || ns.Text == "" {
			continue
		}
		for _, glue := range resp.Additional {
			if glue.Type == domain.RRTypeA && sameName(glue.Name, ns.Text) {
				return net.JoinHostPort(glue.Text, rootPort), true
			}
		}
	}
	return "", false
}

// cacheLearned stores every RRset learned this hop under its own cache key,
// except the key matching the original client query - that RRset belongs to
// the dispatcher to cache once, from Resolve's return value, so it isn't
// double-inserted into the multiset cache.
func (r *recursiveResolver) cacheLearned(resp domain.DNSResponse, originalKey string) {
	if r.cache == nil {
		return
	}
	groups := map[string][]domain.ResourceRecord{}
	for _, section := range [][]domain.ResourceRecord{resp.Answers, resp.Authority, resp.Additional} {
		for _, rr := range section {
			key := rr.CacheKey()
			if key == originalKey {
				continue
			}
			groups[key] = append(groups[key], rr)
		}
	}
	for _, records := range groups {
		if err := r.cache.Set(records); err != nil {
			r.logger.Debug(map[string]any{"error": err}, "Failed to cache record learned during recursion")
		}
	}
}

func hasOwner(records []domain.ResourceRecord, name string, t domain.RRType) bool {
	for _, rr := range records {
		if rr.Type == t && sameName(rr.Name, name) {
			return true
		}
	}
	return false
}

func filterOwner(records []domain.ResourceRecord, name string, t domain.RRType) []domain.ResourceRecord {
	var out []domain.ResourceRecord
	for _, rr := range records {
		if rr.Type == t && sameName(rr.Name, name) {
			out = append(out, rr)
		}
	}
	return out
}

func sameName(a, b string) bool {
	return utils.CanonicalDNSName(a) == utils.CanonicalDNSName(b)
}

// rootPort is the fixed, non-standard port every upstream/root/delegated
// server in this implementation is assumed to listen on; spec.md's wire
// protocol never signals an alternate port for upstream traffic.
const rootPort = "60053"

// freshID returns a new pseudo-random transaction id for an outbound query,
// distinct from the id on the client's original request - each hop of the
// walk gets its own id so replies can't be confused across concurrent
// lookups sharing a socket.
func freshID() uint16 {
	return uint16(rand.IntN(1 << 16))
}

var _ UpstreamClient = (*recursiveResolver)(nil)
