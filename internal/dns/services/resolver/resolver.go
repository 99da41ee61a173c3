package resolver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/haukened/rr-dns/internal/dns/common/clock"
	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/domain"
)

// Resolver implements DNSResponder, dispatching each query to the
// authoritative zone cache, the upstream answer cache, or a fresh upstream
// (or recursive) lookup, in that order.
type Resolver struct {
	blocklist     Blocklist
	clock         clock.Clock
	logger        log.Logger
	transport     ServerTransport
	upstream      UpstreamClient
	upstreamCache Cache
	zoneCache     ZoneCache
	aliasResolver AliasResolver
	authoritative *authoritativeResponder
}

// ResolverOptions collects the Resolver's collaborators for construction.
type ResolverOptions struct {
	Blocklist     Blocklist
	Clock         clock.Clock
	Logger        log.Logger
	Transport     ServerTransport
	Upstream      UpstreamClient
	UpstreamCache Cache
	ZoneCache     ZoneCache
	AliasResolver AliasResolver
}

// NewResolver constructs a Resolver from the supplied options. A nil
// AliasResolver is replaced with a no-op chaser so callers that don't care
// about CNAME expansion don't need to wire one up explicitly.
func NewResolver(opts ResolverOptions) *Resolver {
	alias := opts.AliasResolver
	if alias == nil {
		alias = NewNoOpAliasResolver()
	}
	var authoritative *authoritativeResponder
	if opts.ZoneCache != nil {
		authoritative = newAuthoritativeResponder(opts.ZoneCache)
	}
	return &Resolver{
		blocklist:     opts.Blocklist,
		clock:         opts.Clock,
		logger:        opts.Logger,
		transport:     opts.Transport,
		upstream:      opts.Upstream,
		upstreamCache: opts.UpstreamCache,
		zoneCache:     opts.ZoneCache,
		aliasResolver: alias,
		authoritative: authoritative,
	}
}

// HandleQuery implements DNSResponder. It sweeps no state of its own (the
// backing caches sweep lazily on Get); it leaves TC clear and RA set to the
// transport's wire encoder.
//
// Dispatch order: query.Name is checked against every served zone first. If
// it falls under one, the authoritative responder answers, refers, or
// returns NXDOMAIN from that zone alone - the blocklist and every cache are
// bypassed, since a server should never refuse to answer for a zone it is
// authoritative for. Only when the name falls outside every served zone
// does the blocklist apply, followed by the upstream response cache,
// followed by a live upstream (recursive) lookup.
func (r *Resolver) HandleQuery(ctx context.Context, query domain.Question, clientAddr net.Addr) (domain.DNSResponse, error) {
	if r.authoritative != nil {
		if resp, matched := r.authoritative.resolve(query); matched {
			if headIsUnchasedCNAME(query, resp.Answers) {
				chased, err := r.aliasResolver.Chase(query, resp.Answers)
				if err != nil && r.isFatalAliasError(err) {
					r.logger.Warn(map[string]any{"query": query, "error": err, "client": clientAddr}, "Alias chase failed fatally")
					return buildResponse(query, domain.SERVFAIL, nil), nil
				}
				resp.Answers = chased
				resp.AA = allAnswersInZone(resp.Answers, r.authoritative.firstZoneRoot(query.Name))
			}
			return resp, nil
		}
	}

	if r.blocklist != nil && r.blocklist.IsBlocked(query) {
		r.logger.Info(map[string]any{"query": query, "client": clientAddr}, "Query blocked")
		return buildResponse(query, domain.NXDOMAIN, nil), nil
	}

	if r.upstreamCache != nil {
		if records, found := r.upstreamCache.Get(query.CacheKey()); found {
			return buildResponse(query, domain.NOERROR, records), nil
		}
	}

	if r.upstream == nil {
		r.logger.Error(map[string]any{"query": query, "client": clientAddr}, "No upstream resolver configured")
		return buildResponse(query, domain.SERVFAIL, nil), nil
	}

	now := r.now()
	records, err := r.upstream.Resolve(ctx, query, now)
	if err != nil {
		r.logger.Warn(map[string]any{"query": query, "error": err, "client": clientAddr}, "Upstream resolution failed")
		return buildResponse(query, domain.SERVFAIL, nil), nil
	}

	if err := r.cacheUpstreamResponse(records); err != nil {
		r.logger.Warn(map[string]any{"query": query, "error": err}, "Failed to cache upstream response")
	}

	return buildResponse(query, domain.NOERROR, records), nil
}

// now returns the resolver's clock time, defaulting to wall-clock time when
// no clock was supplied.
func (r *Resolver) now() time.Time {
	if r.clock == nil {
		return time.Now()
	}
	return r.clock.Now()
}

// buildResponse assembles a DNSResponse for the query's ID and the given
// rcode/answer set. Authority and additional sections are populated by the
// authoritative and recursive lookup paths directly; this helper covers the
// common answer-only shape used by the cache and upstream paths.
func buildResponse(query domain.Question, rcode domain.RCode, answers []domain.ResourceRecord) domain.DNSResponse {
	return domain.DNSResponse{
		ID:       query.ID,
		RCode:    rcode,
		Question: query,
		Answers:  answers,
	}
}

// headIsUnchasedCNAME reports whether records begins with a CNAME that
// still needs expanding for the original query type - the same precondition
// aliasChaser.shouldChase checks, duplicated here since the zoneCache
// lookup now happens inside authoritativeResponder rather than directly in
// HandleQuery.
func headIsUnchasedCNAME(query domain.Question, records []domain.ResourceRecord) bool {
	return len(records) > 0 && records[0].Type == domain.RRTypeCNAME && query.Type != domain.RRTypeCNAME
}

// cacheUpstreamResponse stores a freshly-resolved RRset in the upstream
// cache. A nil cache is a valid configuration (caching disabled) and is a
// no-op here rather than an error.
func (r *Resolver) cacheUpstreamResponse(records []domain.ResourceRecord) error {
	if r.upstreamCache == nil || len(records) == 0 {
		return nil
	}
	return r.upstreamCache.Set(records)
}

// isFatalAliasError reports whether an alias-chase error should suppress the
// answer entirely (SERVFAIL) rather than being served as a partial chain.
func (r *Resolver) isFatalAliasError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAliasDepthExceeded) || errors.Is(err, ErrAliasLoopDetected)
}
